package service

import (
	"crypto/tls"
	"fmt"

	"github.com/go-mail/mail/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/config"
	"banking-loans/internal/model"
)

const notificationFooter = `<small>Это автоматическое уведомление, пожалуйста, не отвечайте на него</small>`

// EmailSender отправляет уведомления по кредитам через SMTP
type EmailSender struct {
	dialer  *mail.Dialer
	from    string
	logger  *logrus.Logger
	enabled bool
}

func NewEmailSender(cfg config.SMTPConfig, logger *logrus.Logger) *EmailSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	return &EmailSender{
		dialer:  d,
		from:    cfg.User,
		logger:  logger,
		enabled: cfg.Enabled,
	}
}

func (es *EmailSender) SendDisbursementNotification(email string, loan *model.LoanApplication) error {
	subject := "Кредит выдан"
	content := fmt.Sprintf(`
		<h1>Кредит зачислен на счет</h1>
		<p>Номер кредита: <strong>%s</strong></p>
		<p>Сумма: <strong>%s RUB</strong></p>
		<p>Счет зачисления: <strong>%s</strong></p>
		<p>Ежемесячный платеж: <strong>%s RUB</strong></p>
		<p>Срок: <strong>%d мес.</strong>, до %s</p>
		%s
	`, loan.ID, money(loan.Amount), loan.AccountID, money(loan.MonthlyPayment),
		loan.Term, loan.EndDate.Format("02.01.2006"), notificationFooter)

	return es.sendEmail(email, subject, content)
}

func (es *EmailSender) SendRepaymentNotification(email string, loan *model.LoanApplication, repayment *model.LoanRepayment) error {
	subject := "Уведомление о платеже по кредиту"
	lateFee := ""
	if repayment.LateFee.IsPositive() {
		lateFee = fmt.Sprintf("<p>В том числе пеня: <strong>%s RUB</strong></p>", money(repayment.LateFee))
	}
	content := fmt.Sprintf(`
		<h1>Уведомление о платеже по кредиту</h1>
		<p>Номер кредита: <strong>%s</strong></p>
		<p>Платеж №%d от %s</p>
		<p>Сумма платежа: <strong>%s RUB</strong></p>
		%s
		<p>Остаток основного долга: <strong>%s RUB</strong></p>
		%s
	`, loan.ID, repayment.Period, repayment.RepaymentDate.Format("02.01.2006"),
		money(repayment.AmountDue()), lateFee, money(loan.RemainingPrincipal), notificationFooter)

	return es.sendEmail(email, subject, content)
}

func (es *EmailSender) SendDefaultNotification(email string, loan *model.LoanApplication) error {
	subject := "Просрочка по кредиту"
	content := fmt.Sprintf(`
		<h1>Кредит переведен в статус дефолта</h1>
		<p>Номер кредита: <strong>%s</strong></p>
		<p>Остаток основного долга: <strong>%s RUB</strong></p>
		<p>Пожалуйста, погасите просроченные платежи как можно скорее.</p>
		%s
	`, loan.ID, money(loan.RemainingPrincipal), notificationFooter)

	return es.sendEmail(email, subject, content)
}

func (es *EmailSender) sendEmail(to, subject, body string) error {
	if !es.enabled {
		es.logger.Debug("Отправка уведомлений отключена")
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", es.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := es.dialer.DialAndSend(m); err != nil {
		es.logger.WithError(err).Error("Ошибка отправки email")
		return fmt.Errorf("не удалось отправить email: %w", err)
	}

	es.logger.Infof("Email успешно отправлен на %s", to)
	return nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
