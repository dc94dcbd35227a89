package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/loancalc"
	"banking-loans/internal/model"
	"banking-loans/internal/repository"
)

// Clock источник текущего времени; в тестах подменяется фиксированным
type Clock func() time.Time

// Notifier отправляет клиенту уведомления о событиях по кредиту
type Notifier interface {
	SendDisbursementNotification(email string, loan *model.LoanApplication) error
	SendRepaymentNotification(email string, loan *model.LoanApplication, repayment *model.LoanRepayment) error
	SendDefaultNotification(email string, loan *model.LoanApplication) error
}

// KeyRateSource источник ключевой ставки ЦБ в процентах годовых
type KeyRateSource interface {
	GetCentralBankRate(ctx context.Context) (decimal.Decimal, error)
}

// LoanPolicy параметры кредитования банка
type LoanPolicy struct {
	FloatAccountID   string          // служебный счет, с которого выдаются кредиты и на который идут платежи
	MinLeadDays      int             // минимальный срок от заявки до даты начала
	DefaultAfterDays int             // просрочка, после которой кредит уходит в дефолт
	RateMargin       decimal.Decimal // маржа к ключевой ставке
	DefaultKeyRate   decimal.Decimal // ставка на случай недоступности ЦБ
}

func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{
		FloatAccountID:   "LOAN_BANK_ACCOUNT",
		MinLeadDays:      15,
		DefaultAfterDays: 60,
		RateMargin:       decimal.NewFromInt(5),
		DefaultKeyRate:   decimal.NewFromInt(16),
	}
}

// ApplyLoanInput параметры новой заявки
type ApplyLoanInput struct {
	UserID     uuid.UUID // uuid.Nil: владелец счета
	AccountID  string
	Amount     decimal.Decimal
	Term       int
	AnnualRate decimal.Decimal
	StartDate  time.Time
}

type LoanService struct {
	store    repository.Store
	ledger   *LedgerService
	notifier Notifier
	rates    KeyRateSource
	policy   LoanPolicy
	now      Clock
	logger   *logrus.Logger
	pending  sync.WaitGroup
}

func NewLoanService(
	store repository.Store,
	ledger *LedgerService,
	notifier Notifier,
	rates KeyRateSource,
	policy LoanPolicy,
	clock Clock,
	logger *logrus.Logger,
) *LoanService {
	if clock == nil {
		clock = time.Now
	}
	return &LoanService{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		rates:    rates,
		policy:   policy,
		now:      clock,
		logger:   logger,
	}
}

func (s *LoanService) today() time.Time {
	return model.DateOf(s.now())
}

// Apply создает заявку в статусе PENDING
func (s *LoanService) Apply(ctx context.Context, in ApplyLoanInput) (*model.LoanApplication, error) {
	log := s.logger.WithFields(logrus.Fields{
		"user_id":    in.UserID,
		"account_id": in.AccountID,
		"amount":     in.Amount.StringFixed(2),
		"term":       in.Term,
	})
	log.Info("Заявка на кредит")

	if in.Term < 1 || !in.Amount.IsPositive() || in.AnnualRate.IsNegative() {
		return nil, fmt.Errorf("%w: amount %s, term %d, rate %s", model.ErrInvalidLoanTerms, in.Amount, in.Term, in.AnnualRate)
	}

	repos := s.store.Repos()
	account, err := s.ledger.GetAccount(ctx, repos, in.AccountID)
	if err != nil {
		log.WithError(err).Warn("Счет для кредита не найден")
		return nil, err
	}
	if in.UserID != uuid.Nil && account.UserID != in.UserID {
		log.Warnf("Попытка оформить кредит на чужой счет, владелец %s", account.UserID)
		return nil, fmt.Errorf("%w: account %s", model.ErrForbidden, account.ID)
	}
	status, err := s.ledger.GetStatus(ctx, repos, account.ID)
	if err != nil {
		return nil, err
	}
	if status != model.AccountStatusActive {
		return nil, fmt.Errorf("%w: %s is %s", model.ErrAccountStatus, account.ID, status)
	}

	now := s.now()
	today := model.DateOf(now)
	start := model.DateOf(in.StartDate)
	if minStart := today.AddDate(0, 0, s.policy.MinLeadDays); start.Before(minStart) {
		return nil, fmt.Errorf("%w: %s is before %s", model.ErrInvalidDate,
			start.Format(model.DateLayout), minStart.Format(model.DateLayout))
	}

	rate := in.AnnualRate.Round(4)
	payment, err := loancalc.MonthlyPayment(in.Amount, rate, in.Term)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidLoanTerms, err)
	}

	loan := &model.LoanApplication{
		ID:                 uuid.New(),
		UserID:             account.UserID,
		AccountID:          account.ID,
		Amount:             in.Amount,
		Term:               in.Term,
		InterestRate:       rate,
		StartDate:          start,
		EndDate:            model.AddMonths(start, in.Term),
		MonthlyPayment:     payment,
		RemainingPrincipal: in.Amount,
		Status:             model.LoanStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.Repos().Loans.Create(ctx, loan); err != nil {
		log.WithError(err).Error("Ошибка сохранения заявки")
		return nil, fmt.Errorf("create loan: %w", err)
	}

	log.WithFields(logrus.Fields{
		"loan_id":         loan.ID,
		"monthly_payment": payment.StringFixed(2),
	}).Info("Заявка на кредит создана")
	return loan, nil
}

// Approve одобряет заявку и сохраняет график платежей. Строка кредита
// блокируется, поэтому график создается ровно один раз.
func (s *LoanService) Approve(ctx context.Context, loanID uuid.UUID) (*model.LoanApplication, error) {
	var approved *model.LoanApplication
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		loan, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err := loan.TransitionTo(model.LoanStatusApproved); err != nil {
			return err
		}

		now := s.now()
		loan.ApprovalDate = &now
		loan.RemainingPrincipal = loan.Amount
		loan.UpdatedAt = now

		schedule, err := loancalc.Schedule(*loan)
		if err != nil {
			return fmt.Errorf("generate schedule: %w", err)
		}
		for i := range schedule {
			schedule[i].ID = uuid.New()
			schedule[i].CreatedAt = now
			schedule[i].UpdatedAt = now
		}

		if err := r.Loans.Update(ctx, loan); err != nil {
			return err
		}
		if err := r.Loans.CreateRepayments(ctx, schedule); err != nil {
			return err
		}
		approved = loan
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("loan_id", loanID).Error("Ошибка одобрения кредита")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"loan_id": loanID,
		"term":    approved.Term,
	}).Info("Кредит одобрен, график платежей создан")
	return approved, nil
}

// Reject отклоняет заявку, находящуюся в статусе PENDING
func (s *LoanService) Reject(ctx context.Context, loanID uuid.UUID) (*model.LoanApplication, error) {
	var rejected *model.LoanApplication
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		loan, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err := loan.TransitionTo(model.LoanStatusRejected); err != nil {
			return err
		}
		loan.UpdatedAt = s.now()
		if err := r.Loans.Update(ctx, loan); err != nil {
			return err
		}
		rejected = loan
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("loan_id", loanID).Error("Ошибка отклонения кредита")
		return nil, err
	}

	s.logger.WithField("loan_id", loanID).Info("Заявка на кредит отклонена")
	return rejected, nil
}

// Repay оплачивает платеж графика с датой repaymentDate. Для просроченного
// платежа начисляется пеня. Перевод и смена статусов выполняются в одной
// транзакции под блокировкой строки платежа.
func (s *LoanService) Repay(ctx context.Context, loanID uuid.UUID, repaymentDate time.Time) (*model.LoanRepayment, error) {
	log := s.logger.WithFields(logrus.Fields{
		"loan_id":        loanID,
		"repayment_date": repaymentDate.Format(model.DateLayout),
	})

	var (
		paid *model.LoanRepayment
		loan *model.LoanApplication
	)
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		repayment, err := r.Loans.GetRepaymentByLoanAndDateForUpdate(ctx, loanID, repaymentDate)
		if err != nil {
			return err
		}
		if repayment.Status == model.RepaymentStatusPaid {
			return fmt.Errorf("%w: repayment %s", model.ErrAlreadyPaid, repayment.ID)
		}

		today := s.today()
		if overdueDays := model.DaysBetween(repayment.RepaymentDate, today); overdueDays > 0 {
			repayment.LateFee = loancalc.LateFee(repayment.Amount, overdueDays)
		}

		loan, err = s.settle(ctx, r, repayment)
		if err != nil {
			return err
		}
		paid = repayment
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Ошибка погашения платежа")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"repayment_id": paid.ID,
		"amount":       paid.AmountDue().StringFixed(2),
		"loan_status":  loan.Status,
	}).Info("Платеж по кредиту погашен")
	s.notifyRepayment(ctx, loan, paid)
	return paid, nil
}

// settle списывает платеж со счета заемщика и фиксирует оплату. Вызывается
// внутри транзакции; строка платежа уже заблокирована вызывающим кодом.
func (s *LoanService) settle(ctx context.Context, r repository.Repos, repayment *model.LoanRepayment) (*model.LoanApplication, error) {
	loan, err := r.Loans.GetByIDForUpdate(ctx, repayment.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != model.LoanStatusDisbursed && loan.Status != model.LoanStatusDefault {
		return nil, fmt.Errorf("%w: loan %s is %s", model.ErrLoanStatus, loan.ID, loan.Status)
	}

	now := s.now()
	if err := s.ledger.Transfer(ctx, r, loan.AccountID, s.policy.FloatAccountID,
		repayment.AmountDue(), model.TransactionTypeLoanRepayment, repayment.ID, now); err != nil {
		return nil, err
	}

	if err := repayment.MarkPaid(now); err != nil {
		return nil, err
	}
	repayment.UpdatedAt = now
	if err := r.Loans.UpdateRepayment(ctx, repayment); err != nil {
		return nil, err
	}

	loan.ReducePrincipal(repayment.Principal)
	outstanding, err := r.Loans.CountRepayments(ctx, loan.ID, model.RepaymentStatusPending, model.RepaymentStatusOverdue)
	if err != nil {
		return nil, err
	}
	if outstanding == 0 && loan.Status == model.LoanStatusDisbursed {
		if err := loan.TransitionTo(model.LoanStatusClosed); err != nil {
			return nil, err
		}
		s.logger.WithField("loan_id", loan.ID).Info("Кредит полностью погашен")
	}
	loan.UpdatedAt = now
	if err := r.Loans.Update(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *LoanService) GetLoan(ctx context.Context, loanID uuid.UUID) (*model.LoanApplication, error) {
	return s.store.Repos().Loans.GetByID(ctx, loanID)
}

// GetRepaymentSchedule возвращает график платежей по порядку периодов
func (s *LoanService) GetRepaymentSchedule(ctx context.Context, loanID uuid.UUID) ([]model.LoanRepayment, error) {
	repos := s.store.Repos()
	if _, err := repos.Loans.GetByID(ctx, loanID); err != nil {
		return nil, err
	}
	schedule, err := repos.Loans.ListRepayments(ctx, loanID)
	if err != nil {
		s.logger.WithError(err).WithField("loan_id", loanID).Error("Ошибка получения графика платежей")
		return nil, err
	}
	return schedule, nil
}

func (s *LoanService) GetAllLoans(ctx context.Context) ([]model.LoanApplication, error) {
	return s.store.Repos().Loans.List(ctx)
}

func (s *LoanService) GetLoansByUserID(ctx context.Context, userID uuid.UUID) ([]model.LoanApplication, error) {
	return s.store.Repos().Loans.ListByUser(ctx, userID)
}

func (s *LoanService) GetPendingLoans(ctx context.Context) ([]model.LoanApplication, error) {
	return s.store.Repos().Loans.ListByStatus(ctx, model.LoanStatusPending)
}

// GetAccount счет заемщика с балансом и признаком просрочки
func (s *LoanService) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	return s.ledger.GetAccount(ctx, s.store.Repos(), accountID)
}

// QuoteRate предлагает годовую ставку: ключевая ставка ЦБ плюс маржа.
// Если ЦБ недоступен, используется ставка по умолчанию.
func (s *LoanService) QuoteRate(ctx context.Context) model.RateQuote {
	quote := model.RateQuote{Margin: s.policy.RateMargin}

	keyRate, err := decimal.Zero, errors.New("key rate source is not configured")
	if s.rates != nil {
		keyRate, err = s.rates.GetCentralBankRate(ctx)
	}
	if err != nil {
		s.logger.WithError(err).Warn("Не удалось получить ставку ЦБ, используется значение по умолчанию")
		keyRate = s.policy.DefaultKeyRate
		quote.Fallback = true
	}

	quote.KeyRate = keyRate
	quote.AnnualRate = keyRate.Add(s.policy.RateMargin).Round(4)
	return quote
}

// email ищет адрес владельца кредита для уведомлений
func (s *LoanService) email(ctx context.Context, userID uuid.UUID) (string, bool) {
	if s.notifier == nil {
		return "", false
	}
	user, err := s.store.Repos().Users.GetByID(ctx, userID)
	if err != nil || user.Email == "" {
		return "", false
	}
	return user.Email, true
}

// send отправляет уведомление в фоне. Незавершенные отправки дожидается
// WaitNotifications.
func (s *LoanService) send(fn func() error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := fn(); err != nil {
			s.logger.WithError(err).Warn("Не удалось отправить email уведомление")
		}
	}()
}

// WaitNotifications ждет отправки уведомлений, запущенных ранее, или отмены ctx
func (s *LoanService) WaitNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LoanService) notifyRepayment(ctx context.Context, loan *model.LoanApplication, repayment *model.LoanRepayment) {
	email, ok := s.email(ctx, loan.UserID)
	if !ok {
		return
	}
	s.send(func() error {
		return s.notifier.SendRepaymentNotification(email, loan, repayment)
	})
}

func (s *LoanService) notifyDisbursement(ctx context.Context, loan *model.LoanApplication) {
	email, ok := s.email(ctx, loan.UserID)
	if !ok {
		return
	}
	s.send(func() error {
		return s.notifier.SendDisbursementNotification(email, loan)
	})
}

func (s *LoanService) notifyDefault(ctx context.Context, loan *model.LoanApplication) {
	email, ok := s.email(ctx, loan.UserID)
	if !ok {
		return
	}
	s.send(func() error {
		return s.notifier.SendDefaultNotification(email, loan)
	})
}
