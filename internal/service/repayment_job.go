package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/loancalc"
	"banking-loans/internal/model"
	"banking-loans/internal/repository"
)

// RepaymentRunReport итог прохода задания погашения
type RepaymentRunReport struct {
	Lapsed    RunReport `json:"lapsed"`
	Due       RunReport `json:"due"`
	Overdue   RunReport `json:"overdue"`
	Defaulted int       `json:"defaulted"`
}

// RepaymentJob ежедневно списывает платежи с наступившей датой, начисляет пеню
// по просроченным платежам и переводит злостные просрочки в дефолт
type RepaymentJob struct {
	store  repository.Store
	loans  *LoanService
	ledger *LedgerService
	logger *logrus.Logger
	mu     sync.Mutex
}

func NewRepaymentJob(store repository.Store, loans *LoanService, ledger *LedgerService, logger *logrus.Logger) *RepaymentJob {
	return &RepaymentJob{
		store:  store,
		loans:  loans,
		ledger: ledger,
		logger: logger,
	}
}

// Run сначала переводит в просрочку неоплаченные платежи с прошедшей датой,
// затем обрабатывает платежи на сегодня и после этого просроченные.
// Платеж, который не удалось списать сегодня, попадает в просроченные
// уже в этом же проходе.
func (j *RepaymentJob) Run(ctx context.Context) (RepaymentRunReport, error) {
	var report RepaymentRunReport
	if !j.mu.TryLock() {
		return report, ErrJobRunning
	}
	defer j.mu.Unlock()

	today := j.loans.today()

	// платежи, дата которых прошла до выдачи кредита или пока задание не запускалось
	lapsed, err := j.store.Repos().Loans.ListRepaymentsDueBefore(ctx, model.RepaymentStatusPending, today)
	if err != nil {
		j.logger.WithError(err).Error("Ошибка получения пропущенных платежей")
		return report, fmt.Errorf("list lapsed repayments: %w", err)
	}
	for _, repayment := range lapsed {
		err := j.markOverdue(ctx, repayment.ID)
		report.Lapsed.record(err)
		if err != nil && !errors.Is(err, errSkipped) {
			j.logger.WithError(err).WithField("repayment_id", repayment.ID).Error("Ошибка перевода платежа в просрочку")
		}
	}
	if report.Lapsed.Succeeded > 0 {
		j.logger.WithField("count", report.Lapsed.Succeeded).Warn("Пропущенные платежи переведены в просрочку")
	}

	due, err := j.store.Repos().Loans.ListRepaymentsByStatusAndDate(ctx, model.RepaymentStatusPending, today)
	if err != nil {
		j.logger.WithError(err).Error("Ошибка получения платежей на сегодня")
		return report, fmt.Errorf("list due repayments: %w", err)
	}

	j.logger.WithField("count", len(due)).Info("Запуск автоматического погашения")
	for _, repayment := range due {
		err := j.collect(ctx, repayment.ID)
		report.Due.record(err)
	}

	overdue, err := j.store.Repos().Loans.ListRepaymentsByStatus(ctx, model.RepaymentStatusOverdue)
	if err != nil {
		j.logger.WithError(err).Error("Ошибка получения просроченных платежей")
		return report, fmt.Errorf("list overdue repayments: %w", err)
	}

	j.logger.WithField("count", len(overdue)).Info("Обработка просроченных платежей")
	for _, repayment := range overdue {
		defaulted, err := j.accrue(ctx, repayment.ID)
		report.Overdue.record(err)
		if err != nil && !errors.Is(err, errSkipped) {
			j.logger.WithError(err).WithField("repayment_id", repayment.ID).Error("Ошибка обработки просроченного платежа")
		}
		if defaulted {
			report.Defaulted++
		}
	}

	j.logger.WithFields(logrus.Fields{
		"due_paid":        report.Due.Succeeded,
		"due_failed":      report.Due.Failed,
		"overdue_updated": report.Overdue.Succeeded,
		"defaulted":       report.Defaulted,
	}).Info("Автоматическое погашение завершено")
	return report, nil
}

// collect списывает платеж с наступившей датой. При любой ошибке списания
// платеж переводится в OVERDUE отдельной транзакцией.
func (j *RepaymentJob) collect(ctx context.Context, repaymentID uuid.UUID) error {
	log := j.logger.WithField("repayment_id", repaymentID)

	var (
		paid *model.LoanRepayment
		loan *model.LoanApplication
	)
	err := j.store.WithinTx(ctx, func(r repository.Repos) error {
		repayment, err := r.Loans.GetRepaymentForUpdate(ctx, repaymentID)
		if err != nil {
			return err
		}
		if repayment.Status != model.RepaymentStatusPending {
			return fmt.Errorf("%w: repayment %s is %s", errSkipped, repayment.ID, repayment.Status)
		}

		loan, err = j.loans.settle(ctx, r, repayment)
		if err != nil {
			return err
		}
		paid = repayment
		return nil
	})
	if errors.Is(err, errSkipped) {
		log.WithError(err).Debug("Платеж уже обработан")
		return err
	}
	if err != nil {
		log.WithError(err).Warn("Не удалось списать платеж, платеж просрочен")
		if markErr := j.markOverdue(ctx, repaymentID); errors.Is(markErr, errSkipped) {
			log.WithError(markErr).Debug("Платеж не переведен в просрочку")
		} else if markErr != nil {
			log.WithError(markErr).Error("Ошибка перевода платежа в просрочку")
		}
		return err
	}

	log.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"amount":      paid.AmountDue().StringFixed(2),
		"loan_status": loan.Status,
	}).Info("Платеж списан автоматически")
	j.loans.notifyRepayment(ctx, loan, paid)
	return nil
}

// markOverdue переводит неоплаченный платеж в OVERDUE. Платежи по еще
// не выданному кредиту остаются в PENDING.
func (j *RepaymentJob) markOverdue(ctx context.Context, repaymentID uuid.UUID) error {
	return j.store.WithinTx(ctx, func(r repository.Repos) error {
		repayment, err := r.Loans.GetRepaymentForUpdate(ctx, repaymentID)
		if err != nil {
			return err
		}
		if repayment.Status != model.RepaymentStatusPending {
			return fmt.Errorf("%w: repayment %s is %s", errSkipped, repayment.ID, repayment.Status)
		}
		loan, err := r.Loans.GetByIDForUpdate(ctx, repayment.LoanID)
		if err != nil {
			return err
		}
		if loan.Status != model.LoanStatusDisbursed && loan.Status != model.LoanStatusDefault {
			return fmt.Errorf("%w: loan %s is %s", errSkipped, loan.ID, loan.Status)
		}
		if err := repayment.TransitionTo(model.RepaymentStatusOverdue); err != nil {
			return err
		}
		repayment.UpdatedAt = j.loans.now()
		return r.Loans.UpdateRepayment(ctx, repayment)
	})
}

// accrue пересчитывает пеню по просроченному платежу. Пеня заменяет ранее
// начисленную. Если просрочка достигла порога, кредит переводится в DEFAULT,
// а счет заемщика помечается как имеющий просрочку.
func (j *RepaymentJob) accrue(ctx context.Context, repaymentID uuid.UUID) (bool, error) {
	var defaulted *model.LoanApplication
	err := j.store.WithinTx(ctx, func(r repository.Repos) error {
		repayment, err := r.Loans.GetRepaymentForUpdate(ctx, repaymentID)
		if err != nil {
			return err
		}
		if repayment.Status != model.RepaymentStatusOverdue {
			return fmt.Errorf("%w: repayment %s is %s", errSkipped, repayment.ID, repayment.Status)
		}

		now := j.loans.now()
		overdueDays := model.DaysBetween(repayment.RepaymentDate, model.DateOf(now))
		repayment.LateFee = loancalc.LateFee(repayment.Amount, overdueDays)
		repayment.UpdatedAt = now
		if err := r.Loans.UpdateRepayment(ctx, repayment); err != nil {
			return err
		}

		if overdueDays < j.loans.policy.DefaultAfterDays {
			return nil
		}

		loan, err := r.Loans.GetByIDForUpdate(ctx, repayment.LoanID)
		if err != nil {
			return err
		}
		switch loan.Status {
		case model.LoanStatusDisbursed:
			if err := loan.TransitionTo(model.LoanStatusDefault); err != nil {
				return err
			}
			loan.UpdatedAt = now
			if err := r.Loans.Update(ctx, loan); err != nil {
				return err
			}
			defaulted = loan
		case model.LoanStatusDefault:
		default:
			j.logger.WithFields(logrus.Fields{
				"loan_id": loan.ID,
				"status":  loan.Status,
			}).Warn("Просроченный платеж по кредиту в неожиданном статусе")
			return nil
		}
		return j.ledger.MarkOverdue(ctx, r, loan.AccountID)
	})
	if err != nil {
		return false, err
	}
	if defaulted == nil {
		return false, nil
	}

	j.logger.WithFields(logrus.Fields{
		"loan_id":    defaulted.ID,
		"account_id": defaulted.AccountID,
	}).Warn("Кредит переведен в дефолт")
	j.loans.notifyDefault(ctx, defaulted)
	return true, nil
}
