package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
	"banking-loans/internal/repository"
)

// ErrJobRunning предыдущий запуск задания еще не завершен
var ErrJobRunning = errors.New("job is already running")

// errSkipped запись изменилась между выборкой и блокировкой
var errSkipped = errors.New("record no longer eligible")

// RunReport итог одного прохода задания
type RunReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (r *RunReport) record(err error) {
	r.Processed++
	switch {
	case err == nil:
		r.Succeeded++
	case errors.Is(err, errSkipped):
		r.Skipped++
	default:
		r.Failed++
	}
}

// DisbursementJob ежедневно выдает одобренные кредиты, дата начала которых наступила
type DisbursementJob struct {
	store  repository.Store
	loans  *LoanService
	ledger *LedgerService
	logger *logrus.Logger
	mu     sync.Mutex
}

func NewDisbursementJob(store repository.Store, loans *LoanService, ledger *LedgerService, logger *logrus.Logger) *DisbursementJob {
	return &DisbursementJob{
		store:  store,
		loans:  loans,
		ledger: ledger,
		logger: logger,
	}
}

// Run обрабатывает все кредиты APPROVED с датой начала не позже сегодняшней.
// Ошибка по одному кредиту не прерывает обработку остальных: кредит остается
// APPROVED и будет выдан при следующем запуске.
func (j *DisbursementJob) Run(ctx context.Context) (RunReport, error) {
	var report RunReport
	if !j.mu.TryLock() {
		return report, ErrJobRunning
	}
	defer j.mu.Unlock()

	today := j.loans.today()
	loans, err := j.store.Repos().Loans.ListByStatusStartingBy(ctx, model.LoanStatusApproved, today)
	if err != nil {
		j.logger.WithError(err).Error("Ошибка получения кредитов к выдаче")
		return report, fmt.Errorf("list loans to disburse: %w", err)
	}

	j.logger.WithField("count", len(loans)).Info("Запуск выдачи кредитов")
	for _, loan := range loans {
		err := j.disburse(ctx, loan.ID)
		report.record(err)
		if err != nil && !errors.Is(err, errSkipped) {
			j.logger.WithError(err).WithField("loan_id", loan.ID).Error("Ошибка выдачи кредита")
		}
	}

	fields := logrus.Fields{
		"processed": report.Processed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	}
	if balance, err := j.ledger.GetBalance(ctx, j.store.Repos(), j.loans.policy.FloatAccountID); err == nil {
		fields["float_balance"] = balance.StringFixed(2)
	} else {
		j.logger.WithError(err).Warn("Не удалось получить остаток кредитного счета банка")
	}
	j.logger.WithFields(fields).Info("Выдача кредитов завершена")
	return report, nil
}

func (j *DisbursementJob) disburse(ctx context.Context, loanID uuid.UUID) error {
	var disbursed *model.LoanApplication
	err := j.store.WithinTx(ctx, func(r repository.Repos) error {
		loan, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != model.LoanStatusApproved {
			return fmt.Errorf("%w: loan %s is %s", errSkipped, loan.ID, loan.Status)
		}

		now := j.loans.now()
		if err := j.ledger.Transfer(ctx, r, j.loans.policy.FloatAccountID, loan.AccountID,
			loan.Amount, model.TransactionTypeLoanDisbursement, loan.ID, now); err != nil {
			return err
		}

		if err := loan.TransitionTo(model.LoanStatusDisbursed); err != nil {
			return err
		}
		today := model.DateOf(now)
		loan.DisbursementDate = &today
		loan.UpdatedAt = now
		if err := r.Loans.Update(ctx, loan); err != nil {
			return err
		}
		disbursed = loan
		return nil
	})
	if err != nil {
		return err
	}

	j.logger.WithFields(logrus.Fields{
		"loan_id":    disbursed.ID,
		"account_id": disbursed.AccountID,
		"amount":     disbursed.Amount.StringFixed(2),
	}).Info("Кредит выдан")
	j.loans.notifyDisbursement(ctx, disbursed)
	return nil
}
