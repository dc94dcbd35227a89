package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
	"banking-loans/internal/repository"
)

// LedgerService перемещает деньги между счетами. Все методы работают через
// переданные репозитории, поэтому перевод входит в транзакцию вызывающего кода.
type LedgerService struct {
	logger *logrus.Logger
}

func NewLedgerService(logger *logrus.Logger) *LedgerService {
	return &LedgerService{logger: logger}
}

// Transfer списывает amount со счета fromID и зачисляет на toID.
// Оба счета блокируются в порядке возрастания идентификатора.
func (s *LedgerService) Transfer(
	ctx context.Context,
	r repository.Repos,
	fromID, toID string,
	amount decimal.Decimal,
	txType model.TransactionType,
	referenceID uuid.UUID,
	now time.Time,
) error {
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount must be positive, got %s", amount)
	}
	if fromID == toID {
		return fmt.Errorf("transfer to the same account %s", fromID)
	}

	lockOrder := []string{fromID, toID}
	if toID < fromID {
		lockOrder = []string{toID, fromID}
	}
	for _, id := range lockOrder {
		if _, err := r.Accounts.GetByIDForUpdate(ctx, id); err != nil {
			return fmt.Errorf("account %s: %w", id, err)
		}
	}

	if err := s.Debit(ctx, r, fromID, amount); err != nil {
		return err
	}
	if err := s.Credit(ctx, r, toID, amount); err != nil {
		return err
	}

	ref := referenceID
	legs := []model.Transaction{
		{ID: uuid.New(), AccountID: fromID, Amount: amount.Neg(), TransactionType: txType, ReferenceID: &ref, CreatedAt: now},
		{ID: uuid.New(), AccountID: toID, Amount: amount, TransactionType: txType, ReferenceID: &ref, CreatedAt: now},
	}
	for i := range legs {
		if err := r.Transactions.Create(ctx, &legs[i]); err != nil {
			return fmt.Errorf("journal %s: %w", legs[i].AccountID, err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"from":         fromID,
		"to":           toID,
		"amount":       amount.StringFixed(2),
		"type":         txType,
		"reference_id": referenceID,
	}).Info("Перевод выполнен")
	return nil
}

// Debit списывает amount с активного счета. Строка счета блокируется до конца транзакции.
func (s *LedgerService) Debit(ctx context.Context, r repository.Repos, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	account, err := r.Accounts.GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account %s: %w", accountID, err)
	}
	if !account.IsActive() {
		return fmt.Errorf("%w: %s is %s", model.ErrAccountStatus, account.ID, account.Status)
	}
	if account.Balance.LessThan(amount) {
		s.logger.WithFields(logrus.Fields{
			"account_id": account.ID,
			"balance":    account.Balance.StringFixed(2),
			"required":   amount.StringFixed(2),
		}).Warn("Недостаточно средств на счете")
		return fmt.Errorf("%w: account %s", model.ErrInsufficientBalance, account.ID)
	}
	if err := r.Accounts.UpdateBalance(ctx, account.ID, amount.Neg()); err != nil {
		return fmt.Errorf("debit %s: %w", account.ID, err)
	}
	return nil
}

// Credit зачисляет amount на активный счет
func (s *LedgerService) Credit(ctx context.Context, r repository.Repos, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	account, err := r.Accounts.GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account %s: %w", accountID, err)
	}
	if !account.IsActive() {
		return fmt.Errorf("%w: %s is %s", model.ErrAccountStatus, account.ID, account.Status)
	}
	if err := r.Accounts.UpdateBalance(ctx, account.ID, amount); err != nil {
		return fmt.Errorf("credit %s: %w", account.ID, err)
	}
	return nil
}

func (s *LedgerService) GetBalance(ctx context.Context, r repository.Repos, accountID string) (decimal.Decimal, error) {
	account, err := s.GetAccount(ctx, r, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *LedgerService) GetStatus(ctx context.Context, r repository.Repos, accountID string) (model.AccountStatus, error) {
	account, err := s.GetAccount(ctx, r, accountID)
	if err != nil {
		return "", err
	}
	return account.Status, nil
}

// GetAccount возвращает баланс, статус и признак просрочки счета
func (s *LedgerService) GetAccount(ctx context.Context, r repository.Repos, accountID string) (*model.Account, error) {
	account, err := r.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}
	return account, nil
}

// MarkOverdue помечает счет заемщика как имеющий просрочку
func (s *LedgerService) MarkOverdue(ctx context.Context, r repository.Repos, accountID string) error {
	if err := r.Accounts.MarkOverdue(ctx, accountID); err != nil {
		return fmt.Errorf("mark overdue %s: %w", accountID, err)
	}
	s.logger.WithField("account_id", accountID).Warn("Счет помечен как имеющий просрочку")
	return nil
}
