package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
)

type TransactionRepository struct {
	db     DBTX
	logger *logrus.Logger
}

func NewTransactionRepository(db DBTX, logger *logrus.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

func (r *TransactionRepository) Create(ctx context.Context, transaction *model.Transaction) error {
	r.logger.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"account_id":     transaction.AccountID,
		"amount":         transaction.Amount.StringFixed(2),
		"type":           transaction.TransactionType,
		"reference_id":   transaction.ReferenceID,
	}).Debug("Создание проводки")

	query := `
        INSERT INTO transactions (id, account_id, amount, transaction_type, reference_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

	_, err := r.db.ExecContext(
		ctx,
		query,
		transaction.ID,
		transaction.AccountID,
		transaction.Amount,
		transaction.TransactionType,
		transaction.ReferenceID,
		transaction.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Ошибка при создании проводки")
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}
