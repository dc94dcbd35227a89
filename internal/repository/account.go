package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
)

type AccountRepository struct {
	db     DBTX
	logger *logrus.Logger
}

func NewAccountRepository(db DBTX, logger *logrus.Logger) *AccountRepository {
	return &AccountRepository{db: db, logger: logger}
}

func (r *AccountRepository) getAccount(ctx context.Context, query, id string) (*model.Account, error) {
	var account model.Account
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.UserID,
		&account.Balance,
		&account.Status,
		&account.HasOverdue,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := `
        SELECT id, user_id, balance, status, has_overdue, created_at, updated_at
        FROM accounts
        WHERE id = $1
    `
	return r.getAccount(ctx, query, id)
}

// GetByIDForUpdate читает счет с блокировкой строки; вызывать внутри транзакции
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error) {
	query := `
        SELECT id, user_id, balance, status, has_overdue, created_at, updated_at
        FROM accounts
        WHERE id = $1
        FOR UPDATE
    `
	return r.getAccount(ctx, query, id)
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	query := `
        UPDATE accounts
        SET balance = balance + $1,
            updated_at = NOW()
        WHERE id = $2
    `

	result, err := r.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrAccountNotFound
	}

	return nil
}

// MarkOverdue выставляет признак просрочки. Признак никогда не снимается этим сервисом.
func (r *AccountRepository) MarkOverdue(ctx context.Context, id string) error {
	query := `
        UPDATE accounts
        SET has_overdue = TRUE,
            updated_at = NOW()
        WHERE id = $1
    `

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark account overdue: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrAccountNotFound
	}

	return nil
}
