package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
)

//go:embed schema.sql
var schema string

// DBTX общий интерфейс *sql.DB и *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Loans хранилище кредитов и графиков погашения
type Loans interface {
	Create(ctx context.Context, loan *model.LoanApplication) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error)
	Update(ctx context.Context, loan *model.LoanApplication) error
	List(ctx context.Context) ([]model.LoanApplication, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.LoanApplication, error)
	ListByStatus(ctx context.Context, status model.LoanStatus) ([]model.LoanApplication, error)
	ListByStatusStartingBy(ctx context.Context, status model.LoanStatus, date time.Time) ([]model.LoanApplication, error)

	CreateRepayments(ctx context.Context, repayments []model.LoanRepayment) error
	GetRepaymentForUpdate(ctx context.Context, id uuid.UUID) (*model.LoanRepayment, error)
	GetRepaymentByLoanAndDateForUpdate(ctx context.Context, loanID uuid.UUID, date time.Time) (*model.LoanRepayment, error)
	UpdateRepayment(ctx context.Context, repayment *model.LoanRepayment) error
	ListRepayments(ctx context.Context, loanID uuid.UUID) ([]model.LoanRepayment, error)
	ListRepaymentsByStatus(ctx context.Context, status model.RepaymentStatus) ([]model.LoanRepayment, error)
	ListRepaymentsByStatusAndDate(ctx context.Context, status model.RepaymentStatus, date time.Time) ([]model.LoanRepayment, error)
	ListRepaymentsDueBefore(ctx context.Context, status model.RepaymentStatus, date time.Time) ([]model.LoanRepayment, error)
	CountRepayments(ctx context.Context, loanID uuid.UUID, statuses ...model.RepaymentStatus) (int, error)
}

// Accounts хранилище счетов. Баланс меняется только через UpdateBalance.
type Accounts interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error)
	UpdateBalance(ctx context.Context, id string, delta decimal.Decimal) error
	MarkOverdue(ctx context.Context, id string) error
}

type Transactions interface {
	Create(ctx context.Context, transaction *model.Transaction) error
}

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Repos набор репозиториев, работающих через одно соединение или транзакцию
type Repos struct {
	Loans        Loans
	Accounts     Accounts
	Transactions Transactions
	Users        Users
}

// Store выдает репозитории и выполняет единицы работы в транзакции
type Store interface {
	Repos() Repos
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}

type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewPostgresStore(db *sql.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) reposOn(conn DBTX) Repos {
	return Repos{
		Loans:        NewLoanRepository(conn, s.logger),
		Accounts:     NewAccountRepository(conn, s.logger),
		Transactions: NewTransactionRepository(conn, s.logger),
		Users:        NewUserRepository(conn, s.logger),
	}
}

// Repos репозитории вне транзакции, для чтения
func (s *PostgresStore) Repos() Repos {
	return s.reposOn(s.db)
}

// WithinTx выполняет fn в одной транзакции. Ошибка fn или паника откатывают все изменения.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(r Repos) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.WithError(rbErr).Error("Ошибка отката транзакции")
			}
		}
	}()

	if err = fn(s.reposOn(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Migrate создает таблицы, если их еще нет
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// dateArg передает календарную дату без часового пояса
func dateArg(t time.Time) string {
	return model.DateOf(t).Format(model.DateLayout)
}
