package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
)

const loanColumns = `id, user_id, account_id, amount, term, interest_rate, start_date, end_date,
               approval_date, disbursement_date, monthly_payment, remaining_principal,
               status, created_at, updated_at`

const repaymentColumns = `id, loan_id, period, repayment_date, amount, principal, interest,
               late_fee, status, actual_repayment_date, created_at, updated_at`

type LoanRepository struct {
	db     DBTX
	logger *logrus.Logger
}

func NewLoanRepository(db DBTX, logger *logrus.Logger) *LoanRepository {
	return &LoanRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*model.LoanApplication, error) {
	var loan model.LoanApplication
	err := row.Scan(
		&loan.ID,
		&loan.UserID,
		&loan.AccountID,
		&loan.Amount,
		&loan.Term,
		&loan.InterestRate,
		&loan.StartDate,
		&loan.EndDate,
		&loan.ApprovalDate,
		&loan.DisbursementDate,
		&loan.MonthlyPayment,
		&loan.RemainingPrincipal,
		&loan.Status,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	loan.StartDate = model.DateOf(loan.StartDate)
	loan.EndDate = model.DateOf(loan.EndDate)
	if loan.DisbursementDate != nil {
		d := model.DateOf(*loan.DisbursementDate)
		loan.DisbursementDate = &d
	}
	return &loan, nil
}

func scanRepayment(row rowScanner) (*model.LoanRepayment, error) {
	var r model.LoanRepayment
	err := row.Scan(
		&r.ID,
		&r.LoanID,
		&r.Period,
		&r.RepaymentDate,
		&r.Amount,
		&r.Principal,
		&r.Interest,
		&r.LateFee,
		&r.Status,
		&r.ActualRepaymentDate,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.RepaymentDate = model.DateOf(r.RepaymentDate)
	if r.ActualRepaymentDate != nil {
		d := model.DateOf(*r.ActualRepaymentDate)
		r.ActualRepaymentDate = &d
	}
	return &r, nil
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dateArg(*t)
}

func (r *LoanRepository) Create(ctx context.Context, loan *model.LoanApplication) error {
	query := `
        INSERT INTO loans (id, user_id, account_id, amount, term, interest_rate, start_date, end_date,
                           approval_date, disbursement_date, monthly_payment, remaining_principal,
                           status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::date, $9, $10::date, $11, $12, $13, $14, $15)
    `

	_, err := r.db.ExecContext(
		ctx,
		query,
		loan.ID,
		loan.UserID,
		loan.AccountID,
		loan.Amount,
		loan.Term,
		loan.InterestRate,
		dateArg(loan.StartDate),
		dateArg(loan.EndDate),
		loan.ApprovalDate,
		nullableDate(loan.DisbursementDate),
		loan.MonthlyPayment,
		loan.RemainingPrincipal,
		loan.Status,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return model.ErrAccountNotFound
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}

	return nil
}

func (r *LoanRepository) getLoan(ctx context.Context, query string, id uuid.UUID) (*model.LoanApplication, error) {
	loan, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error) {
	return r.getLoan(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

// GetByIDForUpdate блокирует строку кредита до конца транзакции
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error) {
	return r.getLoan(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

func (r *LoanRepository) Update(ctx context.Context, loan *model.LoanApplication) error {
	query := `
        UPDATE loans
        SET status = $1,
            approval_date = $2,
            disbursement_date = $3::date,
            remaining_principal = $4,
            updated_at = $5
        WHERE id = $6
    `

	result, err := r.db.ExecContext(
		ctx,
		query,
		loan.Status,
		loan.ApprovalDate,
		nullableDate(loan.DisbursementDate),
		loan.RemainingPrincipal,
		loan.UpdatedAt,
		loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrLoanNotFound
	}

	return nil
}

func (r *LoanRepository) queryLoans(ctx context.Context, query string, args ...any) ([]model.LoanApplication, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []model.LoanApplication
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, *loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}

	return loans, nil
}

func (r *LoanRepository) List(ctx context.Context) ([]model.LoanApplication, error) {
	return r.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY created_at`)
}

func (r *LoanRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.LoanApplication, error) {
	return r.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *LoanRepository) ListByStatus(ctx context.Context, status model.LoanStatus) ([]model.LoanApplication, error) {
	return r.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE status = $1 ORDER BY created_at`, status)
}

// ListByStatusStartingBy возвращает кредиты в статусе status с датой начала не позже date
func (r *LoanRepository) ListByStatusStartingBy(ctx context.Context, status model.LoanStatus, date time.Time) ([]model.LoanApplication, error) {
	return r.queryLoans(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE status = $1 AND start_date <= $2::date ORDER BY start_date, created_at`,
		status, dateArg(date))
}

// CreateRepayments сохраняет график одним пакетом в рамках текущего соединения
func (r *LoanRepository) CreateRepayments(ctx context.Context, repayments []model.LoanRepayment) error {
	query := `
        INSERT INTO loan_repayments (id, loan_id, period, repayment_date, amount, principal, interest,
                                     late_fee, status, actual_repayment_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10::date, $11, $12)
    `

	for _, rp := range repayments {
		_, err := r.db.ExecContext(
			ctx,
			query,
			rp.ID,
			rp.LoanID,
			rp.Period,
			dateArg(rp.RepaymentDate),
			rp.Amount,
			rp.Principal,
			rp.Interest,
			rp.LateFee,
			rp.Status,
			nullableDate(rp.ActualRepaymentDate),
			rp.CreatedAt,
			rp.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return fmt.Errorf("%w: schedule for loan %s already exists", model.ErrInvalidTransition, rp.LoanID)
			}
			return fmt.Errorf("failed to create repayment %d: %w", rp.Period, err)
		}
	}

	r.logger.WithFields(logrus.Fields{
		"count": len(repayments),
	}).Debug("График платежей сохранен")
	return nil
}

func (r *LoanRepository) getRepayment(ctx context.Context, query string, args ...any) (*model.LoanRepayment, error) {
	repayment, err := scanRepayment(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrRepaymentNotFound
		}
		return nil, fmt.Errorf("failed to get repayment: %w", err)
	}
	return repayment, nil
}

func (r *LoanRepository) GetRepaymentForUpdate(ctx context.Context, id uuid.UUID) (*model.LoanRepayment, error) {
	return r.getRepayment(ctx, `SELECT `+repaymentColumns+` FROM loan_repayments WHERE id = $1 FOR UPDATE`, id)
}

func (r *LoanRepository) GetRepaymentByLoanAndDateForUpdate(ctx context.Context, loanID uuid.UUID, date time.Time) (*model.LoanRepayment, error) {
	return r.getRepayment(ctx,
		`SELECT `+repaymentColumns+` FROM loan_repayments WHERE loan_id = $1 AND repayment_date = $2::date FOR UPDATE`,
		loanID, dateArg(date))
}

func (r *LoanRepository) UpdateRepayment(ctx context.Context, repayment *model.LoanRepayment) error {
	query := `
        UPDATE loan_repayments
        SET status = $1,
            late_fee = $2,
            actual_repayment_date = $3::date,
            updated_at = $4
        WHERE id = $5
    `

	result, err := r.db.ExecContext(
		ctx,
		query,
		repayment.Status,
		repayment.LateFee,
		nullableDate(repayment.ActualRepaymentDate),
		repayment.UpdatedAt,
		repayment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update repayment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrRepaymentNotFound
	}

	return nil
}

func (r *LoanRepository) queryRepayments(ctx context.Context, query string, args ...any) ([]model.LoanRepayment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query repayments: %w", err)
	}
	defer rows.Close()

	var repayments []model.LoanRepayment
	for rows.Next() {
		repayment, err := scanRepayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repayment: %w", err)
		}
		repayments = append(repayments, *repayment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate repayments: %w", err)
	}

	return repayments, nil
}

func (r *LoanRepository) ListRepayments(ctx context.Context, loanID uuid.UUID) ([]model.LoanRepayment, error) {
	return r.queryRepayments(ctx,
		`SELECT `+repaymentColumns+` FROM loan_repayments WHERE loan_id = $1 ORDER BY period`, loanID)
}

func (r *LoanRepository) ListRepaymentsByStatus(ctx context.Context, status model.RepaymentStatus) ([]model.LoanRepayment, error) {
	return r.queryRepayments(ctx,
		`SELECT `+repaymentColumns+` FROM loan_repayments WHERE status = $1 ORDER BY repayment_date, period`, status)
}

func (r *LoanRepository) ListRepaymentsByStatusAndDate(ctx context.Context, status model.RepaymentStatus, date time.Time) ([]model.LoanRepayment, error) {
	return r.queryRepayments(ctx,
		`SELECT `+repaymentColumns+` FROM loan_repayments WHERE status = $1 AND repayment_date = $2::date ORDER BY period`,
		status, dateArg(date))
}

// ListRepaymentsDueBefore возвращает платежи в статусе status с датой раньше date
func (r *LoanRepository) ListRepaymentsDueBefore(ctx context.Context, status model.RepaymentStatus, date time.Time) ([]model.LoanRepayment, error) {
	return r.queryRepayments(ctx,
		`SELECT `+repaymentColumns+` FROM loan_repayments WHERE status = $1 AND repayment_date < $2::date ORDER BY repayment_date, period`,
		status, dateArg(date))
}

// CountRepayments считает платежи кредита в любом из указанных статусов
func (r *LoanRepository) CountRepayments(ctx context.Context, loanID uuid.UUID, statuses ...model.RepaymentStatus) (int, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loan_repayments WHERE loan_id = $1 AND status = ANY($2)`,
		loanID, pq.Array(names),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count repayments: %w", err)
	}
	return count, nil
}
