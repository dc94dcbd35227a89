package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus состояние заявки на кредит
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"   // ожидает решения
	LoanStatusApproved  LoanStatus = "APPROVED"  // одобрена, ждет выдачи
	LoanStatusRejected  LoanStatus = "REJECTED"  // отклонена
	LoanStatusDisbursed LoanStatus = "DISBURSED" // средства выданы, идет погашение
	LoanStatusClosed    LoanStatus = "CLOSED"    // полностью погашен
	LoanStatusDefault   LoanStatus = "DEFAULT"   // дефолт по просрочке
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:   {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved:  {LoanStatusDisbursed},
	LoanStatusDisbursed: {LoanStatusClosed, LoanStatusDefault},
}

// CanTransitionTo проверяет допустимость перехода по таблице состояний кредита
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для состояний без исходящих переходов
func (s LoanStatus) IsTerminal() bool {
	return len(loanTransitions[s]) == 0
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusPending, LoanStatusApproved, LoanStatusRejected,
		LoanStatusDisbursed, LoanStatusClosed, LoanStatusDefault:
		return true
	}
	return false
}

// LoanApplication заявка на аннуитетный кредит. График платежей хранится
// отдельно и ищется по LoanID.
type LoanApplication struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	UserID             uuid.UUID       `json:"user_id" db:"user_id"`
	AccountID          string          `json:"account_id" db:"account_id"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Term               int             `json:"term" db:"term"`
	InterestRate       decimal.Decimal `json:"interest_rate" db:"interest_rate"` // годовая, в процентах
	StartDate          time.Time       `json:"start_date" db:"start_date"`
	EndDate            time.Time       `json:"end_date" db:"end_date"`
	ApprovalDate       *time.Time      `json:"approval_date,omitempty" db:"approval_date"`
	DisbursementDate   *time.Time      `json:"disbursement_date,omitempty" db:"disbursement_date"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment" db:"monthly_payment"`
	RemainingPrincipal decimal.Decimal `json:"remaining_principal" db:"remaining_principal"`
	Status             LoanStatus      `json:"status" db:"status"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// TransitionTo переводит кредит в новое состояние, если переход допустим
func (l *LoanApplication) TransitionTo(next LoanStatus) error {
	if !l.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: loan %s %s -> %s", ErrInvalidTransition, l.ID, l.Status, next)
	}
	l.Status = next
	return nil
}

// ReducePrincipal уменьшает остаток основного долга, не опуская его ниже нуля
func (l *LoanApplication) ReducePrincipal(principal decimal.Decimal) {
	l.RemainingPrincipal = l.RemainingPrincipal.Sub(principal)
	if l.RemainingPrincipal.IsNegative() {
		l.RemainingPrincipal = decimal.Zero
	}
}

// RepaymentStatus состояние отдельного платежа графика
type RepaymentStatus string

const (
	RepaymentStatusPending RepaymentStatus = "PENDING"
	RepaymentStatusOverdue RepaymentStatus = "OVERDUE"
	RepaymentStatusPaid    RepaymentStatus = "PAID"
)

var repaymentTransitions = map[RepaymentStatus][]RepaymentStatus{
	RepaymentStatusPending: {RepaymentStatusOverdue, RepaymentStatusPaid},
	RepaymentStatusOverdue: {RepaymentStatusPaid},
}

func (s RepaymentStatus) CanTransitionTo(next RepaymentStatus) bool {
	for _, allowed := range repaymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outstanding возвращает true, пока платеж не оплачен
func (s RepaymentStatus) Outstanding() bool {
	return s == RepaymentStatusPending || s == RepaymentStatusOverdue
}

// LoanRepayment один платеж графика погашения
type LoanRepayment struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	LoanID              uuid.UUID       `json:"loan_id" db:"loan_id"`
	Period              int             `json:"period" db:"period"`
	RepaymentDate       time.Time       `json:"repayment_date" db:"repayment_date"`
	Amount              decimal.Decimal `json:"amount" db:"amount"`
	Principal           decimal.Decimal `json:"principal" db:"principal"`
	Interest            decimal.Decimal `json:"interest" db:"interest"`
	LateFee             decimal.Decimal `json:"late_fee" db:"late_fee"`
	Status              RepaymentStatus `json:"status" db:"status"`
	ActualRepaymentDate *time.Time      `json:"actual_repayment_date,omitempty" db:"actual_repayment_date"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

func (r *LoanRepayment) TransitionTo(next RepaymentStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: repayment %s %s -> %s", ErrInvalidTransition, r.ID, r.Status, next)
	}
	r.Status = next
	return nil
}

// MarkPaid фиксирует оплату. Повторная оплата возвращает ErrAlreadyPaid.
func (r *LoanRepayment) MarkPaid(on time.Time) error {
	if r.Status == RepaymentStatusPaid {
		return fmt.Errorf("%w: repayment %s", ErrAlreadyPaid, r.ID)
	}
	if err := r.TransitionTo(RepaymentStatusPaid); err != nil {
		return err
	}
	paidOn := DateOf(on)
	r.ActualRepaymentDate = &paidOn
	return nil
}

// AmountDue сумма к списанию: платеж плюс начисленная пеня
func (r *LoanRepayment) AmountDue() decimal.Decimal {
	return r.Amount.Add(r.LateFee)
}

// ApplyLoanRequest тело запроса на оформление кредита
type ApplyLoanRequest struct {
	AccountID  string           `json:"account_id" validate:"required"`
	Amount     decimal.Decimal  `json:"amount" validate:"required,gt=0"`
	Term       int              `json:"term" validate:"required,gte=1"`
	AnnualRate *decimal.Decimal `json:"annual_rate,omitempty"`
	StartDate  string           `json:"start_date" validate:"required"` // YYYY-MM-DD
}

// Validate проверяет запрос и возвращает дату начала
func (r *ApplyLoanRequest) Validate() (time.Time, error) {
	if r.AccountID == "" {
		return time.Time{}, fmt.Errorf("%w: account_id is required", ErrInvalidLoanTerms)
	}
	if !r.Amount.IsPositive() {
		return time.Time{}, fmt.Errorf("%w: amount must be positive", ErrInvalidLoanTerms)
	}
	if r.Term < 1 {
		return time.Time{}, fmt.Errorf("%w: term must be at least one month", ErrInvalidLoanTerms)
	}
	if r.AnnualRate != nil && r.AnnualRate.IsNegative() {
		return time.Time{}, fmt.Errorf("%w: annual_rate must not be negative", ErrInvalidLoanTerms)
	}
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrInvalidLoanTerms)
	}
	return start, nil
}

// RateQuote предлагаемая ставка: ключевая ставка ЦБ плюс маржа банка
type RateQuote struct {
	KeyRate    decimal.Decimal `json:"key_rate"`
	Margin     decimal.Decimal `json:"margin"`
	AnnualRate decimal.Decimal `json:"annual_rate"`
	Fallback   bool            `json:"fallback"`
}
