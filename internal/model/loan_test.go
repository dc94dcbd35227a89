package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanStatusTransitions(t *testing.T) {
	allowed := map[LoanStatus][]LoanStatus{
		LoanStatusPending:   {LoanStatusApproved, LoanStatusRejected},
		LoanStatusApproved:  {LoanStatusDisbursed},
		LoanStatusDisbursed: {LoanStatusClosed, LoanStatusDefault},
	}
	all := []LoanStatus{
		LoanStatusPending, LoanStatusApproved, LoanStatusRejected,
		LoanStatusDisbursed, LoanStatusClosed, LoanStatusDefault,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, LoanStatusRejected.IsTerminal())
	assert.True(t, LoanStatusClosed.IsTerminal())
	assert.True(t, LoanStatusDefault.IsTerminal())
	assert.False(t, LoanStatusDisbursed.IsTerminal())
	assert.False(t, LoanStatus("ACTIVE").Valid())
}

func TestLoanApplication_TransitionTo(t *testing.T) {
	loan := &LoanApplication{Status: LoanStatusApproved}

	err := loan.TransitionTo(LoanStatusApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, LoanStatusApproved, loan.Status)

	require.NoError(t, loan.TransitionTo(LoanStatusDisbursed))
	assert.Equal(t, LoanStatusDisbursed, loan.Status)
}

func TestLoanApplication_ReducePrincipal(t *testing.T) {
	loan := &LoanApplication{RemainingPrincipal: decimal.NewFromInt(100)}

	loan.ReducePrincipal(decimal.NewFromInt(40))
	assert.True(t, loan.RemainingPrincipal.Equal(decimal.NewFromInt(60)))

	loan.ReducePrincipal(decimal.NewFromInt(80))
	assert.True(t, loan.RemainingPrincipal.IsZero())
}

func TestRepayment_MarkPaid(t *testing.T) {
	paidOn := time.Date(2025, 5, 3, 17, 45, 0, 0, time.UTC)

	r := &LoanRepayment{Status: RepaymentStatusOverdue}
	require.NoError(t, r.MarkPaid(paidOn))
	assert.Equal(t, RepaymentStatusPaid, r.Status)
	require.NotNil(t, r.ActualRepaymentDate)
	assert.Equal(t, time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC), *r.ActualRepaymentDate)

	err := r.MarkPaid(paidOn.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC), *r.ActualRepaymentDate)
}

func TestRepaymentStatusTransitions(t *testing.T) {
	assert.True(t, RepaymentStatusPending.CanTransitionTo(RepaymentStatusOverdue))
	assert.True(t, RepaymentStatusPending.CanTransitionTo(RepaymentStatusPaid))
	assert.True(t, RepaymentStatusOverdue.CanTransitionTo(RepaymentStatusPaid))
	assert.False(t, RepaymentStatusOverdue.CanTransitionTo(RepaymentStatusPending))
	assert.False(t, RepaymentStatusPaid.CanTransitionTo(RepaymentStatusOverdue))
	assert.False(t, RepaymentStatusPaid.CanTransitionTo(RepaymentStatusPending))

	assert.True(t, RepaymentStatusOverdue.Outstanding())
	assert.False(t, RepaymentStatusPaid.Outstanding())
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		start time.Time
		n     int
		want  time.Time
	}{
		{time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), 1, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), 3, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC), 12, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AddMonths(tt.start, tt.n), "%s + %d", tt.start.Format(DateLayout), tt.n)
	}
}

func TestDaysBetween(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, DaysBetween(due, time.Date(2025, 3, 4, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 61, DaysBetween(due, due.AddDate(0, 0, 61)))
	assert.Equal(t, -1, DaysBetween(due, due.AddDate(0, 0, -1)))
}
