// Package loancalc считает аннуитетный платеж, график погашения и пеню.
// Все функции чистые: результат зависит только от аргументов.
package loancalc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"banking-loans/internal/model"
)

const (
	// точность промежуточной ставки
	rateScale = 10
	// точность платежа до финального округления
	paymentScale = 4
	moneyScale   = 2
)

var (
	ErrInvalidTerm       = errors.New("term must be at least one month")
	ErrNegativePrincipal = errors.New("principal must not be negative")
	ErrNegativeRate      = errors.New("interest rate must not be negative")

	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
	dailyPenalty = decimal.RequireFromString("0.0005")
	one          = decimal.NewFromInt(1)
)

// MonthlyRate переводит годовую ставку в процентах в месячную долю
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.DivRound(hundred, rateScale).DivRound(monthsInYear, rateScale)
}

// MonthlyPayment рассчитывает аннуитетный платеж:
//
//	payment = P * r * (1+r)^n / ((1+r)^n - 1)
//
// При нулевой ставке платеж равен P/n. Результат округлен до копеек (half-up).
func MonthlyPayment(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if termMonths <= 0 {
		return decimal.Zero, ErrInvalidTerm
	}
	if principal.IsNegative() {
		return decimal.Zero, ErrNegativePrincipal
	}
	if annualRatePercent.IsNegative() {
		return decimal.Zero, ErrNegativeRate
	}

	term := decimal.NewFromInt(int64(termMonths))
	if annualRatePercent.IsZero() {
		return principal.DivRound(term, moneyScale), nil
	}

	monthlyRate := MonthlyRate(annualRatePercent)
	factor, err := one.Add(monthlyRate).PowInt32(int32(termMonths))
	if err != nil {
		return decimal.Zero, fmt.Errorf("annuity factor: %w", err)
	}
	numerator := principal.Mul(monthlyRate).Mul(factor)
	denominator := factor.Sub(one)

	return numerator.DivRound(denominator, paymentScale).Round(moneyScale), nil
}

// Schedule строит полный график погашения кредита. Первый платеж через месяц
// после StartDate. В последнем периоде гасится весь остаток основного долга,
// поэтому его сумма может отличаться от ежемесячного платежа.
// Идентификаторы записей назначает вызывающий код при сохранении.
func Schedule(loan model.LoanApplication) ([]model.LoanRepayment, error) {
	if loan.Term <= 0 {
		return nil, ErrInvalidTerm
	}
	if loan.Amount.IsNegative() {
		return nil, ErrNegativePrincipal
	}

	monthlyRate := MonthlyRate(loan.InterestRate)
	remaining := loan.Amount
	payment := loan.MonthlyPayment
	// каждая дата отсчитывается от предыдущей: 31.01 -> 28.02 -> 28.03
	due := model.AddMonths(model.DateOf(loan.StartDate), 1)

	schedule := make([]model.LoanRepayment, 0, loan.Term)
	for i := 1; i <= loan.Term; i++ {
		interest := remaining.Mul(monthlyRate).Round(moneyScale)
		principal := payment.Sub(interest)
		amount := payment
		if i == loan.Term {
			principal = remaining
			amount = principal.Add(interest)
		}

		schedule = append(schedule, model.LoanRepayment{
			LoanID:        loan.ID,
			Period:        i,
			RepaymentDate: due,
			Amount:        amount,
			Principal:     principal,
			Interest:      interest,
			LateFee:       decimal.Zero,
			Status:        model.RepaymentStatusPending,
		})
		remaining = remaining.Sub(principal)
		due = model.AddMonths(due, 1)
	}

	return schedule, nil
}

// LateFee пеня 0.05% от суммы платежа за каждый день просрочки
func LateFee(amount decimal.Decimal, overdueDays int) decimal.Decimal {
	if overdueDays <= 0 {
		return decimal.Zero
	}
	return amount.Mul(dailyPenalty).Mul(decimal.NewFromInt(int64(overdueDays))).Round(moneyScale)
}
