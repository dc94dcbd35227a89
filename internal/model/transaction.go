package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeLoanDisbursement TransactionType = "loan_disbursement" // выдача кредита
	TransactionTypeLoanRepayment    TransactionType = "loan_repayment"    // платеж по кредиту
)

// Transaction одна проводка по счету. Перевод порождает две проводки
// с общим ReferenceID: списание (Amount < 0) и зачисление.
type Transaction struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	AccountID       string          `json:"account_id" db:"account_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	TransactionType TransactionType `json:"transaction_type" db:"transaction_type"`
	ReferenceID     *uuid.UUID      `json:"reference_id" db:"reference_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
