package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusFrozen AccountStatus = "FROZEN"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// Account счет клиента или служебный счет банка (например, LOAN_BANK_ACCOUNT)
type Account struct {
	ID         string          `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	Status     AccountStatus   `json:"status" db:"status"`
	HasOverdue bool            `json:"has_overdue" db:"has_overdue"` // выставляется при дефолте и не сбрасывается
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
