package model

import "errors"

// Доменные ошибки. Обработчики HTTP переводят их в коды ответа через errors.Is.
var (
	ErrLoanNotFound      = errors.New("loan not found")
	ErrRepaymentNotFound = errors.New("repayment not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrUserNotFound      = errors.New("user not found")

	// ErrForbidden счет или кредит принадлежит другому пользователю
	ErrForbidden = errors.New("resource belongs to another user")

	// ErrAccountStatus счет не в состоянии ACTIVE
	ErrAccountStatus = errors.New("account is not active")

	// ErrAlreadyPaid платеж уже оплачен
	ErrAlreadyPaid = errors.New("repayment already paid")

	// ErrLoanStatus операция недопустима в текущем состоянии кредита
	ErrLoanStatus = errors.New("operation not allowed in current loan status")

	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidDate         = errors.New("start date is too early")
	ErrInvalidLoanTerms    = errors.New("invalid loan terms")
	ErrInsufficientBalance = errors.New("insufficient balance")
)
