package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
	"banking-loans/internal/service"
)

// Loans операции над кредитами, доступные через HTTP
type Loans interface {
	Apply(ctx context.Context, in service.ApplyLoanInput) (*model.LoanApplication, error)
	Approve(ctx context.Context, loanID uuid.UUID) (*model.LoanApplication, error)
	Reject(ctx context.Context, loanID uuid.UUID) (*model.LoanApplication, error)
	Repay(ctx context.Context, loanID uuid.UUID, repaymentDate time.Time) (*model.LoanRepayment, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*model.LoanApplication, error)
	GetRepaymentSchedule(ctx context.Context, loanID uuid.UUID) ([]model.LoanRepayment, error)
	GetAllLoans(ctx context.Context) ([]model.LoanApplication, error)
	GetLoansByUserID(ctx context.Context, userID uuid.UUID) ([]model.LoanApplication, error)
	GetPendingLoans(ctx context.Context) ([]model.LoanApplication, error)
	QuoteRate(ctx context.Context) model.RateQuote
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
}

type LoanHandler struct {
	loans  Loans
	logger *logrus.Logger
}

func NewLoanHandler(loans Loans, logger *logrus.Logger) *LoanHandler {
	return &LoanHandler{
		loans:  loans,
		logger: logger,
	}
}

// RegisterRoutes регистрирует маршруты /api/loans. Статические пути
// регистрируются раньше /{loanId}.
func (h *LoanHandler) RegisterRoutes(router *mux.Router) {
	admin := RequireAdmin(h.logger)

	router.HandleFunc("", h.Apply).Methods("POST")
	router.HandleFunc("", h.GetUserLoans).Methods("GET")
	router.HandleFunc("/rate-quote", h.GetRateQuote).Methods("GET")
	router.Handle("/all", admin(http.HandlerFunc(h.GetAllLoans))).Methods("GET")
	router.Handle("/pending", admin(http.HandlerFunc(h.GetPendingLoans))).Methods("GET")

	router.HandleFunc("/{loanId}", h.GetLoan).Methods("GET")
	router.HandleFunc("/{loanId}/schedule", h.GetSchedule).Methods("GET")
	router.HandleFunc("/{loanId}/repay", h.Repay).Methods("POST")
	router.Handle("/{loanId}/approve", admin(http.HandlerFunc(h.Approve))).Methods("PUT")
	router.Handle("/{loanId}/reject", admin(http.HandlerFunc(h.Reject))).Methods("PUT")
}

func (h *LoanHandler) Apply(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}

	var req model.ApplyLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Warn("Не удалось декодировать заявку на кредит")
		writeMessage(w, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	startDate, err := req.Validate()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	rate := h.loans.QuoteRate(r.Context()).AnnualRate
	if req.AnnualRate != nil {
		rate = *req.AnnualRate
	}

	in := service.ApplyLoanInput{
		UserID:     principal.UserID,
		AccountID:  req.AccountID,
		Amount:     req.Amount,
		Term:       req.Term,
		AnnualRate: rate,
		StartDate:  startDate,
	}
	// Администратор оформляет заявку от имени владельца счета
	if principal.IsAdmin() {
		in.UserID = uuid.Nil
	}

	loan, err := h.loans.Apply(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (h *LoanHandler) GetUserLoans(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}

	loans, err := h.loans.GetLoansByUserID(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *LoanHandler) GetAllLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.GetAllLoans(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *LoanHandler) GetPendingLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.GetPendingLoans(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *LoanHandler) GetRateQuote(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.loans.QuoteRate(r.Context()))
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}

	schedule, err := h.loans.GetRepaymentSchedule(r.Context(), loan.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// Repay оплачивает платеж графика: POST /{loanId}/repay?repaymentDate=YYYY-MM-DD
func (h *LoanHandler) Repay(w http.ResponseWriter, r *http.Request) {
	repaymentDate, err := model.ParseDate(r.URL.Query().Get("repaymentDate"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Параметр repaymentDate должен быть в формате YYYY-MM-DD")
		return
	}

	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}

	repayment, err := h.loans.Repay(r.Context(), loan.ID, repaymentDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, repayment)
}

func (h *LoanHandler) Approve(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	loan, err := h.loans.Approve(r.Context(), loanID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) Reject(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	loan, err := h.loans.Reject(r.Context(), loanID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) loanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	loanID, err := uuid.Parse(mux.Vars(r)["loanId"])
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Неверный ID кредита")
		return uuid.Nil, false
	}
	return loanID, true
}

// ownedLoan загружает кредит из пути и проверяет, что он принадлежит
// пользователю. Администратору доступны все кредиты.
func (h *LoanHandler) ownedLoan(w http.ResponseWriter, r *http.Request) (*model.LoanApplication, bool) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Требуется авторизация")
		return nil, false
	}
	loanID, ok := h.loanID(w, r)
	if !ok {
		return nil, false
	}

	loan, err := h.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	if !principal.IsAdmin() && loan.UserID != principal.UserID {
		writeError(w, h.logger, fmt.Errorf("%w: loan %s", model.ErrForbidden, loan.ID))
		return nil, false
	}
	return loan, true
}
