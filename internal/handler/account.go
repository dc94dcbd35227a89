package handler

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
)

// AccountHandler показывает состояние счета заемщика
type AccountHandler struct {
	loans  Loans
	logger *logrus.Logger
}

func NewAccountHandler(loans Loans, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{
		loans:  loans,
		logger: logger,
	}
}

// RegisterRoutes регистрирует маршруты для работы со счетами
func (h *AccountHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/{accountId}", h.GetAccount).Methods("GET")
}

// GetAccount возвращает баланс, статус и признак просрочки
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}

	account, err := h.loans.GetAccount(r.Context(), mux.Vars(r)["accountId"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !principal.IsAdmin() && account.UserID != principal.UserID {
		writeError(w, h.logger, fmt.Errorf("%w: account %s", model.ErrForbidden, account.ID))
		return
	}

	writeJSON(w, http.StatusOK, account)
}
