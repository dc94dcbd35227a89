package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"banking-loans/internal/model"
	"banking-loans/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor переводит доменную ошибку в HTTP код
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrLoanNotFound),
		errors.Is(err, model.ErrRepaymentNotFound),
		errors.Is(err, model.ErrAccountNotFound),
		errors.Is(err, model.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrLoanStatus),
		errors.Is(err, model.ErrAlreadyPaid),
		errors.Is(err, model.ErrAccountStatus),
		errors.Is(err, service.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidDate),
		errors.Is(err, model.ErrInvalidLoanTerms):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Внутренняя ошибка при обработке запроса")
		writeMessage(w, status, "Внутренняя ошибка сервера")
		return
	}
	logger.WithError(err).WithField("status", status).Warn("Запрос отклонен")
	writeMessage(w, status, err.Error())
}

// writeMessage ошибка в формате {"error": "..."}
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
