package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/service"
)

type DisbursementRunner interface {
	Run(ctx context.Context) (service.RunReport, error)
}

type RepaymentRunner interface {
	Run(ctx context.Context) (service.RepaymentRunReport, error)
}

// JobsHandler ручной запуск ежедневных заданий администратором
type JobsHandler struct {
	disbursement DisbursementRunner
	repayment    RepaymentRunner
	logger       *logrus.Logger
}

func NewJobsHandler(disbursement DisbursementRunner, repayment RepaymentRunner, logger *logrus.Logger) *JobsHandler {
	return &JobsHandler{
		disbursement: disbursement,
		repayment:    repayment,
		logger:       logger,
	}
}

// RegisterRoutes регистрирует маршруты /api/admin/jobs
func (h *JobsHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequireAdmin(h.logger))
	router.HandleFunc("/disbursement/run", h.RunDisbursement).Methods("POST")
	router.HandleFunc("/repayment/run", h.RunRepayment).Methods("POST")
}

func (h *JobsHandler) RunDisbursement(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Ручной запуск выдачи кредитов")
	report, err := h.disbursement.Run(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *JobsHandler) RunRepayment(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Ручной запуск автоматического погашения")
	report, err := h.repayment.Run(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
