package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banking-loans/internal/service"
)

type stubDisbursement struct {
	report service.RunReport
	err    error
}

func (s stubDisbursement) Run(ctx context.Context) (service.RunReport, error) {
	return s.report, s.err
}

type stubRepayment struct {
	report service.RepaymentRunReport
}

func (s stubRepayment) Run(ctx context.Context) (service.RepaymentRunReport, error) {
	return s.report, nil
}

func TestJobsHandler(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	srv := newTestServer(t)

	jobs := NewJobsHandler(
		stubDisbursement{err: service.ErrJobRunning},
		stubRepayment{report: service.RepaymentRunReport{Defaulted: 2}},
		logger,
	)
	api := srv.router.PathPrefix("/api/admin/jobs").Subrouter()
	api.Use(AuthMiddleware(srv.tokens, logger))
	jobs.RegisterRoutes(api)

	rec := srv.do(t, http.MethodPost, "/api/admin/jobs/repayment/run", "", uuid.New(), service.RoleCustomer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/admin/jobs/repayment/run", "", uuid.New(), service.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	var report service.RepaymentRunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Defaulted)

	rec = srv.do(t, http.MethodPost, "/api/admin/jobs/disbursement/run", "", uuid.New(), service.RoleAdmin)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
