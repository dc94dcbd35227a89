package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/config"
	"banking-loans/internal/handler"
	"banking-loans/internal/repository"
	"banking-loans/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Загрузка конфигурации приложения
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	// Подключение к PostgreSQL
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer db.Close()

	// Проверка соединения с БД
	if err := db.Ping(); err != nil {
		logger.Fatalf("Ошибка проверки соединения с БД: %v", err)
	}

	store := repository.NewPostgresStore(db, logger)
	if err := store.Migrate(context.Background()); err != nil {
		logger.Fatalf("Ошибка применения схемы БД: %v", err)
	}

	// Инициализация сервисов
	logger.Info("Инициализация сервисов...")
	var rates service.KeyRateSource
	if cfg.CBREnabled {
		rates = service.NewCBRClient(service.CBRDailyInfoURL, logger)
	}
	policy := service.LoanPolicy{
		FloatAccountID:   cfg.Loans.FloatAccountID,
		MinLeadDays:      cfg.Loans.MinLeadDays,
		DefaultAfterDays: cfg.Loans.DefaultAfterDays,
		RateMargin:       cfg.Loans.RateMargin,
		DefaultKeyRate:   cfg.Loans.DefaultKeyRate,
	}
	ledger := service.NewLedgerService(logger)
	emailSender := service.NewEmailSender(cfg.SMTP, logger)
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.TokenExpiry, logger)
	loanService := service.NewLoanService(store, ledger, emailSender, rates, policy, nil, logger)
	disbursementJob := service.NewDisbursementJob(store, loanService, ledger, logger)
	repaymentJob := service.NewRepaymentJob(store, loanService, ledger, logger)

	// Инициализация HTTP обработчиков
	loanHandler := handler.NewLoanHandler(loanService, logger)
	accountHandler := handler.NewAccountHandler(loanService, logger)
	jobsHandler := handler.NewJobsHandler(disbursementJob, repaymentJob, logger)

	// Настройка маршрутизатора
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	// Защищенные API маршруты (требуется JWT токен)
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(handler.AuthMiddleware(tokens, logger))
	loanHandler.RegisterRoutes(apiRouter.PathPrefix("/loans").Subrouter())
	accountHandler.RegisterRoutes(apiRouter.PathPrefix("/accounts").Subrouter())
	jobsHandler.RegisterRoutes(apiRouter.PathPrefix("/admin/jobs").Subrouter())

	// Ежедневные задания выдачи и погашения кредитов
	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(cfg.Loans.DisbursementCron, func() {
		if _, err := disbursementJob.Run(jobsCtx); err != nil {
			logger.WithError(err).Error("Ошибка задания выдачи кредитов")
		}
	}); err != nil {
		logger.Fatalf("Ошибка настройки планировщика выдачи: %v", err)
	}
	if _, err := c.AddFunc(cfg.Loans.RepaymentCron, func() {
		if _, err := repaymentJob.Run(jobsCtx); err != nil {
			logger.WithError(err).Error("Ошибка задания погашения кредитов")
		}
	}); err != nil {
		logger.Fatalf("Ошибка настройки планировщика погашения: %v", err)
	}
	c.Start()

	// Настройка и запуск HTTP сервера
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Запуск сервера на %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Ошибка сервера: %v", err)
		}
	}()

	// Ожидание сигналов для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Завершение работы сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Ошибка при завершении работы сервера: %v", err)
	}

	// Ждем завершения запущенных заданий; по таймауту прерываем их
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("Задания не завершились вовремя, прерываем")
		cancelJobs()
	}
	if err := loanService.WaitNotifications(shutdownCtx); err != nil {
		logger.Warn("Не все email уведомления отправлены до остановки")
	}
	logger.Info("Сервер успешно остановлен")
}
