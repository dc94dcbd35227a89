package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config содержит настройки приложения
type Config struct {
	DBHost      string        // Хост базы данных
	DBPort      string        // Порт базы данных
	DBUser      string        // Пользователь базы данных
	DBPassword  string        // Пароль базы данных
	DBName      string        // Имя базы данных
	DBSSLMode   string        // Режим SSL для подключения к базе
	HTTPAddr    string        // Адрес HTTP сервера
	JWTSecret   string        // Секрет для JWT
	TokenExpiry time.Duration // Время жизни токена
	LogLevel    logrus.Level

	Loans LoanConfig
	SMTP  SMTPConfig

	CBREnabled bool // Запрашивать ключевую ставку у ЦБ РФ
}

// LoanConfig параметры кредитования и расписание заданий
type LoanConfig struct {
	FloatAccountID   string
	MinLeadDays      int
	DefaultAfterDays int
	RateMargin       decimal.Decimal
	DefaultKeyRate   decimal.Decimal
	DisbursementCron string
	RepaymentCron    string
}

type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	Enabled            bool
	InsecureSkipVerify bool
}

// LoadConfig загружает конфигурацию из .env файла и переменных окружения
func LoadConfig() (*Config, error) {
	// Загружаем переменные окружения из .env файла
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Файл .env не найден")
	}
	return FromEnv()
}

// FromEnv собирает конфигурацию из переменных окружения
func FromEnv() (*Config, error) {
	// Парсим время жизни токена
	expiry, err := time.ParseDuration(os.Getenv("TOKEN_EXPIRY"))
	if err != nil {
		expiry = 24 * time.Hour // По умолчанию 24 часа
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	minLead, err := getInt("LOAN_MIN_LEAD_DAYS", 15)
	if err != nil {
		return nil, err
	}
	defaultAfter, err := getInt("LOAN_DEFAULT_AFTER_DAYS", 60)
	if err != nil {
		return nil, err
	}
	margin, err := getDecimal("RATE_MARGIN", "5")
	if err != nil {
		return nil, err
	}
	keyRate, err := getDecimal("DEFAULT_KEY_RATE", "16")
	if err != nil {
		return nil, err
	}
	smtpPort, err := getInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	// Создаем объект конфигурации
	config := &Config{
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "banking_loans"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:   getEnv("JWT_SECRET", "default-secret-key"),
		TokenExpiry: expiry,
		LogLevel:    level,
		Loans: LoanConfig{
			FloatAccountID:   getEnv("LOAN_FLOAT_ACCOUNT_ID", "LOAN_BANK_ACCOUNT"),
			MinLeadDays:      minLead,
			DefaultAfterDays: defaultAfter,
			RateMargin:       margin,
			DefaultKeyRate:   keyRate,
			DisbursementCron: getEnv("DISBURSEMENT_CRON", "0 1 * * *"),
			RepaymentCron:    getEnv("REPAYMENT_CRON", "0 2 * * *"),
		},
		SMTP: SMTPConfig{
			Host:               os.Getenv("SMTP_HOST"),
			Port:               smtpPort,
			User:               os.Getenv("SMTP_USER"),
			Password:           os.Getenv("SMTP_PASS"),
			Enabled:            os.Getenv("EMAIL_SENDER_ENABLED") == "true",
			InsecureSkipVerify: os.Getenv("INSECURE_SKIP_VERIFY") == "true",
		},
		CBREnabled: os.Getenv("CBR_ENABLED") == "true",
	}

	return config, nil
}

// DSN строка подключения для lib/pq
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
