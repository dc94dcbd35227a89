package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Роли в claims токена
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Claims JWT claims: Subject содержит идентификатор пользователя
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal пользователь, от имени которого выполняется запрос
type Principal struct {
	UserID uuid.UUID
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// TokenService выпускает и проверяет JWT токены
type TokenService struct {
	jwtSecret   string
	tokenExpiry time.Duration
	logger      *logrus.Logger
}

func NewTokenService(jwtSecret string, tokenExpiry time.Duration, logger *logrus.Logger) *TokenService {
	return &TokenService{
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
		logger:      logger,
	}
}

// GenerateToken Генерация JWT токена
func (s *TokenService) GenerateToken(userID uuid.UUID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ParseToken Разбор и валидация JWT токена
func (s *TokenService) ParseToken(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		s.logger.WithError(err).Warn("Невалидный JWT токен")
		return Principal{}, fmt.Errorf("невалидный токен: %w", err)
	}

	// Извлечение ID пользователя
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.logger.WithError(err).Error("Не удалось извлечь идентификатор пользователя из токена")
		return Principal{}, fmt.Errorf("некорректные claims токена: %w", err)
	}

	role := claims.Role
	if role == "" {
		role = RoleCustomer
	}

	s.logger.WithField("user_id", userID).Debug("JWT токен успешно распознан")
	return Principal{UserID: userID, Role: role}, nil
}
