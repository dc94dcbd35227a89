package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/service"
)

type TokenParser interface {
	ParseToken(token string) (service.Principal, error)
}

type principalKey struct{}

// PrincipalFrom возвращает пользователя, положенного в контекст AuthMiddleware
func PrincipalFrom(ctx context.Context) (service.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(service.Principal)
	return p, ok
}

func WithPrincipal(ctx context.Context, p service.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// AuthMiddleware проверяет наличие и валидность JWT токена в заголовке Authorization
func AuthMiddleware(tokens TokenParser, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Получаем заголовок Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Отсутствует заголовок Authorization")
				writeMessage(w, http.StatusUnauthorized, "Заголовок Authorization обязателен")
				return
			}

			// Проверяем формат заголовка
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Warn("Неверный формат заголовка Authorization")
				writeMessage(w, http.StatusUnauthorized, "Неверный формат заголовка Authorization")
				return
			}

			principal, err := tokens.ParseToken(parts[1])
			if err != nil {
				logger.WithError(err).Warn("Неверный токен")
				writeMessage(w, http.StatusUnauthorized, "Неверный токен")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin пропускает только запросы с ролью admin
func RequireAdmin(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok || !principal.IsAdmin() {
				logger.WithField("path", r.URL.Path).Warn("Попытка доступа к операции администратора")
				writeMessage(w, http.StatusForbidden, "Недостаточно прав")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
