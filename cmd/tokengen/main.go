// Команда tokengen выпускает JWT токен для пользователя с секретом из конфигурации.
//
//	tokengen -user 1b4e28ba-2fa1-11d2-883f-0016d3cca427 -role admin
package main

import (
	"flag"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"banking-loans/internal/config"
	"banking-loans/internal/service"
)

func main() {
	userFlag := flag.String("user", "", "идентификатор пользователя")
	roleFlag := flag.String("role", service.RoleCustomer, "роль: customer или admin")
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		logger.Fatalf("Неверный идентификатор пользователя: %v", err)
	}
	if *roleFlag != service.RoleCustomer && *roleFlag != service.RoleAdmin {
		logger.Fatalf("Неизвестная роль %q", *roleFlag)
	}

	token, err := service.NewTokenService(cfg.JWTSecret, cfg.TokenExpiry, logger).GenerateToken(userID, *roleFlag)
	if err != nil {
		logger.Fatalf("Ошибка генерации токена: %v", err)
	}
	fmt.Println(token)
}
