package model

import (
	"time"

	"github.com/google/uuid"
)

// User владелец счетов. Регистрация пользователей живет в другом сервисе,
// здесь нужен только адрес для уведомлений.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
