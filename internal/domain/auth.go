package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "admin": true или "requests.decide": true
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator — учетка оператора консоли. Источник правды — конфигурация,
// отдельной таблицы пользователей у системы нет.
type Operator struct {
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // bcrypt, никогда не отправляем на фронт
	Scopes       map[string]bool `json:"scopes"`
}
