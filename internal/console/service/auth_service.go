package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/enrollgate/internal/domain"
	"github.com/xela07ax/enrollgate/internal/infra"
	"github.com/xela07ax/enrollgate/internal/infra/auth"
)

// AuthService выдает и проверяет токены операторов консоли.
// Учетки живут в конфигурации, отдельной базы пользователей нет.
type AuthService struct {
	*auth.BaseValidator // Проверка RS256, общая с middleware

	operators  map[string]domain.Operator
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
}

func NewAuthService(cfg infra.AuthConfig) (*AuthService, error) {
	pubKey, err := auth.ParseRSAPublicKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	operators := make(map[string]domain.Operator, len(cfg.Operators))
	for _, op := range cfg.Operators {
		scopes := make(map[string]bool, len(op.Scopes))
		for _, s := range op.Scopes {
			scopes[s] = true
		}
		operators[strings.ToLower(op.Username)] = domain.Operator{
			Username:     op.Username,
			PasswordHash: op.PasswordHash,
			Scopes:       scopes,
		}
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &AuthService{
		BaseValidator: auth.NewBaseValidator(pubKey),
		operators:     operators,
		privateKey:    privKey,
		tokenTTL:      ttl,
	}, nil
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	op, ok := s.operators[strings.ToLower(username)]
	if !ok {
		// Сравниваем с заведомо невалидным хэшем, чтобы время ответа
		// не выдавало существование учетки
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"), []byte(password))
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		UserID: op.Username,
		Scopes: op.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.TokenIssuer,
			Subject:   op.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
