package service

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/integrity-gate/internal/domain"
	"github.com/xela07ax/integrity-gate/internal/infra"
	"github.com/xela07ax/integrity-gate/internal/infra/auth"
)

// AuthService выдает и проверяет RS256 токены консоли аудита.
// Источник правды по учетке оператора — конфиг (bcrypt-хеш пароля);
// своей пользовательской базы у консоли нет.
type AuthService struct {
	*auth.BaseValidator

	operatorLogin string
	passwordHash  string
	privateKey    *rsa.PrivateKey
	tokenTTL      time.Duration
}

func NewAuthService(cfg infra.AuthConfig) (*AuthService, error) {
	pubKey, err := auth.ParseRSAPublicKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("auth_service: %w", err)
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("auth_service: %w", err)
	}
	if cfg.OperatorLogin == "" || cfg.OperatorPasswordHash == "" {
		return nil, errors.New("auth_service: operator credentials are not configured")
	}

	return &AuthService{
		BaseValidator: auth.NewBaseValidator(pubKey),
		operatorLogin: cfg.OperatorLogin,
		passwordHash:  cfg.OperatorPasswordHash,
		privateKey:    privKey,
		tokenTTL:      cfg.TokenTTL,
	}, nil
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация. Сравнение логина — constant time, чтобы не
	// подсвечивать перебор; пароль проверяет bcrypt
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.operatorLogin)) != 1 {
		// bcrypt все равно гоняем, выравнивая время ответа
		bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password))
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 2. Формирование Claims
	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		UserID: username,
		Scopes: map[string]bool{"evidence:read": true},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "igw-console",
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 3. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
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
