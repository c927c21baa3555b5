package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Domain errors for auth flows.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// AuthConfig holds the token settings.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// CredentialSource returns the operator credentials.
type CredentialSource interface {
	Auth(ctx context.Context) (user, pass string, err error)
}

// AuthService issues tokens against the single operator account kept in
// the config store.
type AuthService struct {
	creds CredentialSource
	cfg   AuthConfig
}

func NewAuthService(creds CredentialSource, cfg AuthConfig) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &AuthService{creds: creds, cfg: cfg}
}

// Claims defines JWT claims
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// GenerateToken validates credentials and returns JWT
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (string, error) {
	user, pass, err := s.creds.Auth(ctx)
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(pass)) == 1
	if !userOK || !passOK {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(username)
}

// ParseToken parses JWT and returns the username
func (s *AuthService) ParseToken(accessToken string) (string, error) {
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure HMAC signing is used
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.SigningKey), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}

// helper: issue a signed JWT for the operator
func (s *AuthService) issueToken(username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username: username,
	})
	return token.SignedString([]byte(s.cfg.SigningKey))
}
