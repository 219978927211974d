package auth

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/platform/pkg/common/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrTokenInvalid   = errors.New("invalid or expired token")
	ErrWrongTokenType = errors.New("wrong token type")
)

type Claims struct {
	jwt.RegisteredClaims
	UserID    uuid.UUID `json:"uid"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
	TokenType string    `json:"token_type"`
}

type TokenManager struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFunc    func() time.Time
}

func NewTokenManager(secret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 characters")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{
		signingKey: []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowFunc:    time.Now,
	}, nil
}

func (m *TokenManager) IssuePair(user models.User) (models.TokenPair, error) {
	access, err := m.issue(user, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := m.issue(user, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) IssueAccess(user models.User) (string, error) {
	return m.issue(user, TokenTypeAccess, m.accessTTL)
}

func (m *TokenManager) issue(user models.User, tokenType string, ttl time.Duration) (string, error) {
	now := m.nowFunc()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    user.ID,
		Role:      user.Role,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

func (m *TokenManager) ParseAccess(tokenString string) (*Claims, error) {
	return m.parse(tokenString, TokenTypeAccess)
}

func (m *TokenManager) ParseRefresh(tokenString string) (*Claims, error) {
	return m.parse(tokenString, TokenTypeRefresh)
}

func (m *TokenManager) parse(tokenString, wantType string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.nowFunc))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}
	return &claims, nil
}

// Validate satisfies the middleware's validator interface.
func (m *TokenManager) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	return m.ParseAccess(tokenString)
}

// RemainingLifetime reports how long until the claims expire, used to bound
// blacklist entries.
func (m *TokenManager) RemainingLifetime(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return m.refreshTTL
	}
	remaining := claims.ExpiresAt.Time.Sub(m.nowFunc())
	if remaining < 0 {
		return 0
	}
	return remaining
}
