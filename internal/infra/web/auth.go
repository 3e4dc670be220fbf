package web

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/ports/adapter"
)

// ===== Session/JWT primitives =====

var _ adapter.SessionProvider = (*SessionManager)(nil)

type SessionClaims struct {
	Email    string `json:"email"`
	TokenUse string `json:"token_use"` // access | refresh
	jwt.RegisteredClaims
}

// SessionManager verifies and refreshes the HS256 token pairs minted by the
// identity service. Both sides share auth.hmac_secret.
type SessionManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewSessionManager(secret string, accessTTL, refreshTTL time.Duration) *SessionManager {
	return &SessionManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Mint issues a fresh pair for a profile. Used on refresh and by the seed tool.
func (m *SessionManager) Mint(profileID, email string) (*adapter.TokenPair, error) {
	now := time.Now()
	access, err := m.sign(profileID, email, "access", now, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(profileID, email, "refresh", now, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &adapter.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *SessionManager) sign(profileID, email, use string, now time.Time, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		Email:    email,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *SessionManager) Verify(_ context.Context, accessToken string) (*adapter.Session, error) {
	claims, err := m.parse(accessToken, "access")
	if err != nil {
		return nil, err
	}
	return &adapter.Session{ProfileID: claims.Subject, Email: claims.Email}, nil
}

func (m *SessionManager) Refresh(_ context.Context, refreshToken string) (*adapter.TokenPair, *adapter.Session, error) {
	claims, err := m.parse(refreshToken, "refresh")
	if err != nil {
		return nil, nil, err
	}
	pair, err := m.Mint(claims.Subject, claims.Email)
	if err != nil {
		return nil, nil, err
	}
	return pair, &adapter.Session{ProfileID: claims.Subject, Email: claims.Email}, nil
}

func (m *SessionManager) parse(tok, use string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("invalid token: %w", domain.ErrAuthentication)
	}
	if claims.TokenUse != use {
		return nil, fmt.Errorf("token is not a %s token: %w", use, domain.ErrAuthentication)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject: %w", domain.ErrAuthentication)
	}
	return claims, nil
}
