package adapter

import "context"

// Session is the authenticated principal behind a token pair.
type Session struct {
	ProfileID string
	Email     string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionProvider is the slice of the identity provider this service needs:
// verifying an access token and exchanging a refresh token for a fresh pair.
// Login, registration and token issuance live elsewhere.
type SessionProvider interface {
	Verify(ctx context.Context, accessToken string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, *Session, error)
}
