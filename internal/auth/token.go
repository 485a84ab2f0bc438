package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens when none is configured.
const DefaultTokenTTL = time.Hour

// Claims are the JWT claims carried by session tokens.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	ID       string
	Username string
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a [TokenIssuer]. A non-positive ttl falls back to [DefaultTokenTTL].
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: jwt secret is required", shared.ErrMissingCredentials)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for user.
func (t *TokenIssuer) Issue(user *models.User) (string, error) {
	now := t.now()
	claims := Claims{
		ID:       user.ID(),
		Username: user.Username(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns the identity it carries.
//
// Expired tokens return [shared.ErrTokenExpired]; anything else that fails verification returns [shared.ErrNotAuthenticated].
func (t *TokenIssuer) Verify(token string) (*Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	case claims.ID == "":
		return nil, fmt.Errorf("%w: token has no user id", shared.ErrNotAuthenticated)
	}

	return &Identity{ID: claims.ID, Username: claims.Username}, nil
}
