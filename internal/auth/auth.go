// Package auth turns request credentials into a stable user identifier.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator verifies the credentials on an upgrade or API request.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// AccountChecker confirms a verified subject still has an account.
type AccountChecker interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// JWTAuthenticator accepts HS256 tokens whose subject is the user id, read from
// "Authorization: Bearer" or, for browsers that cannot set headers on websocket
// upgrades, the token query parameter.
type JWTAuthenticator struct {
	secret   []byte
	accounts AccountChecker
	now      func() time.Time
}

type Option func(*JWTAuthenticator)

func WithAccounts(c AccountChecker) Option { return func(a *JWTAuthenticator) { a.accounts = c } }

func WithClock(now func() time.Time) Option {
	return func(a *JWTAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewJWT(secret string, opts ...Option) (*JWTAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	a := &JWTAuthenticator{secret: []byte(secret), now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	if a.accounts != nil {
		ok, err := a.accounts.UserExists(r.Context(), sub)
		if err != nil {
			return "", fmt.Errorf("account lookup: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("%w: unknown user", ErrUnauthenticated)
		}
	}
	return sub, nil
}

// Issue signs a token for userID valid for ttl.
func (a *JWTAuthenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func tokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if v, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(v)
		}
		return h
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
