// Package auth verifies the identity tokens issued by the sign-in provider.
// Tokens are HS256 JWTs carrying the user id in "sub", the display name in
// "name" and the photo URL in "picture".
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edgeee/commentsystem/widget"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity token claims.
type Claims struct {
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Authority verifies and issues identity tokens.
type Authority struct {
	Secret []byte
	// Issuer, when set, must match the "iss" claim.
	Issuer string
	// Leeway allowed for clock skew on time based claims.
	Leeway time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func (a *Authority) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Verify checks the token signature and claims and returns the signed in
// user. Failures are *widget.AuthError.
func (a *Authority) Verify(token string) (widget.User, error) {
	if len(a.Secret) == 0 {
		return widget.User{}, &widget.AuthError{Err: errors.New("no signing secret configured")}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.Leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	})
	if err != nil {
		return widget.User{}, &widget.AuthError{Err: err}
	}
	if claims.Subject == "" || strings.TrimSpace(claims.Name) == "" {
		return widget.User{}, &widget.AuthError{Err: errors.New("token has no subject or name")}
	}
	return widget.User{ID: claims.Subject, DisplayName: claims.Name, PhotoURL: claims.Picture}, nil
}

// Issue signs a token for the user valid for ttl.
func (a *Authority) Issue(u widget.User, ttl time.Duration) (string, error) {
	if len(a.Secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := a.now()
	claims := Claims{
		Name:    u.DisplayName,
		Picture: u.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    a.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

type ctxKey struct{}

type identity struct {
	user widget.User
	err  error
}

// Middleware verifies the bearer token of each request and records the
// outcome in the request context. Requests are never rejected here; handlers
// that need a user call FromContext.
func (a *Authority) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity{err: &widget.AuthError{Err: widget.ErrNotSignedIn}}
			if token, ok := bearerToken(r); ok {
				u, err := a.Verify(token)
				if err != nil {
					logger.Warn("Could not verify identity token", "error", err.Error())
				}
				id = identity{user: u, err: err}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		})
	}
}

// WithUser returns a context carrying a signed in user.
func WithUser(ctx context.Context, u widget.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity{user: u})
}

// FromContext returns the signed in user, or the *widget.AuthError explaining
// why there is none.
func FromContext(ctx context.Context) (widget.User, error) {
	id, ok := ctx.Value(ctxKey{}).(identity)
	if !ok {
		return widget.User{}, &widget.AuthError{Err: widget.ErrNotSignedIn}
	}
	return id.user, id.err
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
