package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

var ErrMissingToken = fmt.Errorf("%w: missing token", domain.ErrUnauthorized)

// Claims carried by identity tokens. Subject is the user id.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256-signed identity tokens.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: token validation failed: %v", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	id, err := domain.NewIdentity(claims.Subject, claims.Name, claims.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return id, nil
}

// Sign issues a token for the identity. Used by tooling and tests.
func (v *JWTVerifier) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  id.DisplayName,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type timeoutVerifier struct {
	next    core.IdentityVerifier
	timeout time.Duration
}

// WithTimeout bounds every verification by d.
func WithTimeout(next core.IdentityVerifier, d time.Duration) core.IdentityVerifier {
	if d <= 0 {
		return next
	}
	return &timeoutVerifier{next: next, timeout: d}
}

type verifyResult struct {
	id  *domain.Identity
	err error
}

func (t *timeoutVerifier) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan verifyResult, 1)
	go func() {
		id, err := t.next.Verify(ctx, token)
		done <- verifyResult{id, err}
	}()
	select {
	case r := <-done:
		return r.id, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: verification timed out: %v", domain.ErrUnauthorized, ctx.Err())
	}
}

// ExtractToken reads the identity token from an upgrade request: an
// Authorization bearer header, a token query parameter, or the second
// Sec-WebSocket-Protocol value for browsers.
func ExtractToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.Fields(h)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", fmt.Errorf("%w: malformed authorization header", domain.ErrUnauthorized)
		}
		return parts[1], nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	if protos := websocketProtocols(r); len(protos) >= 2 {
		return protos[1], nil
	}
	return "", ErrMissingToken
}

func websocketProtocols(r *http.Request) []string {
	var out []string
	for _, h := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(h, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
