package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("secret")
	require.NoError(t, err)

	tok, err := v.Sign(domain.Identity{ID: "u-1", DisplayName: "Alice", Email: "alice@example.com"}, time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u-1"), id.ID)
	assert.Equal(t, "Alice", id.DisplayName)
	assert.Equal(t, "alice@example.com", id.Email)
}

func TestJWTVerifierRejects(t *testing.T) {
	v, _ := NewJWTVerifier("secret")
	other, _ := NewJWTVerifier("other")

	expired, err := v.Sign(domain.Identity{ID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := other.Sign(domain.Identity{ID: "u-1"}, time.Minute)
	require.NoError(t, err)
	noSubject, err := v.Sign(domain.Identity{}, time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":      "",
		"garbage":    "not-a-token",
		"expired":    expired,
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"alg none":   none,
	} {
		_, err := v.Verify(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized, name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tok, _ := v.Sign(domain.Identity{ID: "u-1"}, time.Minute)
	_, err = v.Verify(ctx, tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = NewJWTVerifier("")
	assert.Error(t, err)
}

type slowVerifier struct{ delay time.Duration }

func (s slowVerifier) Verify(ctx context.Context, _ string) (*domain.Identity, error) {
	select {
	case <-time.After(s.delay):
		return &domain.Identity{ID: "late"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestWithTimeout(t *testing.T) {
	_, err := WithTimeout(slowVerifier{delay: time.Second}, 20*time.Millisecond).Verify(context.Background(), "t")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	id, err := WithTimeout(slowVerifier{}, time.Second).Verify(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("late"), id.ID)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/ws/signal", nil)
	r.Header.Set("Authorization", "Bearer abc")
	tok, err := ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	r = httptest.NewRequest("GET", "/api/ws/signal?token=q", nil)
	tok, err = ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "q", tok)

	r = httptest.NewRequest("GET", "/api/ws/signal", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "meet.v1, xyz")
	tok, err = ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	r = httptest.NewRequest("GET", "/api/ws/signal", nil)
	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractToken(r)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	r = httptest.NewRequest("GET", "/api/ws/signal", nil)
	_, err = ExtractToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)
}
