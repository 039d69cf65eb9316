package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestSignAndParse(t *testing.T) {
	t.Parallel()

	tokens := NewTokens("super-secret", time.Hour)
	uid := primitive.NewObjectID()

	tok, err := tokens.Sign(uid)
	require.NoError(t, err)

	got, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, uid, got)
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	tokens := NewTokens("secret", time.Minute)
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := tokens.Sign(primitive.NewObjectID())
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewTokens("right-secret", time.Hour).Sign(primitive.NewObjectID())
	require.NoError(t, err)

	_, err = NewTokens("wrong-secret", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Garbage(t *testing.T) {
	t.Parallel()

	_, err := NewTokens("secret", time.Hour).Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticated(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	uid := primitive.NewObjectID()
	tok, err := tokens.Sign(uid)
	require.NoError(t, err)

	var seen primitive.ObjectID
	h := tokens.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + tok, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, uid, seen)
}

func TestUserID_Missing(t *testing.T) {
	_, ok := UserID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
