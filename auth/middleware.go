package auth

import (
	"context"
	"net/http"
	"strings"

	"apibase/server"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// Authenticated requires a valid Bearer token and stores its user id in the
// request context. Failures go to the error stage as 401.
func (t *Tokens) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			server.Forward(w, r, server.Unauthorized("Unauthorised"))
			return
		}
		uid, err := t.Parse(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			server.Forward(w, r, server.Unauthorized("Unauthorised").Wrap(err))
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user id, or false outside Authenticated.
func UserID(r *http.Request) (primitive.ObjectID, bool) {
	uid, ok := r.Context().Value(userIDKey).(primitive.ObjectID)
	return uid, ok
}
