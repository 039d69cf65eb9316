package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
)

const (
	mediaJSON = "application/json"
	mediaForm = "application/x-www-form-urlencoded"
)

type jsonBodyKey struct{}

func hasMediaType(r *http.Request, want string) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == want
}

func bodyReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return NewHTTPError(http.StatusRequestEntityTooLarge, "request entity too large").Wrap(err)
	}
	return BadRequest("unable to read request body").Wrap(err)
}

// jsonBodyParser buffers application/json bodies up to limit bytes and
// rejects anything that is not a JSON object or array.
func jsonBodyParser(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody || !hasMediaType(r, mediaJSON) {
				next.ServeHTTP(w, r)
				return
			}
			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				Forward(w, r, bodyReadError(err))
				return
			}
			raw = bytes.TrimSpace(raw)
			if len(raw) > 0 {
				if (raw[0] != '{' && raw[0] != '[') || !json.Valid(raw) {
					Forward(w, r, BadRequest("malformed JSON body"))
					return
				}
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			ctx := context.WithValue(r.Context(), jsonBodyKey{}, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// urlencodedBodyParser parses flat form bodies into r.PostForm.
func urlencodedBodyParser(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody || !hasMediaType(r, mediaForm) {
				next.ServeHTTP(w, r)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			if err := r.ParseForm(); err != nil {
				Forward(w, r, bodyReadError(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DecodeBody fills v from the parsed request body: the buffered JSON document
// or, for form posts, the first value of each form field.
func DecodeBody(r *http.Request, v any) error {
	if raw, ok := r.Context().Value(jsonBodyKey{}).([]byte); ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, v); err != nil {
			return BadRequest("invalid request body").Wrap(err)
		}
		return nil
	}
	if len(r.PostForm) > 0 {
		flat := make(map[string]string, len(r.PostForm))
		for k, vals := range r.PostForm {
			if len(vals) > 0 {
				flat[k] = vals[0]
			}
		}
		raw, err := json.Marshal(flat)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return BadRequest("invalid form body").Wrap(err)
		}
		return nil
	}
	return BadRequest("request body is required")
}
