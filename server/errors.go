package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"apibase/database"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const genericMessage = "Something went wrong"

// HTTPError carries the status and client-facing message of a failed request.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Wrap attaches the underlying cause, which is logged but never rendered.
func (e *HTTPError) Wrap(err error) *HTTPError {
	e.Err = err
	return e
}

func BadRequest(msg string) *HTTPError   { return NewHTTPError(http.StatusBadRequest, msg) }
func Unauthorized(msg string) *HTTPError { return NewHTTPError(http.StatusUnauthorized, msg) }
func NotFound(msg string) *HTTPError     { return NewHTTPError(http.StatusNotFound, msg) }
func Conflict(msg string) *HTTPError     { return NewHTTPError(http.StatusConflict, msg) }

func ServiceUnavailable(msg string) *HTTPError {
	return NewHTTPError(http.StatusServiceUnavailable, msg)
}

type errorStageKey struct{}

// errorStage is the terminal error handler. It wraps the whole router so
// every middleware and controller can reach it through the request context.
type errorStage struct {
	logger *zap.SugaredLogger
}

type errorScope struct {
	stage *errorStage
	outer middleware.WrapResponseWriter
}

func (s *errorStage) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		scope := &errorScope{stage: s, outer: ww}
		r = r.WithContext(context.WithValue(r.Context(), errorStageKey{}, scope))

		defer func() {
			if rec := recover(); rec != nil {
				recoverPanic(ww, r, rec)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// recoverPanic logs a recovered panic with its stack and renders it as a 500.
// http.ErrAbortHandler is re-raised so net/http can abort the response.
func recoverPanic(w http.ResponseWriter, r *http.Request, rec any) {
	if rec == http.ErrAbortHandler {
		panic(rec)
	}
	logger := zap.NewNop().Sugar()
	if scope, ok := r.Context().Value(errorStageKey{}).(*errorScope); ok {
		logger = scope.stage.logger
	}
	logger.Errorw("panic recovered",
		"error", fmt.Sprintf("%v", rec),
		"method", r.Method,
		"path", r.URL.Path,
		"stack_trace", string(debug.Stack()),
	)
	Forward(w, r, fmt.Errorf("panic: %v", rec))
}

// Forward hands err to the error stage of the App serving r. Outside an App
// the error is rendered with the default mapping.
func Forward(w http.ResponseWriter, r *http.Request, err error) {
	if scope, ok := r.Context().Value(errorStageKey{}).(*errorScope); ok {
		scope.render(w, r, err)
		return
	}
	writeError(w, err)
}

func (s *errorScope) render(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	if s.outer.Status() != 0 {
		s.stage.logger.Warnw("error after response was committed",
			"error", err, "method", r.Method, "path", r.URL.Path)
		return
	}
	if status >= http.StatusInternalServerError {
		s.stage.logger.Errorw("request failed",
			"error", err, "status", status, "method", r.Method, "path", r.URL.Path)
	} else {
		s.stage.logger.Debugw("request rejected",
			"error", err, "status", status, "method", r.Method, "path", r.URL.Path)
	}
	writeError(w, err)
}

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	WriteJSON(w, status, errorBody{Status: status, Message: msg})
}

// classify maps an error to its response. Unknown errors become a generic 500
// so internal details are not sent to clients.
func classify(err error) (int, string) {
	var he *HTTPError
	switch {
	case errors.As(err, &he):
		msg := he.Message
		if msg == "" {
			msg = http.StatusText(he.Status)
		}
		return he.Status, msg
	case errors.Is(err, database.ErrNotReady):
		return http.StatusServiceUnavailable, "Database unavailable"
	default:
		return http.StatusInternalServerError, genericMessage
	}
}
