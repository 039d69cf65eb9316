package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

const (
	defaultCSP = "default-src 'self';base-uri 'self';font-src 'self' https: data:;" +
		"form-action 'self';frame-ancestors 'self';img-src 'self' data:;object-src 'none';" +
		"script-src 'self';script-src-attr 'none';style-src 'self' https: 'unsafe-inline';" +
		"upgrade-insecure-requests"

	// Swagger UI boots from inline scripts.
	docsCSP = "default-src 'self';img-src 'self' data:;script-src 'self' 'unsafe-inline';" +
		"style-src 'self' 'unsafe-inline';frame-ancestors 'self';object-src 'none'"

	compressionLevel = 5
)

// securityHeaders sets the usual hardening headers on every response.
func securityHeaders(docsPrefix string) func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		CustomFrameOptionsValue: "SAMEORIGIN",
		ContentTypeNosniff:      true,
		CustomBrowserXssValue:   "0",
		ContentSecurityPolicy:   defaultCSP,
		ReferrerPolicy:          "no-referrer",
		STSSeconds:              15552000,
		STSIncludeSubdomains:    true,
		ForceSTSHeader:          true,
	})
	return func(next http.Handler) http.Handler {
		extra := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			h.Set("Origin-Agent-Cluster", "?1")
			h.Set("X-DNS-Prefetch-Control", "off")
			h.Set("X-Download-Options", "noopen")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			if docsPrefix != "" && strings.HasPrefix(r.URL.Path, docsPrefix) {
				h.Set("Content-Security-Policy", docsCSP)
			}
			next.ServeHTTP(w, r)
		})
		return sec.Handler(extra)
	}
}

// corsPolicy answers preflights and decorates cross-origin responses.
func corsPolicy(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	})
}

// requestLogger writes one line per request in the compact dev format
// "METHOD URL STATUS TIME ms - BYTES" and feeds the request metrics.
func requestLogger(logger *zap.SugaredLogger, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				// Render panics here so the line and metrics carry the 500.
				if rec := recover(); rec != nil {
					recoverPanic(ww, r, rec)
				}
				elapsed := time.Since(start)
				status := "-"
				if code := ww.Status(); code != 0 {
					status = strconv.Itoa(code)
				}
				size := "-"
				if n := ww.BytesWritten(); n > 0 {
					size = strconv.Itoa(n)
				}
				logger.Infof("%s %s %s %.3f ms - %s",
					r.Method, r.URL.RequestURI(), status,
					float64(elapsed.Microseconds())/1000, size)
				metrics.observe(r.Method, ww.Status(), elapsed)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func compression() func(http.Handler) http.Handler {
	return middleware.Compress(compressionLevel)
}
