package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sitepulse/internal/analysis"
	apierrors "sitepulse/internal/errors"
)

// BearerToken forwards the caller's bearer token to the analysis backend.
// Requests without an Authorization header pass through and the backend
// client falls back to its configured token. A header that is not a bearer
// token is rejected.
func BearerToken(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				logger.WarnContext(ctx, "invalid_authorization_format",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)

				apierrors.WriteProblem(w, apierrors.ProblemForStatus(r, http.StatusUnauthorized,
					"Invalid authorization format. Use: Bearer <token>"))
				return
			}

			ctx = analysis.WithToken(ctx, strings.TrimSpace(parts[1]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuditLog logs state-changing requests with their outcome
func AuditLog(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			start := time.Now()
			ww := &auditResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(ww, r)

			logger.InfoContext(ctx, "audit",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", GetRealIP(r)),
				slog.Bool("token_forwarded", analysis.TokenFromContext(ctx) != ""),
				slog.Int("status", ww.statusCode),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// auditResponseWriter captures the response status code
type auditResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *auditResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *auditResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
