package handler

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/NelsonFranklinWere/emil/backend/internal/access"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/gate"
)

type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.StatusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *Handler) logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		h.log.Info("request handled", "status", rw.StatusCode, "ip", gate.ClientIP(r), "method", r.Method, "path", r.URL.Path, "duration", duration)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				h.internalServerError(w, r, fmt.Errorf("panic: %v", err))
				fmt.Fprint(os.Stderr, string(debug.Stack())) // a stack trace through slog is unreadable
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequiredRole re-checks the principal the gate placed on the context.
func (h *Handler) RequiredRole(roles []domain.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := gate.PrincipalFromContext(r.Context())
			switch access.DecideAccess(p, roles) {
			case access.Allow:
				next.ServeHTTP(w, r)
			case access.RedirectSignIn:
				h.writeJSON(w, r, http.StatusUnauthorized, Response{Success: false, Message: "authentication required"})
			default:
				h.writeJSON(w, r, http.StatusForbidden, Response{Success: false, Message: "insufficient role"})
			}
		})
	}
}
