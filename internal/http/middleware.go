package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"

	"fireeye-analysis/internal/auth"
	"fireeye-analysis/internal/db"
	"fireeye-analysis/internal/fireeye"
	"fireeye-analysis/internal/metrics"
	"fireeye-analysis/internal/schemas"
)

// UserLookup resolves an API key to its user.
type UserLookup interface {
	UserByAPIKey(ctx context.Context, apiKey string) (*db.User, error)
}

// RequireAPIKey authenticates "Authorization: Bearer <api key>" and stores the
// caller on the request context.
func RequireAPIKey(users UserLookup, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("Authorization")
			if len(got) < 8 || got[:7] != "Bearer " {
				writeJSON(w, http.StatusUnauthorized, schemas.ErrorResponse{Error: "unauthorized"})
				return
			}
			u, err := users.UserByAPIKey(r.Context(), got[7:])
			if errors.Is(err, db.ErrNotFound) {
				writeJSON(w, http.StatusUnauthorized, schemas.ErrorResponse{Error: "unauthorized"})
				return
			}
			if err != nil {
				log.Error("api key lookup", slog.String("error", err.Error()))
				writeJSON(w, http.StatusInternalServerError, schemas.ErrorResponse{Error: "internal error"})
				return
			}
			ctx := auth.WithUser(r.Context(), auth.User{ID: u.ID, Email: u.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type tokenKey struct{}

// FireEyeToken takes the appliance credential from the X-FeApi-Token header,
// falling back to the configured token.
func FireEyeToken(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := r.Header.Get(fireeye.TokenHeader)
			if tok == "" {
				tok = fallback
			}
			if tok == "" {
				writeJSON(w, http.StatusUnauthorized, schemas.ErrorResponse{Error: "missing FireEye AX token"})
				return
			}
			ctx := context.WithValue(r.Context(), tokenKey{}, fireeye.Token(tok))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFrom(ctx context.Context) fireeye.Token {
	tok, _ := ctx.Value(tokenKey{}).(fireeye.Token)
	return tok
}

// RequestLogger writes one record per request and counts it by route pattern.
func RequestLogger(log *slog.Logger, mt *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := m.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			mt.Request(route, strconv.Itoa(status))
			log.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", m.GetReqID(r.Context())))
		})
	}
}
