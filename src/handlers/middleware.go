package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/security"
	"github.com/username/taxfolio/portfolio/src/utils"
)

type contextKey string

const userIDContextKey contextKey = "userID"

// GetUserIDFromContext returns the authenticated user set by AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// token's user ID in the request context.
func AuthMiddleware(authService *security.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.L.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
				utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if tokenString == "" {
				logger.L.Debug("AuthMiddleware: Token string empty", "path", r.URL.Path)
				utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
				return
			}

			userID, err := authService.ValidateToken(tokenString)
			if err != nil {
				logger.L.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
				utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			ctx = logger.WithContext(ctx, logger.L.With("userID", userID, "requestID", middleware.GetReqID(ctx)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware answers 429 once the shared token bucket is empty.
func RateLimitMiddleware(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.L.Warn("Rate limit exceeded",
					"method", r.Method,
					"path", r.URL.Path,
					"remoteAddr", r.RemoteAddr)
				utils.SendJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request with status and latency.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.L.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"requestID", middleware.GetReqID(r.Context()))
	})
}
