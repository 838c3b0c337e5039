// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seisreview/cct-service/internal/auth"
)

const healthzPath = "/healthz"
const metricsPath = "/metrics"
const versionPath = "/version"
const headerRateLimitLimit = "X-RateLimit-Limit"
const headerRateLimitRemaining = "X-RateLimit-Remaining"
const headerRetryAfter = "Retry-After"

// BearerAuth enforces bearer-token authorization for all routes except
// /healthz, /metrics, and /version; resolves the principal from the token
// and stores it on the request context.
func BearerAuth(authorizer auth.Authorizer, limitPerMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	return bearerAuthWithLimiter(authorizer, newInMemoryRateLimiter(), limitPerMinute, logger)
}

func bearerAuthWithLimiter(
	authorizer auth.Authorizer,
	limiter *inMemoryRateLimiter,
	limitPerMinute int,
	logger *slog.Logger,
) func(http.Handler) http.Handler {
	if authorizer == nil {
		panic("middleware.BearerAuth requires an authorizer")
	}
	if limiter == nil {
		panic("middleware.BearerAuth requires a limiter")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == healthzPath || r.URL.Path == metricsPath || r.URL.Path == versionPath {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			token, ok := bearerToken(authHeader)
			if !ok {
				logger.Warn("request blocked by bearer token middleware",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid bearer token", http.StatusUnauthorized)
				return
			}

			principal, err := authorizer.Authorize(r.Context(), token)
			if err != nil {
				logger.Warn("request blocked by authorizer",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid bearer token", http.StatusUnauthorized)
				return
			}

			decision := limiter.Allow(principal.User, limitPerMinute, time.Now())
			w.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.LimitPerMinute))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set(headerRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			// Preserve authenticated context on the current request pointer so
			// outer middleware (request logging) can read the user after next returns.
			*r = *r.WithContext(auth.WithPrincipal(r.Context(), principal))
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	schemeToken := strings.SplitN(header, " ", 2)
	if len(schemeToken) != 2 {
		return "", false
	}
	if !strings.EqualFold(schemeToken[0], "Bearer") {
		return "", false
	}
	if schemeToken[1] == "" {
		return "", false
	}
	return schemeToken[1], true
}
