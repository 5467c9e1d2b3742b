package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Hkesd/mcp-memory-service/internal/security"
)

// authMiddleware returns a chi-compatible middleware that validates Bearer token
// or Basic auth credentials using constant-time comparison.
// If an AuditLogger is provided, auth_success and auth_failure events are emitted.
// If a RateLimiter is provided, auth attempts are rate-limited using the auth bucket.
func authMiddleware(cfg AuthConfig, auditLogger *security.AuditLogger, rateLimiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rateLimiter != nil {
				if err := rateLimiter.Allow(security.BucketAuth); err != nil {
					emitEvent(auditLogger, security.EventRateLimit, r, "", "auth")
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				emitEvent(auditLogger, security.EventAuthFailure, r, "", "missing authorization header")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// Try Bearer token first.
			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
					if constantTimeEqual(after, cfg.BearerToken) {
						emitEvent(auditLogger, security.EventAuthSuccess, r, "", "bearer")
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			// Try Basic auth.
			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
					emitEvent(auditLogger, security.EventAuthSuccess, r, "", "basic")
					next.ServeHTTP(w, r)
					return
				}
			}

			emitEvent(auditLogger, security.EventAuthFailure, r, "", "invalid credentials")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

// rateLimitMiddleware rejects requests once the bucket is exhausted.
func rateLimitMiddleware(bucket string, auditLogger *security.AuditLogger, rateLimiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rateLimiter != nil {
				if err := rateLimiter.Allow(bucket); err != nil {
					emitEvent(auditLogger, security.EventRateLimit, r, "", bucket)
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// emitEvent logs an audit event to the audit logger if available.
func emitEvent(logger *security.AuditLogger, eventType security.EventType, r *http.Request, memoryID, detail string) {
	if logger == nil {
		return
	}
	logger.Log(security.AuditEvent{
		Type:     eventType,
		MemoryID: memoryID,
		Remote:   r.RemoteAddr,
		Detail:   detail,
		Metadata: map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
