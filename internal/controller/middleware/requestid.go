package middleware

import (
	"net/http"

	"gradeplane/internal/logger"

	"github.com/google/uuid"
)

// RequestID attaches a correlation ID to every request. An inbound
// X-Request-ID header is honoured so webhook deliveries can be traced
// end to end; otherwise one is generated. The ID is echoed on the
// response and threaded through the context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
