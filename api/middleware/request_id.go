package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID reuses the caller-supplied request id when present, otherwise
// mints one. The id is echoed on the response and attached to the logger
// context so every log line for the request correlates.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
