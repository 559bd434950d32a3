package middleware

import (
	"log/slog"
	"net/http"

	"github.com/tweetscape/indexer/internal/api/shared"
	"github.com/tweetscape/indexer/internal/platform/logger"
)

// TraceMiddleware tags each request with a trace ID and stores a
// request-scoped logger carrying it, so every log line below the handler is
// correlatable. Must run before any middleware that logs.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.WithTraceID(r.Context())
		log := slog.Default().With("trace_id", shared.TraceID(ctx))
		ctx = logger.WithLogger(ctx, log)

		log.Debug("request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
