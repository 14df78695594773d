package httpmiddleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// CorrelationHeader carries the request correlation ID in both directions.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationID middleware ensures every request has a correlation ID. A
// well-formed, non-nil UUID sent by the caller is kept so a turn can be traced
// across the agent and the engine; anything else is replaced. The ID is put on
// the request header, the response header and the request context.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(CorrelationHeader)
			if id, err := uuid.Parse(correlationID); err != nil || id == uuid.Nil || len(correlationID) != 36 {
				correlationID = uuid.New().String()
			}

			r.Header.Set(CorrelationHeader, correlationID)
			w.Header().Set(CorrelationHeader, correlationID)

			ctx := logger.WithCorrelationIDContext(r.Context(), correlationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
