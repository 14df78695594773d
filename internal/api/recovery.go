package api

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// recovery turns a handler panic into a 500 in the API's error shape and logs
// it with the stack and correlation ID.
func (a *API) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			a.handlePanic(w, r, rec)
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *API) handlePanic(w http.ResponseWriter, r *http.Request, rec any) {
	correlationID := logger.GetCorrelationIDFromContext(r.Context())

	fields := []logger.LogField{
		logger.StringField("panic_error", fmt.Sprintf("%v", rec)),
		logger.StringField("http_method", r.Method),
		logger.StringField("http_path", r.URL.Path),
		logger.StringField("client_ip", r.RemoteAddr),
		logger.CorrelationIDField(correlationID),
		logger.StringField("stack_trace", string(debug.Stack())),
	}
	if r.URL.RawQuery != "" {
		fields = append(fields, logger.StringField("query_params", r.URL.RawQuery))
	}
	a.log.Error("HTTP request panic recovered", fields...)

	w.Header().Set("Connection", "close")
	a.writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:         http.StatusText(http.StatusInternalServerError),
		Kind:          string(memerrors.KindOther),
		CorrelationID: correlationID,
	})
}
