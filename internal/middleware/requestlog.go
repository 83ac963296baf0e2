package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mockupforge/mockupforge/pkg/logger"
)

// RequestLogger logs one line per request with a propagated request id.
type RequestLogger struct {
	log *logger.Logger
}

// NewRequestLogger creates the request logging middleware.
func NewRequestLogger(log *logger.Logger) *RequestLogger {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &RequestLogger{log: log}
}

// Handler returns the request logging middleware handler. An inbound
// X-Request-ID is kept; otherwise one is minted and echoed back.
func (m *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &logStatusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		m.log.WithFields(map[string]interface{}{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Info("request handled")
	})
}

type logStatusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *logStatusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
