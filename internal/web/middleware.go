package web

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// requestIDHandler assigns every request an id, reusing a well-formed
// incoming X-Request-ID.
func requestIDHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// accessLogHandler logs one entry per request once the response is written.
func accessLogHandler(log logrus.FieldLogger, h http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, h, func(_ io.Writer, p handlers.LogFormatterParams) {
		log.WithFields(logrus.Fields{
			"request_id": RequestID(p.Request.Context()),
			"method":     p.Request.Method,
			"path":       p.URL.Path,
			"status":     p.StatusCode,
			"size":       p.Size,
			"duration":   time.Since(p.TimeStamp).Round(time.Millisecond).String(),
			"remote":     p.Request.RemoteAddr,
		}).Info("request")
	})
}

// requestLogger returns a logger tagged with the request id.
func (s *Server) requestLogger(r *http.Request) logrus.FieldLogger {
	return s.log.WithField("request_id", RequestID(r.Context()))
}
