// Package logger wraps Uber's zap logger for the storefront and provides the HTTP
// middleware that records every served request.
package logger

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

// Logger wraps zap.Logger so that components share one configured instance.
type Logger struct {
	*zap.Logger
}

// CreateLogger builds a production zap logger at the given level ("debug", "info",
// "warn", "error"). If the level cannot be parsed a default production logger is
// returned together with the parse error.
func CreateLogger(level string) (*Logger, error) {
	fallback, err := zap.NewProduction()
	if err != nil {
		log.Println(err)
		fallback = zap.NewNop()
	}
	l := &Logger{Logger: fallback}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return l, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return l, err
	}

	_ = fallback.Sync()
	l.Logger = zl
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Component returns a child logger tagged with the component name.
func (log *Logger) Component(name string) *Logger {
	return &Logger{Logger: log.Logger.With(zap.String("component", name))}
}

// WithLogging returns HTTP middleware that logs method, path, status, duration and
// response size of each request.
func (log *Logger) WithLogging() func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("uri", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(started)),
					zap.Int("size", ww.BytesWritten()),
				}
				if ww.Status() >= http.StatusInternalServerError {
					log.Warn("served", fields...)
					return
				}
				log.Info("served", fields...)
			}()
			h.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
