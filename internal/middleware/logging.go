package middleware

import (
	"context"
	"log"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

type logCtxKey int

const logUserKey logCtxKey = 1

// requestUser is filled in by WithAuth further down the chain.
type requestUser struct{ id string }

func setRequestUser(ctx context.Context, uid string) {
	if ru, ok := ctx.Value(logUserKey).(*requestUser); ok {
		ru.id = uid
	}
}

// RequestLogger writes one line per request to logger.
func RequestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			ru := &requestUser{}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), logUserKey, ru)))
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Printf("http: method=%s path=%s status=%d bytes=%d latency=%s remote=%s user=%s",
				r.Method, r.URL.Path, status, rec.bytes, time.Since(start).Round(time.Microsecond), r.RemoteAddr, ru.id)
		})
	}
}
