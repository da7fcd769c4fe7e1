package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// requestInfo lets handlers further down the chain report back to the
// logger, which only sees the outer request.
type requestInfo struct {
	userID string
}

const requestInfoKey contextKey = "requestInfo"

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey).(*requestInfo)
	return info
}

func LoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			info := &requestInfo{}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

			duration := time.Since(start)

			userID := info.userID
			if userID == "" {
				userID = "anonymous"
			}

			line := "[%s] %s %s - Status: %d - Duration: %v - User: %s"
			args := []interface{}{r.Method, r.URL.Path, r.RemoteAddr, rw.statusCode, duration, userID}
			if rw.statusCode >= http.StatusInternalServerError {
				glog.Errorf(line, args...)
			} else {
				glog.Infof(line, args...)
			}
		})
	}
}
