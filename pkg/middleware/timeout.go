package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout bounds each request by timeout. The handler's response is
// buffered; when the deadline passes first the client gets a 504 and the
// handler's writes are discarded.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			done := make(chan struct{})
			tw := &timeoutWriter{w: w, header: make(http.Header)}
			go func() {
				defer close(done)
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()
			select {
			case <-done:
				tw.flush()
			case <-ctx.Done():
				tw.mu.Lock()
				tw.timedOut = true
				tw.mu.Unlock()
				slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", timeout)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				w.Write([]byte(`{"error":"request timeout"}` + "\n"))
			}
		})
	}
}

// timeoutWriter buffers the handler's response so that only one goroutine
// ever touches the real ResponseWriter.
type timeoutWriter struct {
	w      http.ResponseWriter
	header http.Header

	mu          sync.Mutex
	buf         []byte
	status      int
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.status = code
	tw.wroteHeader = true
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.status = http.StatusOK
		tw.wroteHeader = true
	}
	tw.buf = append(tw.buf, b...)
	return len(b), nil
}

func (tw *timeoutWriter) flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	dst := tw.w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	if !tw.wroteHeader {
		tw.status = http.StatusOK
	}
	tw.w.WriteHeader(tw.status)
	tw.w.Write(tw.buf)
}
