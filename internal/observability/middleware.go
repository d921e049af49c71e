package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware returns middleware that traces each request and records request
// count, latency and response size. Spans and metrics are labelled with the chi
// route pattern so path parameters do not explode cardinality.
func HTTPMiddleware(tel *Telemetry) func(http.Handler) http.Handler {
	tracer := tel.TracerProvider().Tracer("workhub/http")
	metrics := tel.Metrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, span := tracer.Start(r.Context(), r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					AttrHTTPMethod.String(r.Method),
					AttrHTTPRemoteAddr.String(r.RemoteAddr),
				),
			)
			defer span.End()

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(AttrHTTPRoute.String(route), AttrHTTPStatusCode.Int(rw.status))
			if rw.status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			}

			if metrics == nil {
				return
			}
			attrs := metric.WithAttributes(
				AttrHTTPMethod.String(r.Method),
				AttrHTTPRoute.String(route),
				AttrHTTPStatusCode.Int(rw.status),
			)
			metrics.HTTPRequestCount.Add(ctx, 1, attrs)
			metrics.HTTPRequestDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
			if rw.size > 0 {
				metrics.HTTPResponseSize.Record(ctx, int64(rw.size), attrs)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, buf, err := h.Hijack()
	if err == nil {
		rw.status = http.StatusSwitchingProtocols
	}
	return conn, buf, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

