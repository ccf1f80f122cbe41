package transport

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/logger"
	"github.com/mri-lab/mri-console/internal/metrics"
)

// Logging logs every request at debug level and transport failures at warn.
func Logging(log *zap.Logger) Middleware {
	log = logger.OrNop(log).Named("http")
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.Warn("request failed", append(fields, zap.Error(err))...)
				return nil, err
			}
			log.Debug("request", append(fields, zap.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}

// Metrics records request counts and latency.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			m.RequestStarted()
			defer m.RequestFinished()

			start := time.Now()
			resp, err := next.RoundTrip(r)
			status := "error"
			if err == nil {
				status = strconv.Itoa(resp.StatusCode)
			}
			m.ObserveRequest(r.Method, status, time.Since(start))
			return resp, err
		})
	}
}
