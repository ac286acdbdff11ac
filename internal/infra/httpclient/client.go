package httpclient

import (
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/infra/config"
	"github.com/paylink/reconciler/internal/infra/logger"
)

// New creates the pooled HTTP client shared by the provider adapters.
// Outbound calls are logged at debug level through the request-scoped
// logger when one is on the request context, so they carry its request id.
func New(cfg config.HTTPClientConfig, log *zap.Logger) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Transport: &loggingTransport{next: transport, log: log},
		Timeout:   cfg.ResponseTimeout,
	}
}

// loggingTransport logs each outbound provider call. Query strings are left
// out since some rails put references there.
type loggingTransport struct {
	next http.RoundTripper
	log  *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	log := logger.FromContext(req.Context(), t.log)
	if log == nil {
		return resp, err
	}
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.String("path", req.URL.Path),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		log.Debug("provider call failed", append(fields, zap.Error(err))...)
		return resp, err
	}
	log.Debug("provider call", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}
