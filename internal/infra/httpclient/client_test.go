package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/paylink/reconciler/internal/infra/config"
	"github.com/paylink/reconciler/internal/infra/logger"
)

func testConfig() config.HTTPClientConfig {
	return config.HTTPClientConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     time.Second,
		DialTimeout:         time.Second,
		ResponseTimeout:     5 * time.Second,
	}
}

func TestNew_LogsProviderCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)
	client := New(testConfig(), zap.NewNop())

	// The request-scoped logger wins over the client's fallback.
	ctx := logger.ContextWithLogger(context.Background(), base.With(zap.String("request_id", "req-1")))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/collection/v1_0/requesttopay?ref=secret", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	entries := logs.FilterMessage("provider call").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "/collection/v1_0/requesttopay", fields["path"])
	assert.EqualValues(t, http.StatusAccepted, fields["status"])
	assert.NotContains(t, fields["path"], "secret")
}

func TestNew_LogsTransportErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	client := New(testConfig(), zap.New(core))

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := client.Get(url)
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("provider call failed").Len())
}
