package adapter_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
)

func TestMain(m *testing.M) {
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

var fastRetry = adapter.HTTPRetryConfig{
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	MaxElapsedTime:  time.Second,
}

func TestHTTPClient_Post(t *testing.T) {
	t.Run("sends headers and body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, `{"ok":true}`, string(body))
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("queued"))
		}))
		defer server.Close()

		client := adapter.NewHTTPClient(time.Second, fastRetry)
		resp, err := client.Post(context.Background(), server.URL, map[string]string{"Content-Type": "application/json"}, []byte(`{"ok":true}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "queued", resp.Body)
	})

	t.Run("retries rate limiting and server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch calls.Add(1) {
			case 1:
				w.WriteHeader(http.StatusTooManyRequests)
			case 2:
				w.WriteHeader(http.StatusBadGateway)
			default:
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := adapter.NewHTTPClient(time.Second, fastRetry)
		resp, err := client.Post(context.Background(), server.URL, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad signature"))
		}))
		defer server.Close()

		client := adapter.NewHTTPClient(time.Second, fastRetry)
		resp, err := client.Post(context.Background(), server.URL, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status code 400")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestJSON_MarshalCanonical(t *testing.T) {
	data, err := adapter.NewJSON().MarshalCanonical(map[string]interface{}{
		"b": 1,
		"a": "x",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1}`, string(data))
}
