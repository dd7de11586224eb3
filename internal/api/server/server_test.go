package server_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/api/server"
	"github.com/feral-file/ff-custody-ledger/internal/ledger"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/metrics"
	"github.com/feral-file/ff-custody-ledger/internal/store"
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

func publicKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestServer_Router(t *testing.T) {
	l, err := ledger.New(context.Background(), ledger.Config{
		RegistryAddress: common.HexToAddress("0xd9145CCE52D386f254917e481eB44e9943F39138"),
		InitialAdmin:    common.HexToAddress("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"),
	}, store.NewMemoryStore(), adapter.NewClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Init(reg, "test"))

	srv := server.New(server.Config{
		JWTPublicKey: publicKeyPEM(t),
		MetricsPath:  "/metrics",
	}, l, reg)

	router, err := srv.Router()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/registry", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"admin":"0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"`)
	assert.Contains(t, w.Body.String(), `"total_issued":0`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "custody_ledger_http_requests_total")
}

func TestServer_RouterRequiresPublicKey(t *testing.T) {
	srv := server.New(server.Config{}, nil, nil)
	_, err := srv.Router()
	assert.Error(t, err)
}
