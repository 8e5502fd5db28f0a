package manager

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divine-dvm/internal/common/config"
	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/nostr"
)

func testConfig(t *testing.T) *config.Config {
	keys, err := nostr.GenerateKeys()
	require.NoError(t, err)
	return &config.Config{
		App:       config.AppConfig{Name: "divine-dvm-test"},
		Nostr:     config.NostrConfig{PrivateKey: keys.SecretKeyHex()},
		Relays:    config.RelaysConfig{Listen: []string{"ws://127.0.0.1:1"}, Upstream: "ws://127.0.0.1:1", PublishTimeout: 1000},
		Discovery: config.DiscoveryConfig{DefaultMaxResults: 20, MaxResultsCeiling: 100, QueryTimeout: 1000, DedupTTL: 60},
		Workers:   map[string]config.WorkerConfig{config.DiscoverHotVideosWorker: {Enabled: true, MaxJobsActive: 2, Timeout: 5000}},
	}
}

func TestNew_RejectsBadKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Nostr.PrivateKey = "nsec1garbage"

	_, err := New(cfg, logger.NewTestLogger(t), Options{Registerer: prometheus.NewRegistry()})
	assert.Error(t, err)
}

func TestNew_AcceptsNsec(t *testing.T) {
	keys, err := nostr.GenerateKeys()
	require.NoError(t, err)
	nsec, err := keys.Nsec()
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Nostr.PrivateKey = nsec
	m, err := New(cfg, logger.NewTestLogger(t), Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, keys.PublicKey(), m.PublicKey())
	assert.Equal(t, 20, m.Handler().Config().DefaultMaxResults)
}

func TestHTTPHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(testConfig(t), logger.NewTestLogger(t), Options{Registerer: reg, Gatherer: reg})
	require.NoError(t, err)
	defer m.Close()

	h := m.HTTPHandler()
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready").Code)

	m.ready.Store(true)
	rec := get("/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)

	assert.Equal(t, http.StatusOK, get("/metrics").Code)
}
