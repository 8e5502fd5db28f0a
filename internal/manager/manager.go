// Package manager wires the relay pools, the duplicate guard, observability
// and the discover-hot-videos handler into one running service.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"divine-dvm/internal/common/config"
	"divine-dvm/internal/common/database"
	"divine-dvm/internal/common/dvm"
	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/nostr"
	"divine-dvm/internal/common/observability"
	"divine-dvm/internal/common/relay"
	dhv "divine-dvm/internal/workers/content-discovery/discover-hot-videos"
)

const defaultShutdownGrace = 10 * time.Second

type Options struct {
	// Registerer receives the OTel exporter's collectors. Nil means the
	// default Prometheus registry.
	Registerer promclient.Registerer
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer      promclient.Gatherer
	ShutdownGrace time.Duration
}

// Manager owns every long-lived handle of the service.
type Manager struct {
	cfg  *config.Config
	log  logger.Logger
	opts Options

	keys     *nostr.Keys
	listen   *relay.Pool
	announce *relay.Pool
	upstream *relay.Upstream
	redis    *database.RedisClient
	guard    database.JobGuard
	obs      *observability.Observability
	handler  *dhv.Handler
	worker   *dvm.Worker

	ready     atomic.Bool
	startedAt time.Time
}

func New(cfg *config.Config, log logger.Logger, opts Options) (*Manager, error) {
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}

	keys, err := nostr.ParseSecretKey(cfg.Nostr.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("nostr.private_key: %w", err)
	}

	relayOpts := relay.Options{
		DialTimeout:      config.GetDuration(cfg.Relays.DialTimeout),
		VerifySignatures: cfg.Nostr.VerifyIncoming,
		Logger:           log.Named("relay"),
	}

	m := &Manager{
		cfg:      cfg,
		log:      log,
		opts:     opts,
		keys:     keys,
		listen:   relay.NewPool(cfg.Relays.Listen, relayOpts),
		announce: relay.NewPool(cfg.Relays.Announce, relayOpts),
		upstream: relay.NewUpstream(cfg.Relays.Upstream, relayOpts),
	}

	m.obs = observability.New(observability.Options{
		ServiceName:    cfg.App.Name,
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		Registerer:     opts.Registerer,
		Logger:         log,
	})

	dedupTTL := time.Duration(cfg.Discovery.DedupTTL) * time.Second
	if cfg.Database.Redis.Address != "" {
		m.redis, err = database.NewRedis(cfg.Database.Redis, dedupTTL)
		if err != nil {
			return nil, err
		}
		m.guard = m.redis
	} else {
		m.guard = database.NewMemoryGuard(dedupTTL)
	}

	m.handler, err = dhv.NewHandler(dhv.HandlerOptions{
		AppConfig: cfg,
		Deps: dhv.HandlerDeps{
			Fetcher:       m.upstream,
			Emitter:       dvm.NewEmitter(keys, dvm.PoolPublisher{Pool: m.listen}),
			Observability: m.obs,
		},
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) PublicKey() string { return m.keys.PublicKey() }

func (m *Manager) Handler() *dhv.Handler { return m.handler }

// Announce publishes the NIP-89 handler information and profile metadata to
// the announce relays.
func (m *Manager) Announce(ctx context.Context) error {
	emitter := dvm.NewEmitter(m.keys, dvm.PoolPublisher{Pool: m.announce})
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(m.cfg.Relays.PublishTimeout)*2)
	defer cancel()
	return dvm.Announce(ctx, emitter, m.cfg, m.log)
}

// Run listens for job requests until ctx ends, then waits up to the
// shutdown grace for in-flight jobs.
func (m *Manager) Run(ctx context.Context) error {
	if !config.IsWorkerEnabled(m.cfg, dhv.TaskType) {
		m.log.Info("worker disabled", map[string]interface{}{"taskType": dhv.TaskType})
		<-ctx.Done()
		return nil
	}

	if m.redis != nil {
		if err := m.redis.Ping(ctx); err != nil {
			m.log.Warn("redis unavailable, duplicate guard will fail open", map[string]interface{}{"error": err})
		}
	}

	if err := m.listen.Connect(ctx); err != nil {
		// the listener keeps redialing in the background
		m.log.Warn("no listening relay reachable yet", map[string]interface{}{"error": err})
	}

	if m.cfg.Service.Announce {
		go func() {
			if err := m.Announce(ctx); err != nil {
				m.log.Warn("service announcement failed", map[string]interface{}{"error": err})
			}
		}()
	}

	m.startedAt = time.Now()
	since := m.startedAt.Unix()
	wcfg := config.GetWorkerConfig(m.cfg, dhv.TaskType)
	m.worker = dvm.NewWorker(m.listen, m.handler, dvm.WorkerOptions{
		TaskType: dhv.TaskType,
		Filter: nostr.Filter{
			Kinds: []int{nostr.KindContentDiscoveryRequest},
			Since: &since,
		},
		MaxJobsActive: wcfg.MaxJobsActive,
		Guard:         m.guard,
		Logger:        m.log,
	})

	m.log.Info("dvm started", map[string]interface{}{
		"pubkey":   m.keys.PublicKey(),
		"listen":   m.cfg.Relays.Listen,
		"upstream": m.cfg.Relays.Upstream,
	})
	m.ready.Store(true)
	err := m.worker.Run(ctx)
	m.ready.Store(false)

	m.log.Info("shutdown signal received, draining jobs", map[string]interface{}{"grace": m.opts.ShutdownGrace.String()})
	m.worker.Wait(m.opts.ShutdownGrace)
	return err
}

// Ready reports whether the listener is running.
func (m *Manager) Ready() bool { return m.ready.Load() }

// HTTPHandler serves /health, /ready and /metrics.
func (m *Manager) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !m.Ready() {
			writeStatus(w, http.StatusServiceUnavailable, "starting")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	if m.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// ServeHTTP runs the health and metrics listener until ctx ends.
func (m *Manager) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.HTTPHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	m.log.Info("health/metrics server listening", map[string]interface{}{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases network handles. Call after Run returns.
func (m *Manager) Close() {
	m.listen.Close()
	m.announce.Close()
	m.upstream.Close()
	if m.redis != nil {
		_ = m.redis.Close()
	}
	m.obs.Shutdown()
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
