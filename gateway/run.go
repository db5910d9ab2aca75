// Copyright 2025 SQLWard
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"sqlward/platform/connectors/base"
	cfgfile "sqlward/platform/connectors/config"
	"sqlward/platform/connectors/registry"
	"sqlward/platform/gateway/sqlguard"
)

// SQLWard Gateway - read-only SQL policy enforcement in front of databases.
// Clients talk HTTP to the gateway; the gateway classifies every statement
// and forwards only clean reads (and, when enabled, screened writes) to the
// configured connectors.

// Version is the gateway version reported by /health.
const Version = "1.2.0"

// Prometheus metrics
var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlward_queries_total",
			Help: "Total number of statements processed by the gateway",
		},
		[]string{"connector", "status"},
	)
	queriesBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlward_queries_blocked_total",
			Help: "Total number of statements rejected by the read-only policy",
		},
		[]string{"connector", "reason"},
	)
	guardScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlward_guard_scan_duration_seconds",
			Help:    "Statement classification duration in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlward_request_duration_milliseconds",
			Help:    "End-to-end request duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(queriesTotal)
	prometheus.MustRegister(queriesBlocked)
	prometheus.MustRegister(guardScanDuration)
	prometheus.MustRegister(requestDuration)
}

// appReady gates the health endpoint: it responds immediately while
// initialization (connector configs, secrets, Redis) is still running, so
// load balancer health checks pass during slow startups.
var appReady atomic.Bool

// Run is the exported entry point for the gateway service. It blocks until
// SIGINT or SIGTERM, then drains in-flight requests before returning.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load gateway config: %w", err)
	}
	if cfg.ConfigPath() != "" {
		log.Printf("Loaded configuration from %s", cfg.ConfigPath())
	}

	if err := sqlguard.InitGlobalEnforcer(cfg.Guard); err != nil {
		return fmt.Errorf("failed to initialize policy enforcer: %w", err)
	}

	limiter, err := newRateLimiter(cfg.RedisURL)
	if err != nil {
		// A Redis outage at boot should not keep the gateway down; the
		// in-memory limiter covers until Redis returns.
		log.Printf("WARNING: Redis rate limiting unavailable: %v (using in-memory fallback)", err)
		limiter, _ = newRateLimiter("")
	}
	defer func() { _ = limiter.close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := newConnectorConfigSource(cfg)
	reg, err := initRegistry(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to initialize connector registry: %w", err)
	}

	var archiver *AuditArchiver
	if cfg.Archive.Enabled {
		archiver, err = NewAuditArchiver(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("failed to initialize audit archiver: %w", err)
		}
		sqlguard.SetAuditCallback(func(event *sqlguard.AuditEvent) {
			archiver.Record(event)
		})
		log.Printf("Audit archival enabled: s3://%s/%s", cfg.Archive.Bucket, cfg.Archive.Prefix)
	}

	h := &handlers{
		cfg:      cfg,
		auth:     newAuthenticator(cfg, limiter),
		registry: reg,
		enforcer: sqlguard.GetGlobalEnforcer(),
		source:   source,
	}

	router := newRouter(h)
	corsHandler := newCORS(cfg).Handler(router)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("SQLWard gateway starting on port %s (guard mode: %s, writes: %v)",
			cfg.Port, cfg.Guard.Mode, cfg.AllowWrites)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	appReady.Store(true)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutdown signal received, draining requests...")
	appReady.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown incomplete: %v", err)
	}

	reg.DisconnectAll(shutdownCtx)
	if archiver != nil {
		archiver.Close()
	}

	log.Println("Gateway stopped")
	return nil
}

// newRouter wires all endpoints.
func newRouter(h *handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/query", h.handleQuery).Methods("POST")
	v1.HandleFunc("/execute", h.handleExecute).Methods("POST")
	v1.HandleFunc("/check", h.handleCheck).Methods("POST")
	v1.HandleFunc("/connectors", h.handleConnectors).Methods("GET")
	v1.HandleFunc("/connectors/reload", h.handleConnectorsReload).Methods("POST")
	v1.HandleFunc("/connectors/health", h.handleConnectorHealth).Methods("GET")
	v1.HandleFunc("/guard/metrics", h.handleGuardMetrics).Methods("GET")

	return router
}

// newCORS builds the CORS middleware from the configured origins.
func newCORS(cfg *Config) *cors.Cors {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key"},
		AllowCredentials: true,
	})
}

// handleHealth reports readiness. Responds before initialization completes
// so orchestrator health checks don't flap during startup.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if appReady.Load() {
		status = "healthy"
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"service":   "sqlward-gateway",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	}); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// connectorConfigTTL bounds how often reloads re-read the config file and
// re-resolve secret-referenced credentials.
const connectorConfigTTL = 30 * time.Second

// connectorConfigSource loads connector configs through a TTL cache.
// Repeated loads inside the TTL window serve the cached set instead of
// re-reading the YAML file and re-hitting Secrets Manager.
type connectorConfigSource struct {
	cfg   *Config
	cache *cfgfile.ConfigCache
}

func newConnectorConfigSource(cfg *Config) *connectorConfigSource {
	return &connectorConfigSource{
		cfg:   cfg,
		cache: cfgfile.NewConfigCache(connectorConfigTTL),
	}
}

// load returns the connector configs and whether they came from the cache.
// force invalidates the cache first, so file edits apply immediately.
func (s *connectorConfigSource) load(ctx context.Context, force bool) ([]*base.ConnectorConfig, bool, error) {
	if force {
		s.cache.InvalidateAll()
	}
	if configs, ok := s.cache.GetConnectors("*"); ok {
		return configs, true, nil
	}

	configs, err := loadConnectorConfigs(s.cfg)
	if err != nil {
		return nil, false, err
	}
	resolveSecretCredentials(ctx, configs)

	s.cache.SetConnectors("*", configs)
	return configs, false, nil
}

// InitRegistry loads connector configs from the gateway's config file (or
// environment), resolves secret-referenced credentials, and registers the
// configs for lazy connection on first use.
func InitRegistry(ctx context.Context, cfg *Config) (*registry.Registry, error) {
	return initRegistry(ctx, newConnectorConfigSource(cfg))
}

func initRegistry(ctx context.Context, source *connectorConfigSource) (*registry.Registry, error) {
	reg := registry.NewRegistry()
	reg.SetFactory(DefaultConnectorFactory())

	configs, _, err := source.load(ctx, false)
	if err != nil {
		return nil, err
	}

	count := reg.LoadConfigs(configs)
	log.Printf("Registered %d connector configurations", count)
	return reg, nil
}

// loadConnectorConfigs collects connector configs from the connectors
// section of the gateway's YAML file, plus any SQLWARD_CONNECTORS-listed
// environment configs ("name:type" pairs, comma separated).
func loadConnectorConfigs(cfg *Config) ([]*base.ConnectorConfig, error) {
	var configs []*base.ConnectorConfig

	if path := cfg.ConfigPath(); path != "" {
		loader, err := cfgfile.NewYAMLConfigFileLoader(path)
		if err != nil {
			return nil, err
		}
		fileConfigs, err := loader.LoadConnectors("*")
		if err != nil {
			return nil, err
		}
		configs = append(configs, fileConfigs...)
	}

	for _, spec := range strings.Split(os.Getenv("SQLWARD_CONNECTORS"), ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid SQLWARD_CONNECTORS entry %q, want name:type", spec)
		}
		envConfig, err := cfgfile.LoadFromEnv(strings.ToUpper(parts[0]), parts[1])
		if err != nil {
			return nil, fmt.Errorf("failed to load connector %q from environment: %w", parts[0], err)
		}
		envConfig.Name = parts[0]
		configs = append(configs, envConfig)
	}

	for _, c := range configs {
		if err := cfgfile.ValidateConfig(c); err != nil {
			return nil, fmt.Errorf("invalid connector config %q: %w", c.Name, err)
		}
	}

	return configs, nil
}

// resolveSecretCredentials fills secret-referenced credentials through AWS
// Secrets Manager. Resolution failures are logged, not fatal: the connector
// will fail on first use with a clear error instead of blocking every other
// connector at boot.
func resolveSecretCredentials(ctx context.Context, configs []*base.ConnectorConfig) {
	needsSecrets := false
	for _, c := range configs {
		if c.Credentials["secret_arn"] != "" {
			needsSecrets = true
			break
		}
	}
	if !needsSecrets {
		return
	}

	sm, err := cfgfile.NewAWSSecretsManager(ctx, cfgfile.AWSSecretsManagerOptions{
		Region: os.Getenv("SQLWARD_SECRETS_REGION"),
	})
	if err != nil {
		log.Printf("WARNING: secrets manager unavailable: %v (secret-referenced connectors will fail on use)", err)
		return
	}

	for _, c := range configs {
		if err := cfgfile.ResolveCredentials(ctx, sm, c); err != nil {
			log.Printf("WARNING: %v", err)
		}
	}
}
