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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"sqlward/platform/connectors/base"
	"sqlward/platform/connectors/registry"
	"sqlward/platform/gateway/sqlguard"
)

// stubConnector is an in-memory base.Connector for handler tests.
type stubConnector struct {
	name      string
	queryErr  error
	unhealthy bool
	lastQuery *base.Query
	lastCmd   *base.Command
}

func (s *stubConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	return nil
}

func (s *stubConnector) Disconnect(ctx context.Context) error { return nil }

func (s *stubConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: !s.unhealthy, Timestamp: time.Now()}, nil
}

func (s *stubConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	s.lastQuery = query
	return &base.QueryResult{
		Rows:      []map[string]interface{}{{"id": 1, "name": "alpha"}, {"id": 2, "name": "beta"}},
		RowCount:  2,
		Connector: s.name,
	}, nil
}

func (s *stubConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	s.lastCmd = cmd
	return &base.CommandResult{Success: true, RowsAffected: 4, Connector: s.name}, nil
}

func (s *stubConnector) Name() string           { return s.name }
func (s *stubConnector) Type() string           { return "postgres" }
func (s *stubConnector) Version() string        { return "1.0.0" }
func (s *stubConnector) Capabilities() []string { return []string{"query", "execute"} }

// newTestHandlers assembles the handler set around a stub connector. The
// connector is visible to all tenants.
func newTestHandlers(t *testing.T, cfg *Config) (*handlers, *stubConnector) {
	t.Helper()

	if cfg == nil {
		cfg = &Config{Guard: sqlguard.DefaultConfig()}
	}

	limiter, err := newRateLimiter("")
	if err != nil {
		t.Fatalf("Failed to create rate limiter: %v", err)
	}
	t.Cleanup(func() { limiter.close() })

	stub := &stubConnector{name: "maindb"}
	reg := registry.NewRegistry()
	if err := reg.Register("maindb", stub, &base.ConnectorConfig{
		Name:     "maindb",
		Type:     "postgres",
		TenantID: "*",
		Timeout:  5 * time.Second,
	}); err != nil {
		t.Fatalf("Failed to register stub connector: %v", err)
	}

	enforcer, err := sqlguard.NewEnforcer(sqlguard.WithEnforcerConfig(cfg.Guard))
	if err != nil {
		t.Fatalf("Failed to create enforcer: %v", err)
	}

	return &handlers{
		cfg:      cfg,
		auth:     newAuthenticator(cfg, limiter),
		registry: reg,
		enforcer: enforcer,
		source:   newConnectorConfigSource(cfg),
	}, stub
}

func postJSON(t *testing.T, handler http.HandlerFunc, req QueryRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func decodeAs(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

func TestHandleQuery_Allowed(t *testing.T) {
	h, stub := newTestHandlers(t, nil)

	w := postJSON(t, h.handleQuery, QueryRequest{
		Connector: "maindb",
		Statement: "SELECT id, name FROM users WHERE active = true",
		ClientID:  "reporting-app",
		Limit:     500,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp QueryResponse
	decodeAs(t, w, &resp)

	if !resp.Success {
		t.Error("Expected success=true")
	}
	if resp.RowCount != 2 || len(resp.Rows) != 2 {
		t.Errorf("Expected 2 rows, got count=%d len=%d", resp.RowCount, len(resp.Rows))
	}
	if resp.Connector != "maindb" {
		t.Errorf("Expected connector 'maindb', got '%s'", resp.Connector)
	}
	if resp.RequestID == "" {
		t.Error("Expected a request ID")
	}
	if stub.lastQuery == nil || stub.lastQuery.Limit != 500 {
		t.Error("Limit should be forwarded to the connector")
	}
}

func TestHandleQuery_BlockedWrite(t *testing.T) {
	h, stub := newTestHandlers(t, nil)

	w := postJSON(t, h.handleQuery, QueryRequest{
		Connector: "maindb",
		Statement: "DROP TABLE users",
		ClientID:  "reporting-app",
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", w.Code, w.Body.String())
	}

	var resp ErrorResponse
	decodeAs(t, w, &resp)

	if resp.Success {
		t.Error("Expected success=false")
	}
	if !resp.Blocked {
		t.Error("Expected blocked=true")
	}
	if len(resp.BlockReason) == 0 {
		t.Error("Expected block reasons")
	}
	if stub.lastQuery != nil {
		t.Error("Blocked statement must never reach the connector")
	}
}

func TestHandleQuery_Validation(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	tests := []struct {
		name     string
		req      QueryRequest
		wantCode int
	}{
		{
			name:     "missing statement",
			req:      QueryRequest{Connector: "maindb", ClientID: "app"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing connector",
			req:      QueryRequest{Statement: "SELECT 1", ClientID: "app"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown connector",
			req:      QueryRequest{Connector: "otherdb", Statement: "SELECT 1", ClientID: "app"},
			wantCode: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.handleQuery, tt.req)
			if w.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleQuery_ClientPermissions(t *testing.T) {
	cfg := &Config{
		Guard: sqlguard.DefaultConfig(),
		Clients: []ClientConfig{
			{ClientID: "writer-only", TenantID: "*", Permissions: []string{"execute"}, Enabled: true},
		},
	}
	h, _ := newTestHandlers(t, cfg)

	w := postJSON(t, h.handleQuery, QueryRequest{
		Connector: "maindb",
		Statement: "SELECT 1",
		ClientID:  "writer-only",
	})

	if w.Code != http.StatusForbidden {
		t.Errorf("Client without query permission should get 403, got %d", w.Code)
	}
}

func TestHandleQuery_ConnectorError(t *testing.T) {
	h, stub := newTestHandlers(t, nil)
	stub.queryErr = fmt.Errorf("connection reset by peer")

	w := postJSON(t, h.handleQuery, QueryRequest{
		Connector: "maindb",
		Statement: "SELECT 1",
		ClientID:  "reporting-app",
	})

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 on connector failure, got %d", w.Code)
	}
}

func TestHandleExecute_WritesDisabled(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	w := postJSON(t, h.handleExecute, QueryRequest{
		Connector: "maindb",
		Statement: "UPDATE users SET active = false WHERE id = 7",
		ClientID:  "etl-app",
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 when writes are disabled, got %d", w.Code)
	}

	var resp ErrorResponse
	decodeAs(t, w, &resp)
	if resp.Blocked {
		t.Error("Disabled writes are a config refusal, not a policy block")
	}
}

func TestHandleExecute_Allowed(t *testing.T) {
	cfg := &Config{
		AllowWrites: true,
		Guard:       sqlguard.DefaultConfig(),
		Clients: []ClientConfig{
			{ClientID: "etl-app", TenantID: "*", Permissions: []string{"query", "execute"}, Enabled: true},
		},
	}
	h, stub := newTestHandlers(t, cfg)

	w := postJSON(t, h.handleExecute, QueryRequest{
		Connector: "maindb",
		Statement: "UPDATE users SET active = false WHERE id = 7",
		ClientID:  "etl-app",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp QueryResponse
	decodeAs(t, w, &resp)
	if resp.RowCount != 4 {
		t.Errorf("Expected 4 affected rows, got %d", resp.RowCount)
	}
	if stub.lastCmd == nil {
		t.Fatal("Command should reach the connector")
	}
}

func TestHandleExecute_InjectionStillBlocked(t *testing.T) {
	cfg := &Config{
		AllowWrites: true,
		Guard:       sqlguard.DefaultConfig(),
		Clients: []ClientConfig{
			{ClientID: "etl-app", TenantID: "*", Permissions: []string{"execute"}, Enabled: true},
		},
	}
	h, stub := newTestHandlers(t, cfg)

	// Mutating keywords are fine on the write path; injection signatures
	// are not.
	w := postJSON(t, h.handleExecute, QueryRequest{
		Connector: "maindb",
		Statement: "UPDATE users SET role = 'admin' WHERE name = '' OR 1=1 --'",
		ClientID:  "etl-app",
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for injection on write path, got %d: %s", w.Code, w.Body.String())
	}

	var resp ErrorResponse
	decodeAs(t, w, &resp)
	if !resp.Blocked {
		t.Error("Expected blocked=true")
	}
	if stub.lastCmd != nil {
		t.Error("Blocked command must never reach the connector")
	}
}

func TestHandleExecute_MissingPermission(t *testing.T) {
	cfg := &Config{
		AllowWrites: true,
		Guard:       sqlguard.DefaultConfig(),
		Clients: []ClientConfig{
			{ClientID: "reporting-app", TenantID: "*", Permissions: []string{"query"}, Enabled: true},
		},
	}
	h, _ := newTestHandlers(t, cfg)

	w := postJSON(t, h.handleExecute, QueryRequest{
		Connector: "maindb",
		Statement: "UPDATE users SET active = false",
		ClientID:  "reporting-app",
	})

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without execute permission, got %d", w.Code)
	}
}

func TestHandleCheck_DryRun(t *testing.T) {
	h, stub := newTestHandlers(t, nil)

	tests := []struct {
		name        string
		statement   string
		wantAllowed bool
	}{
		{"clean read", "SELECT * FROM orders", true},
		{"mutating keyword", "DELETE FROM orders", false},
		{"injection comment", "SELECT * FROM users WHERE id = 1 OR 1=1 --", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.handleCheck, QueryRequest{
				Connector: "maindb",
				Statement: tt.statement,
				ClientID:  "reporting-app",
			})

			if w.Code != http.StatusOK {
				t.Fatalf("Check is a dry run and always returns 200, got %d", w.Code)
			}

			var resp CheckResponse
			decodeAs(t, w, &resp)

			if resp.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (reasons: %v)", resp.Allowed, tt.wantAllowed, resp.Reasons)
			}
			if !tt.wantAllowed && len(resp.Reasons) == 0 {
				t.Error("Rejections should carry reasons")
			}
			if resp.Mode != "enforce" {
				t.Errorf("Expected mode 'enforce', got '%s'", resp.Mode)
			}
		})
	}

	if stub.lastQuery != nil || stub.lastCmd != nil {
		t.Error("Check must never touch a connector")
	}

	metrics := h.enforcer.GetMetrics()
	if metrics.ViolationsTotal != 0 {
		t.Errorf("Dry runs must not count as violations, got %d", metrics.ViolationsTotal)
	}
}

func TestHandleQuery_RateLimitHeaders(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	w := postJSON(t, h.handleQuery, QueryRequest{
		Connector: "maindb",
		Statement: "SELECT 1",
		ClientID:  "reporting-app",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if got := w.Header().Get("X-RateLimit-Limit"); got != "600" {
		t.Errorf("X-RateLimit-Limit = %q, want 600", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "599" {
		t.Errorf("X-RateLimit-Remaining = %q, want 599", got)
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("Expected a reset timestamp")
	}

	// Each request advances the window count.
	w = postJSON(t, h.handleQuery, QueryRequest{
		Connector: "maindb",
		Statement: "SELECT 1",
		ClientID:  "reporting-app",
	})
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "598" {
		t.Errorf("X-RateLimit-Remaining = %q, want 598", got)
	}
}

func TestHandleConnectors(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/connectors", nil)
	w := httptest.NewRecorder()
	h.handleConnectors(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Success    bool `json:"success"`
		Connectors []struct {
			Name     string `json:"name"`
			Type     string `json:"type"`
			ReadOnly bool   `json:"read_only"`
		} `json:"connectors"`
	}
	decodeAs(t, w, &resp)

	if len(resp.Connectors) != 1 {
		t.Fatalf("Expected 1 connector, got %d", len(resp.Connectors))
	}
	if resp.Connectors[0].Name != "maindb" || resp.Connectors[0].Type != "postgres" {
		t.Errorf("Unexpected connector listing: %+v", resp.Connectors[0])
	}

	if bytes.Contains(w.Body.Bytes(), []byte("connection_url")) {
		t.Error("Connector listing must not leak connection URLs")
	}
}

func postReload(t *testing.T, h *handlers, target, clientID string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(QueryRequest{ClientID: clientID})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.handleConnectorsReload(w, r)
	return w
}

func TestHandleConnectorsReload(t *testing.T) {
	path := writeGatewayConfig(t, `
version: "1.0"
connectors:
  filedb:
    type: postgres
    enabled: true
    connection_url: postgres://guard@localhost:5432/app
`)
	t.Setenv("SQLWARD_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cfg.Clients = []ClientConfig{
		{ClientID: "ops", TenantID: "*", Permissions: []string{"admin"}, Enabled: true},
	}
	h, _ := newTestHandlers(t, cfg)

	var resp struct {
		Success    bool `json:"success"`
		Connectors int  `json:"connectors"`
		Added      int  `json:"added"`
		FromCache  bool `json:"from_cache"`
	}

	// First load reads the file and registers the new connector.
	w := postReload(t, h, "/v1/connectors/reload", "ops")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	decodeAs(t, w, &resp)
	if resp.Added != 1 || resp.FromCache {
		t.Errorf("Expected one new connector read from the file, got %+v", resp)
	}
	if _, err := h.registry.GetConfig("filedb"); err != nil {
		t.Errorf("filedb should be registered after reload: %v", err)
	}

	// A connector added to the file within the cache TTL is not picked up:
	// the cached set is served instead of re-reading the file.
	updated := `
version: "1.0"
connectors:
  filedb:
    type: postgres
    enabled: true
    connection_url: postgres://guard@localhost:5432/app
  eventsdb:
    type: cassandra
    enabled: true
    connection_url: localhost:9042
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	w = postReload(t, h, "/v1/connectors/reload", "ops")
	decodeAs(t, w, &resp)
	if !resp.FromCache || resp.Added != 0 {
		t.Errorf("Reload within the TTL should serve the cached set, got %+v", resp)
	}
	if _, err := h.registry.GetConfig("eventsdb"); err == nil {
		t.Error("eventsdb must not appear while the cached set is served")
	}

	// force=true invalidates the cache and applies the edit immediately.
	w = postReload(t, h, "/v1/connectors/reload?force=true", "ops")
	decodeAs(t, w, &resp)
	if resp.FromCache || resp.Added != 1 {
		t.Errorf("Forced reload should re-read the file, got %+v", resp)
	}
	if _, err := h.registry.GetConfig("eventsdb"); err != nil {
		t.Errorf("eventsdb should be registered after forced reload: %v", err)
	}
}

func TestHandleConnectorsReload_RequiresAdmin(t *testing.T) {
	cfg := &Config{
		Guard: sqlguard.DefaultConfig(),
		Clients: []ClientConfig{
			{ClientID: "reporting-app", TenantID: "*", Permissions: []string{"query", "check"}, Enabled: true},
		},
	}
	h, _ := newTestHandlers(t, cfg)

	w := postReload(t, h, "/v1/connectors/reload", "reporting-app")
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without admin permission, got %d", w.Code)
	}
}

func TestHandleConnectorHealth(t *testing.T) {
	h, stub := newTestHandlers(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/connectors/health", nil)
	w := httptest.NewRecorder()
	h.handleConnectorHealth(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 when all connectors healthy, got %d", w.Code)
	}

	stub.unhealthy = true
	w = httptest.NewRecorder()
	h.handleConnectorHealth(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with an unhealthy connector, got %d", w.Code)
	}
}

func TestHandleGuardMetrics(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	// Produce one violation so the counters move.
	postJSON(t, h.handleQuery, QueryRequest{
		Connector: "maindb",
		Statement: "TRUNCATE TABLE users",
		ClientID:  "reporting-app",
	})

	r := httptest.NewRequest(http.MethodGet, "/v1/guard/metrics", nil)
	w := httptest.NewRecorder()
	h.handleGuardMetrics(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Metrics struct {
			ChecksTotal     int64 `json:"checks_total"`
			ViolationsTotal int64 `json:"violations_total"`
			BlockedTotal    int64 `json:"blocked_total"`
		} `json:"metrics"`
		Mode string `json:"mode"`
	}
	decodeAs(t, w, &resp)

	if resp.Metrics.ViolationsTotal != 1 || resp.Metrics.BlockedTotal != 1 {
		t.Errorf("Expected 1 violation and 1 block, got %+v", resp.Metrics)
	}
	if resp.Mode != "enforce" {
		t.Errorf("Expected mode 'enforce', got '%s'", resp.Mode)
	}
}
