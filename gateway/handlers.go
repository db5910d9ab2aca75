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
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sqlward/platform/connectors/base"
	"sqlward/platform/connectors/registry"
	"sqlward/platform/gateway/sqlguard"
)

// QueryRequest is the body for /v1/query, /v1/execute, and /v1/check.
type QueryRequest struct {
	Connector  string                 `json:"connector"`
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	ClientID   string                 `json:"client_id"`
	UserToken  string                 `json:"user_token,omitempty"`
}

// QueryResponse is the success envelope for query and execute results.
type QueryResponse struct {
	Success    bool                     `json:"success"`
	RequestID  string                   `json:"request_id"`
	Rows       []map[string]interface{} `json:"rows,omitempty"`
	RowCount   int                      `json:"row_count"`
	Truncated  bool                     `json:"truncated,omitempty"`
	DurationMs int64                    `json:"duration_ms"`
	Connector  string                   `json:"connector"`
}

// CheckResponse is the envelope for /v1/check dry-run classifications.
type CheckResponse struct {
	Allowed    bool     `json:"allowed"`
	Keywords   []string `json:"keywords,omitempty"`
	Patterns   []string `json:"patterns,omitempty"`
	Bypass     bool     `json:"bypass"`
	Reasons    []string `json:"reasons,omitempty"`
	Mode       string   `json:"mode"`
	DurationUs int64    `json:"duration_us"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Success     bool     `json:"success"`
	RequestID   string   `json:"request_id,omitempty"`
	Error       string   `json:"error"`
	Blocked     bool     `json:"blocked,omitempty"`
	BlockReason []string `json:"block_reasons,omitempty"`
}

// handlers bundles the HTTP endpoints with their dependencies.
type handlers struct {
	cfg      *Config
	auth     *authenticator
	registry *registry.Registry
	enforcer *sqlguard.Enforcer
	source   *connectorConfigSource
}

// authenticate resolves the client (and user, when JWT auth is on) for a
// request. Returns nil and writes the error response when it fails.
func (h *handlers) authenticate(w http.ResponseWriter, r *http.Request, req *QueryRequest, requestID string) *Client {
	apiKey := r.Header.Get("X-API-Key")

	client, err := h.auth.validateClient(r.Context(), req.ClientID, apiKey)
	if err != nil {
		status := http.StatusUnauthorized
		if strings.Contains(err.Error(), "rate limit") {
			status = http.StatusTooManyRequests
		}
		sendError(w, requestID, "authentication failed: "+err.Error(), status)
		return nil
	}

	user, err := h.auth.validateUserToken(req.UserToken, client.TenantID)
	if err != nil {
		sendError(w, requestID, "invalid user token", http.StatusUnauthorized)
		return nil
	}
	if user != nil && user.TenantID != client.TenantID && client.TenantID != "*" {
		sendError(w, requestID, "tenant mismatch", http.StatusForbidden)
		return nil
	}

	setRateLimitHeaders(w, r, h.auth.limiter, client)

	return client
}

// setRateLimitHeaders reports the client's current window usage so callers
// can back off before hitting 429.
func setRateLimitHeaders(w http.ResponseWriter, r *http.Request, limiter *rateLimiter, client *Client) {
	count, reset, err := limiter.status(r.Context(), client.ID)
	if err != nil {
		return
	}

	remaining := client.RateLimit - count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(client.RateLimit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !reset.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	}
}

// resolveConnector looks up the connector named in the request and checks
// tenant visibility for the client.
func (h *handlers) resolveConnector(w http.ResponseWriter, req *QueryRequest, client *Client, requestID string) base.Connector {
	if req.Connector == "" {
		sendError(w, requestID, "connector field is required", http.StatusBadRequest)
		return nil
	}

	if err := h.registry.ValidateTenantAccess(req.Connector, client.TenantID); err != nil {
		sendError(w, requestID, "connector access denied", http.StatusForbidden)
		return nil
	}

	connector, err := h.registry.Get(req.Connector)
	if err != nil {
		sendError(w, requestID, "connector not available: "+err.Error(), http.StatusNotFound)
		return nil
	}
	return connector
}

// handleQuery serves POST /v1/query: the read path. Every statement passes
// the policy guard before it reaches a connector.
func (h *handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := uuid.New().String()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, requestID, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Statement == "" {
		sendError(w, requestID, "statement field is required", http.StatusBadRequest)
		return
	}

	client := h.authenticate(w, r, &req, requestID)
	if client == nil {
		return
	}
	if !client.HasPermission("query") {
		sendError(w, requestID, "client lacks query permission", http.StatusForbidden)
		return
	}

	decision, err := h.enforcer.CheckStatement(r.Context(), req.Connector, client.ID, req.Statement)
	if err != nil {
		if sqlguard.IsPolicyViolation(err) {
			queriesBlocked.WithLabelValues(req.Connector, "policy").Inc()
			queriesTotal.WithLabelValues(req.Connector, "blocked").Inc()
			sendBlocked(w, requestID, decision)
			return
		}
		sendError(w, requestID, "policy check failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	guardScanDuration.Observe(decision.Duration.Seconds())

	connector := h.resolveConnector(w, &req, client, requestID)
	if connector == nil {
		queriesTotal.WithLabelValues(req.Connector, "error").Inc()
		return
	}

	result, err := connector.Query(r.Context(), &base.Query{
		Statement:  req.Statement,
		Parameters: req.Parameters,
		Limit:      req.Limit,
	})
	if err != nil {
		queriesTotal.WithLabelValues(req.Connector, "error").Inc()
		log.Printf("[Gateway] Query failed on connector '%s' (request=%s): %v", req.Connector, requestID, err)
		sendError(w, requestID, "query failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	queriesTotal.WithLabelValues(req.Connector, "success").Inc()
	requestDuration.WithLabelValues("query").Observe(float64(time.Since(startTime).Milliseconds()))

	sendJSON(w, http.StatusOK, QueryResponse{
		Success:    true,
		RequestID:  requestID,
		Rows:       result.Rows,
		RowCount:   result.RowCount,
		Truncated:  result.Truncated,
		DurationMs: time.Since(startTime).Milliseconds(),
		Connector:  req.Connector,
	})
}

// handleExecute serves POST /v1/execute: the write path. Disabled unless
// writes are enabled gateway-wide; the client additionally needs the
// execute permission. Statements still pass injection and bypass
// screening, and read-only connectors refuse the call at the driver level.
func (h *handlers) handleExecute(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := uuid.New().String()

	if !h.cfg.AllowWrites {
		sendError(w, requestID, "writes are disabled on this gateway", http.StatusForbidden)
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, requestID, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Statement == "" {
		sendError(w, requestID, "statement field is required", http.StatusBadRequest)
		return
	}

	client := h.authenticate(w, r, &req, requestID)
	if client == nil {
		return
	}
	if !client.HasPermission("execute") {
		sendError(w, requestID, "client lacks execute permission", http.StatusForbidden)
		return
	}

	decision, err := h.enforcer.CheckWriteStatement(r.Context(), req.Connector, client.ID, req.Statement)
	if err != nil {
		if sqlguard.IsPolicyViolation(err) {
			queriesBlocked.WithLabelValues(req.Connector, "policy").Inc()
			queriesTotal.WithLabelValues(req.Connector, "blocked").Inc()
			sendBlocked(w, requestID, decision)
			return
		}
		sendError(w, requestID, "policy check failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	guardScanDuration.Observe(decision.Duration.Seconds())

	connector := h.resolveConnector(w, &req, client, requestID)
	if connector == nil {
		queriesTotal.WithLabelValues(req.Connector, "error").Inc()
		return
	}

	result, err := connector.Execute(r.Context(), &base.Command{
		Statement:  req.Statement,
		Parameters: req.Parameters,
	})
	if err != nil {
		queriesTotal.WithLabelValues(req.Connector, "error").Inc()
		log.Printf("[Gateway] Execute failed on connector '%s' (request=%s): %v", req.Connector, requestID, err)
		sendError(w, requestID, "execute failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	queriesTotal.WithLabelValues(req.Connector, "success").Inc()
	requestDuration.WithLabelValues("execute").Observe(float64(time.Since(startTime).Milliseconds()))

	sendJSON(w, http.StatusOK, QueryResponse{
		Success:    true,
		RequestID:  requestID,
		RowCount:   result.RowsAffected,
		DurationMs: time.Since(startTime).Milliseconds(),
		Connector:  req.Connector,
	})
}

// handleCheck serves POST /v1/check: classify a statement without
// executing it. The dry run never counts as a violation and emits no
// audit events, so clients can lint statements freely.
func (h *handlers) handleCheck(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, requestID, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Statement == "" {
		sendError(w, requestID, "statement field is required", http.StatusBadRequest)
		return
	}

	client := h.authenticate(w, r, &req, requestID)
	if client == nil {
		return
	}

	decision := sqlguard.Evaluate(req.Statement)
	guardScanDuration.Observe(decision.Duration.Seconds())

	patterns := make([]string, 0, len(decision.Findings))
	for _, f := range decision.Findings {
		patterns = append(patterns, f.Pattern)
	}

	guardCfg := h.enforcer.GetConfig()
	mode := guardCfg.ModeForConnector(req.Connector)

	sendJSON(w, http.StatusOK, CheckResponse{
		Allowed:    decision.Allowed,
		Keywords:   decision.Keywords.Labels(),
		Patterns:   patterns,
		Bypass:     decision.Bypass,
		Reasons:    decision.Reasons,
		Mode:       mode.String(),
		DurationUs: decision.Duration.Microseconds(),
	})
}

// handleConnectors serves GET /v1/connectors: the configured connectors
// with their types. Connection URLs never appear in the response.
func (h *handlers) handleConnectors(w http.ResponseWriter, r *http.Request) {
	type connectorInfo struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		ReadOnly bool   `json:"read_only"`
	}

	types := h.registry.ListWithTypes()
	connectors := make([]connectorInfo, 0, len(types))
	for name, connectorType := range types {
		info := connectorInfo{Name: name, Type: connectorType}
		if cfg, err := h.registry.GetConfig(name); err == nil {
			info.ReadOnly = cfg.ReadOnly
		}
		connectors = append(connectors, info)
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"connectors": connectors,
	})
}

// handleConnectorsReload serves POST /v1/connectors/reload: pick up
// connectors added to the config file without restarting the gateway.
// The config cache bounds how often reloads re-read the file and
// re-resolve secrets; ?force=true invalidates it so edits apply
// immediately. Already-registered connectors keep their running
// configuration.
func (h *handlers) handleConnectorsReload(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, requestID, "invalid request body", http.StatusBadRequest)
		return
	}

	client := h.authenticate(w, r, &req, requestID)
	if client == nil {
		return
	}
	if !client.HasPermission("admin") {
		sendError(w, requestID, "client lacks admin permission", http.StatusForbidden)
		return
	}

	force := r.URL.Query().Get("force") == "true"
	configs, fromCache, err := h.source.load(r.Context(), force)
	if err != nil {
		sendError(w, requestID, "failed to reload connector configs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	added := h.registry.LoadConfigs(configs)
	if added > 0 {
		log.Printf("[Gateway] Reload registered %d new connector(s) (request=%s)", added, requestID)
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"request_id": requestID,
		"connectors": len(configs),
		"added":      added,
		"from_cache": fromCache,
	})
}

// handleConnectorHealth serves GET /v1/connectors/health.
func (h *handlers) handleConnectorHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	statuses := h.registry.HealthCheck(ctx)
	healthy := true
	for _, status := range statuses {
		if !status.Healthy {
			healthy = false
			break
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	sendJSON(w, code, map[string]interface{}{
		"success":    healthy,
		"connectors": statuses,
	})
}

// handleGuardMetrics serves GET /v1/guard/metrics: enforcer counters and
// the active configuration.
func (h *handlers) handleGuardMetrics(w http.ResponseWriter, r *http.Request) {
	cfg := h.enforcer.GetConfig()
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"metrics":         h.enforcer.GetMetrics(),
		"mode":            cfg.Mode.String(),
		"stacking_policy": cfg.StackingPolicy.String(),
	})
}

// sendBlocked writes the policy violation envelope.
func sendBlocked(w http.ResponseWriter, requestID string, decision *sqlguard.Decision) {
	resp := ErrorResponse{
		Success:   false,
		RequestID: requestID,
		Error:     "statement rejected by read-only policy",
		Blocked:   true,
	}
	if decision != nil {
		resp.BlockReason = decision.Reasons
	}
	sendJSON(w, http.StatusForbidden, resp)
}

// sendError writes the uniform JSON error envelope.
func sendError(w http.ResponseWriter, requestID, message string, statusCode int) {
	sendJSON(w, statusCode, ErrorResponse{
		Success:   false,
		RequestID: requestID,
		Error:     message,
	})
}

func sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Gateway] Failed to encode response: %v", err)
	}
}
