// Package gatewayapi provides a thin client for the SQLWard gateway HTTP API.
package gatewayapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running SQLWard gateway.
type Client struct {
	baseURL    string
	clientID   string
	apiKey     string
	httpClient *http.Client
}

// CheckResult is the gateway's /v1/check response.
type CheckResult struct {
	Allowed    bool     `json:"allowed"`
	Keywords   []string `json:"keywords,omitempty"`
	Patterns   []string `json:"patterns,omitempty"`
	Bypass     bool     `json:"bypass"`
	Reasons    []string `json:"reasons,omitempty"`
	Mode       string   `json:"mode"`
	DurationUs int64    `json:"duration_us"`
}

// HealthResult is the gateway's /health response.
type HealthResult struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ConnectorHealth reports one connector from /v1/connectors/health.
type ConnectorHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// NewClient creates a gateway API client.
func NewClient(baseURL, clientID, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		clientID:   clientID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Check classifies a statement via /v1/check without executing it.
func (c *Client) Check(connector, statement string) (*CheckResult, error) {
	body, err := json.Marshal(map[string]string{
		"connector": connector,
		"statement": statement,
		"client_id": c.clientID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var result CheckResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// Health fetches the gateway's own health.
func (c *Client) Health() (*HealthResult, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	var result HealthResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// ConnectorHealth fetches per-connector health. The map is returned even
// when some connectors are unhealthy (HTTP 503).
func (c *Client) ConnectorHealth() (map[string]ConnectorHealth, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/v1/connectors/health")
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, apiError(resp)
	}

	var envelope struct {
		Connectors map[string]ConnectorHealth `json:"connectors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return envelope.Connectors, nil
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, envelope.Error)
	}
	return fmt.Errorf("gateway returned %d", resp.StatusCode)
}
