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
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Client represents an authenticated client application.
type Client struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TenantID    string   `json:"tenant_id"`
	Permissions []string `json:"permissions"`
	RateLimit   int      `json:"rate_limit"`
	Enabled     bool     `json:"enabled"`
}

// User represents an authenticated end user extracted from a JWT.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	TenantID    string   `json:"tenant_id"`
}

// HasPermission reports whether the client may perform the named operation.
// A "*" entry grants everything.
func (c *Client) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission || p == "*" {
			return true
		}
	}
	return false
}

// defaultRateLimit applies to allowlisted clients that don't set one.
const defaultRateLimit = 600 // requests per minute

// authenticator validates clients against the configured allowlist and
// user tokens against the JWT secret.
type authenticator struct {
	cfg     *Config
	limiter *rateLimiter
}

func newAuthenticator(cfg *Config, limiter *rateLimiter) *authenticator {
	return &authenticator{cfg: cfg, limiter: limiter}
}

// validateClient checks the client ID and API key against the allowlist
// and applies the client's rate limit. An empty allowlist accepts any
// client ID, which keeps single-tenant deployments zero-config.
func (a *authenticator) validateClient(ctx context.Context, clientID, apiKey string) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID required")
	}

	if len(a.cfg.Clients) == 0 {
		client := &Client{
			ID:          clientID,
			Name:        clientID,
			TenantID:    "*",
			Permissions: []string{"query", "check"},
			RateLimit:   defaultRateLimit,
			Enabled:     true,
		}
		if err := a.limiter.check(ctx, clientID, client.RateLimit); err != nil {
			return nil, err
		}
		return client, nil
	}

	clientCfg, exists := a.cfg.ClientByID(clientID)
	if !exists {
		return nil, fmt.Errorf("client '%s' not found in allowlist", clientID)
	}
	if !clientCfg.Enabled {
		return nil, fmt.Errorf("client '%s' is disabled", clientID)
	}
	if clientCfg.APIKey != "" && apiKey != clientCfg.APIKey {
		return nil, fmt.Errorf("invalid API key for client '%s'", clientID)
	}

	rateLimit := clientCfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}
	if err := a.limiter.check(ctx, clientID, rateLimit); err != nil {
		return nil, err
	}

	tenantID := clientCfg.TenantID
	if tenantID == "" {
		tenantID = "*"
	}

	return &Client{
		ID:          clientCfg.ClientID,
		Name:        clientCfg.Name,
		TenantID:    tenantID,
		Permissions: clientCfg.Permissions,
		RateLimit:   rateLimit,
		Enabled:     true,
	}, nil
}

// validateUserToken parses and verifies a user JWT. The token is optional:
// when the gateway has no JWT secret configured, requests carry client
// identity only and user attribution is skipped.
func (a *authenticator) validateUserToken(tokenString, expectedTenantID string) (*User, error) {
	if a.cfg.JWTSecret == "" {
		return nil, nil
	}
	if tokenString == "" {
		return nil, fmt.Errorf("user token required")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	tenantID := getClaimString(claims, "tenant_id")
	if tenantID == "" {
		tenantID = expectedTenantID
	}

	return &User{
		ID:          getClaimString(claims, "user_id"),
		Email:       getClaimString(claims, "email"),
		Name:        getClaimString(claims, "name"),
		Role:        getClaimString(claims, "role"),
		Permissions: getClaimStringArray(claims, "permissions"),
		TenantID:    tenantID,
	}, nil
}

// getClaimString safely extracts a string claim
func getClaimString(claims jwt.MapClaims, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}

// getClaimStringArray safely extracts a string array claim
func getClaimStringArray(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key].([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}
