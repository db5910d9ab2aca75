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
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	cfgfile "sqlward/platform/connectors/config"
	"sqlward/platform/gateway/sqlguard"
)

// configSearchPaths are probed in order when SQLWARD_CONFIG is not set.
var configSearchPaths = []string{
	"./sqlward.yaml",
	"./config/sqlward.yaml",
	"/etc/sqlward/sqlward.yaml",
}

// Config holds the gateway runtime configuration. It is assembled from the
// gateway section of sqlward.yaml with environment variables taking
// precedence over file values.
type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`

	// AllowWrites enables the /v1/execute endpoint gateway-wide. Even when
	// enabled, statements still pass injection and bypass screening and
	// read-only connectors still refuse writes.
	AllowWrites bool `yaml:"allow_writes"`

	// CORSOrigins restricts browser origins. Empty means allow all.
	CORSOrigins []string `yaml:"cors_origins"`

	// JWTSecret signs and verifies user tokens. Comes from
	// SQLWARD_JWT_SECRET; never stored in the config file.
	JWTSecret string `yaml:"-"`

	// RedisURL enables distributed rate limiting when set. Without it the
	// gateway falls back to per-process in-memory limits.
	RedisURL string `yaml:"redis_url"`

	// Clients is the static client allowlist.
	Clients []ClientConfig `yaml:"clients"`

	// Guard configures statement classification and enforcement.
	Guard sqlguard.Config `yaml:"guard"`

	// Archive configures S3 audit archival of policy violations.
	Archive ArchiveConfig `yaml:"audit_archive"`

	// configPath records where the file was found, for logging and for the
	// connector loader which reads the same file.
	configPath string
}

// ClientConfig describes one allowlisted client application.
type ClientConfig struct {
	ClientID    string   `yaml:"client_id"`
	APIKey      string   `yaml:"api_key"`
	Name        string   `yaml:"name"`
	TenantID    string   `yaml:"tenant_id"`
	Permissions []string `yaml:"permissions"`
	RateLimit   int      `yaml:"rate_limit"`
	Enabled     bool     `yaml:"enabled"`
}

// ArchiveConfig configures the S3 JSONL audit archiver.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	Prefix        string        `yaml:"prefix"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

// gatewayFile mirrors the top-level sqlward.yaml layout. The connectors
// section is parsed separately by the connectors/config loader.
type gatewayFile struct {
	Gateway Config `yaml:"gateway"`
}

// LoadConfig assembles the gateway configuration. The config file is
// optional; a gateway can run entirely from environment variables.
// Defaults are filled first so a sparse file only overrides the keys it
// names.
func LoadConfig() (*Config, error) {
	file := gatewayFile{
		Gateway: Config{
			Port:  "8080",
			Guard: sqlguard.DefaultConfig(),
			Archive: ArchiveConfig{
				Prefix:        "sqlward-audit",
				FlushInterval: 30 * time.Second,
				BatchSize:     100,
			},
		},
	}

	path := os.Getenv("SQLWARD_CONFIG")
	if path == "" {
		for _, candidate := range configSearchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		expanded := cfgfile.ExpandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		file.Gateway.configPath = path
	}

	cfg := &file.Gateway
	applyEnvOverrides(cfg)

	// SQLWARD_GUARD_MODE and SQLWARD_STACKING_POLICY win over the file.
	if modeStr := os.Getenv(sqlguard.EnvGuardMode); modeStr != "" {
		cfg.Guard.Mode = sqlguard.ConfigFromEnv().Mode
	}
	if policyStr := os.Getenv(sqlguard.EnvStackingPolicy); policyStr != "" {
		cfg.Guard.StackingPolicy = sqlguard.ConfigFromEnv().StackingPolicy
	}

	if err := cfg.Guard.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guard config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("SQLWARD_PORT"); port != "" {
		cfg.Port = port
	}
	if v := os.Getenv("SQLWARD_ALLOW_WRITES"); v != "" {
		allow, err := strconv.ParseBool(v)
		if err == nil {
			cfg.AllowWrites = allow
		}
	}
	if secret := os.Getenv("SQLWARD_JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
	if redisURL := os.Getenv("SQLWARD_REDIS_URL"); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if bucket := os.Getenv("SQLWARD_AUDIT_BUCKET"); bucket != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Bucket = bucket
	}
	if region := os.Getenv("SQLWARD_AUDIT_REGION"); region != "" {
		cfg.Archive.Region = region
	}
}

// ConfigPath returns the path of the config file the gateway loaded, or
// empty when running from environment variables only.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// ClientByID looks up an allowlisted client.
func (c *Config) ClientByID(clientID string) (*ClientConfig, bool) {
	for i := range c.Clients {
		if c.Clients[i].ClientID == clientID {
			return &c.Clients[i], true
		}
	}
	return nil, false
}
