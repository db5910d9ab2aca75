// Copyright 2025 SQLWard
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"sqlward/platform/connectors/base"

	"gopkg.in/yaml.v3"
)

// ConfigFile represents the connectors section of a sqlward.yaml file.
type ConfigFile struct {
	Version    string                         `yaml:"version"`
	Connectors map[string]ConnectorFileConfig `yaml:"connectors,omitempty"`
}

// ConnectorFileConfig represents a connector configuration in the config file
type ConnectorFileConfig struct {
	Type          string                 `yaml:"type"`
	Enabled       bool                   `yaml:"enabled"`
	DisplayName   string                 `yaml:"display_name,omitempty"`
	Description   string                 `yaml:"description,omitempty"`
	ConnectionURL string                 `yaml:"connection_url,omitempty"`
	Credentials   map[string]string      `yaml:"credentials,omitempty"`
	SecretARN     string                 `yaml:"secret_arn,omitempty"`
	Options       map[string]interface{} `yaml:"options,omitempty"`
	TimeoutMs     int                    `yaml:"timeout_ms,omitempty"`
	MaxRetries    int                    `yaml:"max_retries,omitempty"`
	TenantID      string                 `yaml:"tenant_id,omitempty"`
	ReadOnly      bool                   `yaml:"read_only,omitempty"`
}

// YAMLConfigFileLoader loads connector configurations from a YAML file
type YAMLConfigFileLoader struct {
	filePath string
	config   *ConfigFile
}

// NewYAMLConfigFileLoader creates a new YAML config file loader
func NewYAMLConfigFileLoader(filePath string) (*YAMLConfigFileLoader, error) {
	loader := &YAMLConfigFileLoader{
		filePath: filePath,
	}

	// Load and parse the config file
	if err := loader.reload(); err != nil {
		return nil, err
	}

	return loader, nil
}

// reload reads and parses the configuration file
func (l *YAMLConfigFileLoader) reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.filePath, err)
	}

	// Expand environment variables in the content
	expanded := ExpandEnvVars(string(data))

	var config ConfigFile
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	l.config = &config
	return nil
}

// LoadConnectors returns connector configs from the config file
func (l *YAMLConfigFileLoader) LoadConnectors(tenantID string) ([]*base.ConnectorConfig, error) {
	if l.config == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	var configs []*base.ConnectorConfig

	for name, fileConfig := range l.config.Connectors {
		if !fileConfig.Enabled {
			continue
		}

		// Filter by tenant if specified
		cfgTenantID := fileConfig.TenantID
		if cfgTenantID == "" {
			cfgTenantID = "*" // Default to wildcard
		}
		if tenantID != "*" && cfgTenantID != "*" && cfgTenantID != tenantID {
			continue
		}

		timeout := time.Duration(fileConfig.TimeoutMs) * time.Millisecond
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		maxRetries := fileConfig.MaxRetries
		if maxRetries == 0 {
			maxRetries = 3
		}

		options := fileConfig.Options
		if options == nil {
			options = make(map[string]interface{})
		}

		credentials := fileConfig.Credentials
		if credentials == nil {
			credentials = make(map[string]string)
		}
		if fileConfig.SecretARN != "" {
			credentials["secret_arn"] = fileConfig.SecretARN
		}

		cfg := &base.ConnectorConfig{
			Name:          name,
			Type:          fileConfig.Type,
			ConnectionURL: fileConfig.ConnectionURL,
			Credentials:   credentials,
			Options:       options,
			Timeout:       timeout,
			MaxRetries:    maxRetries,
			TenantID:      cfgTenantID,
			ReadOnly:      fileConfig.ReadOnly,
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}

// Reload reloads the configuration file
func (l *YAMLConfigFileLoader) Reload() error {
	return l.reload()
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME, and ${VAR_NAME:-default} syntax.
// Undefined variables without a default expand to the empty string.
func ExpandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		// Handle default values: ${VAR_NAME:-default}
		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultVal
	})
}

// validConnectorTypes are the engines the gateway can front.
var validConnectorTypes = map[string]bool{
	"postgres":  true,
	"mysql":     true,
	"cassandra": true,
}

// ValidateConfigFile validates the structure of a config file
func ValidateConfigFile(config *ConfigFile) error {
	if config.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}

	for name, connector := range config.Connectors {
		if connector.Type == "" {
			return fmt.Errorf("connector '%s' must specify a type", name)
		}
		if !validConnectorTypes[connector.Type] {
			return fmt.Errorf("connector '%s' has invalid type '%s'", name, connector.Type)
		}
	}

	return nil
}

// GenerateExampleConfigFile generates an example configuration file
func GenerateExampleConfigFile() string {
	return `# SQLWard connector configuration
# Environment variables can be referenced using ${VAR_NAME} or ${VAR_NAME:-default} syntax

version: "1.0"

connectors:
  # PostgreSQL connector example
  postgres_main:
    type: postgres
    enabled: true
    display_name: "Main Database"
    description: "Primary PostgreSQL database"
    connection_url: ${DATABASE_URL}
    credentials:
      username: ${POSTGRES_USER:-postgres}
      password: ${POSTGRES_PASSWORD}
    options:
      max_open_conns: 25
      max_idle_conns: 5
      conn_max_lifetime: "5m"
    timeout_ms: 30000
    max_retries: 3
    read_only: true

  # MySQL connector example
  mysql_reporting:
    type: mysql
    enabled: false  # Enable when configured
    display_name: "Reporting Database"
    connection_url: ${MYSQL_URL}
    secret_arn: ${MYSQL_SECRET_ARN}
    timeout_ms: 30000
    read_only: true

  # Cassandra connector example
  cassandra_events:
    type: cassandra
    enabled: false  # Enable when configured
    display_name: "Event Store"
    connection_url: ${CASSANDRA_HOSTS:-localhost:9042}
    options:
      keyspace: ${CASSANDRA_KEYSPACE:-events}
      consistency: QUORUM
    timeout_ms: 10000
    read_only: true
`
}
