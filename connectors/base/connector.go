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

package base

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout applies when neither the operation nor the connector
// config sets one.
const DefaultTimeout = 5 * time.Second

// ErrReadOnlyConnector is wrapped as the cause of Execute errors on
// connectors configured with ReadOnly. Callers detect it with errors.Is.
var ErrReadOnlyConnector = errors.New("connector is read-only")

// Connector defines the interface that all SQLWard data-source connectors
// implement. Statements reach a connector only after the policy guard has
// evaluated them; the connector's job is safe execution, not classification.
type Connector interface {
	// Lifecycle Management
	Connect(ctx context.Context, config *ConnectorConfig) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Read path. Runs inside a read-only transaction where the backing
	// store supports one.
	Query(ctx context.Context, query *Query) (*QueryResult, error)

	// Write path. Reachable only when writes are enabled for the client
	// and the connector is not configured ReadOnly.
	Execute(ctx context.Context, cmd *Command) (*CommandResult, error)

	// Metadata
	Name() string           // Unique connector instance name
	Type() string           // Connector type (postgres, mysql, cassandra)
	Version() string        // Connector version
	Capabilities() []string // List of capabilities (query, execute, read_only_tx)
}

// ConnectorConfig holds the configuration for a connector instance
type ConnectorConfig struct {
	Name          string                 `json:"name" yaml:"name"`                     // Unique name for this connector
	Type          string                 `json:"type" yaml:"type"`                     // Type: postgres, mysql, cassandra
	ConnectionURL string                 `json:"connection_url" yaml:"connection_url"` // Connection string (DSN)
	Credentials   map[string]string      `json:"credentials" yaml:"credentials"`       // Username, password, secret references
	Options       map[string]interface{} `json:"options" yaml:"options"`               // Connector-specific options
	Timeout       time.Duration          `json:"timeout" yaml:"timeout"`               // Operation timeout (default: 5s)
	MaxRetries    int                    `json:"max_retries" yaml:"max_retries"`       // Retry count for transient failures
	TenantID      string                 `json:"tenant_id" yaml:"tenant_id"`           // For multi-tenancy isolation
	ReadOnly      bool                   `json:"read_only" yaml:"read_only"`           // Refuse Execute entirely when true
}

// Query represents a read operation
type Query struct {
	Statement  string                 `json:"statement"`  // SQL or CQL text
	Parameters map[string]interface{} `json:"parameters"` // Query parameters
	Timeout    time.Duration          `json:"timeout"`    // Override default timeout
	Limit      int                    `json:"limit"`      // Result row limit (optional)
}

// QueryResult contains the results of a Query operation
type QueryResult struct {
	Rows      []map[string]interface{} `json:"rows"`               // Result rows (key-value maps)
	RowCount  int                      `json:"row_count"`          // Number of rows returned
	Duration  time.Duration            `json:"duration"`           // Query execution time
	Truncated bool                     `json:"truncated"`          // Row limit cut off further rows
	Connector string                   `json:"connector"`          // Connector name that executed query
	Metadata  map[string]interface{}   `json:"metadata,omitempty"` // Additional metadata
}

// Command represents a write operation
type Command struct {
	Action     string                 `json:"action"`     // INSERT, UPDATE, DELETE, etc.
	Statement  string                 `json:"statement"`  // SQL or CQL text
	Parameters map[string]interface{} `json:"parameters"` // Command parameters
	Timeout    time.Duration          `json:"timeout"`    // Override default timeout
}

// CommandResult contains the results of a Command execution
type CommandResult struct {
	Success      bool                   `json:"success"`                  // Was command successful?
	RowsAffected int                    `json:"rows_affected"`            // Number of rows affected
	LastInsertID int64                  `json:"last_insert_id,omitempty"` // Driver-reported insert id (mysql)
	Duration     time.Duration          `json:"duration"`                 // Execution time
	Message      string                 `json:"message"`                  // Status message
	Connector    string                 `json:"connector"`                // Connector name
	Metadata     map[string]interface{} `json:"metadata,omitempty"`       // Additional metadata
}

// HealthStatus represents the health of a connector
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`   // Overall health status
	Latency   time.Duration     `json:"latency"`   // Connection latency
	Details   map[string]string `json:"details"`   // Additional diagnostic info
	Timestamp time.Time         `json:"timestamp"` // When health check was performed
	Error     string            `json:"error"`     // Error message if unhealthy
}

// EffectiveTimeout resolves the timeout for one operation. The operation's
// override wins, then the connector config, then DefaultTimeout. A zero
// timeout is never returned; passing one to context.WithTimeout would
// expire the operation immediately.
func EffectiveTimeout(override, configured time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if configured > 0 {
		return configured
	}
	return DefaultTimeout
}

// OptionInt reads an integer option. YAML decoding delivers int, JSON
// delivers float64; both are accepted.
func OptionInt(options map[string]interface{}, key string, def int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// OptionString reads a string option.
func OptionString(options map[string]interface{}, key, def string) string {
	if v, ok := options[key].(string); ok {
		return v
	}
	return def
}

// OptionDuration reads a duration option given as a string like "5m".
func OptionDuration(options map[string]interface{}, key string, def time.Duration) time.Duration {
	if v, ok := options[key].(string); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// ConnectorError represents errors specific to connector operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
