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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"sqlward/platform/connectors/base"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
)

// namedParamRegex matches :name parameters. The leading group keeps it from
// matching the second colon of a ::type cast.
var namedParamRegex = regexp.MustCompile(`(\A|[^:\w]):(\w+)`)

// PostgresConnector executes statements against PostgreSQL. The read path
// runs inside a READ ONLY transaction so the server rejects any write that
// slips past classification.
type PostgresConnector struct {
	config *base.ConnectorConfig
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresConnector creates a new PostgreSQL connector instance
func NewPostgresConnector() *PostgresConnector {
	return &PostgresConnector{
		logger: log.New(os.Stdout, "[POSTGRES] ", log.LstdFlags),
	}
}

// Connect establishes a connection to PostgreSQL
func (c *PostgresConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	// Open database connection
	db, err := sql.Open("postgres", config.ConnectionURL)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to open connection", err)
	}

	// Configure connection pool
	maxOpenConns := base.OptionInt(config.Options, "max_open_conns", DefaultMaxOpenConns)
	maxIdleConns := base.OptionInt(config.Options, "max_idle_conns", DefaultMaxIdleConns)
	connMaxLifetime := base.OptionDuration(config.Options, "conn_max_lifetime", DefaultConnMaxLifetime)

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return base.NewConnectorError(config.Name, "Connect", "failed to ping database", err)
	}

	c.db = db
	c.logger.Printf("Connected to PostgreSQL: %s (%s, max_open=%d, read_only=%v)",
		config.Name, base.MaskDSN(config.ConnectionURL), maxOpenConns, config.ReadOnly)

	return nil
}

// Disconnect closes the database connection
func (c *PostgresConnector) Disconnect(ctx context.Context) error {
	if c.db == nil {
		return nil
	}

	if err := c.db.Close(); err != nil {
		return base.NewConnectorError(c.Name(), "Disconnect", "failed to close connection", err)
	}

	c.logger.Printf("Disconnected from PostgreSQL: %s", c.Name())
	return nil
}

// HealthCheck verifies the database connection is healthy
func (c *PostgresConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.db == nil {
		return &base.HealthStatus{
			Healthy: false,
			Error:   "database not connected",
		}, nil
	}

	start := time.Now()
	err := c.db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	// Get connection stats
	stats := c.db.Stats()
	details := map[string]string{
		"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
		"in_use":           fmt.Sprintf("%d", stats.InUse),
		"idle":             fmt.Sprintf("%d", stats.Idle),
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   details,
		Timestamp: time.Now(),
	}, nil
}

// Query executes a read statement inside a READ ONLY transaction
func (c *PostgresConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.db == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "database not connected", nil)
	}

	// Apply timeout
	timeout := base.EffectiveTimeout(query.Timeout, c.configTimeout())
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Rewrite parameters to PostgreSQL positional placeholders
	stmt, args, err := c.buildArgs(query.Statement, query.Parameters)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to build query parameters", err)
	}

	start := time.Now()

	// BEGIN ... READ ONLY; the server refuses writes inside it
	tx, err := c.db.BeginTx(queryCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to begin read-only transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(queryCtx, stmt, args...)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	// Get column names
	columns, err := rows.Columns()
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "failed to get columns", err)
	}

	// Scan rows
	results := make([]map[string]interface{}, 0)
	truncated := false
	for rows.Next() {
		// Check limit
		if query.Limit > 0 && len(results) >= query.Limit {
			truncated = true
			break
		}

		// Create slice for scanning
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		// Scan row
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, base.NewConnectorError(c.Name(), "Query", "failed to scan row", err)
		}

		// Build result map
		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			// Convert []byte to string for text/varchar fields
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		results = append(results, row)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "error during row iteration", err)
	}

	duration := time.Since(start)

	c.logger.Printf("Query executed: %d rows in %v", len(results), duration)

	return &base.QueryResult{
		Rows:      results,
		RowCount:  len(results),
		Duration:  duration,
		Truncated: truncated,
		Connector: c.Name(),
	}, nil
}

// Execute runs INSERT, UPDATE, DELETE, or other write operations.
// Connectors configured ReadOnly refuse it outright.
func (c *PostgresConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.db == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "database not connected", nil)
	}

	if c.config != nil && c.config.ReadOnly {
		return nil, base.NewConnectorError(c.Name(), "Execute",
			"connector is read-only; writes are disabled", base.ErrReadOnlyConnector)
	}

	// Apply timeout
	timeout := base.EffectiveTimeout(cmd.Timeout, c.configTimeout())
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Convert parameters
	stmt, args, err := c.buildArgs(cmd.Statement, cmd.Parameters)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "failed to build command parameters", err)
	}

	// Execute command
	start := time.Now()
	result, err := c.db.ExecContext(execCtx, stmt, args...)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "command execution failed", err)
	}

	duration := time.Since(start)

	// Get rows affected
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Printf("Warning: Could not get rows affected: %v", err)
		rowsAffected = 0
	}

	c.logger.Printf("Command executed: %d rows affected in %v", rowsAffected, duration)

	return &base.CommandResult{
		Success:      true,
		RowsAffected: int(rowsAffected),
		Duration:     duration,
		Message:      fmt.Sprintf("%s executed successfully", cmd.Action),
		Connector:    c.Name(),
	}, nil
}

// Name returns the connector name
func (c *PostgresConnector) Name() string {
	if c.config == nil {
		return "postgres"
	}
	return c.config.Name
}

// Type returns the connector type
func (c *PostgresConnector) Type() string {
	return "postgres"
}

// Version returns the connector version
func (c *PostgresConnector) Version() string {
	return "1.0.0"
}

// Capabilities returns the list of supported capabilities
func (c *PostgresConnector) Capabilities() []string {
	return []string{
		"query",
		"execute",
		"read_only_tx",
		"prepared_statements",
		"connection_pooling",
	}
}

func (c *PostgresConnector) configTimeout() time.Duration {
	if c.config == nil {
		return 0
	}
	return c.config.Timeout
}

// buildArgs converts the parameter map to a positional argument slice.
// Statements may use :name parameters, which are rewritten to $1, $2, ...
// in order of appearance, or native $N placeholders with numeric map keys
// ("1" binds $1). Non-numeric keys with $N placeholders bind in sorted key
// order.
func (c *PostgresConnector) buildArgs(statement string, params map[string]interface{}) (string, []interface{}, error) {
	if len(params) == 0 {
		return statement, nil, nil
	}

	if stmt, args, named, err := rewriteNamedParams(statement, params); named {
		return stmt, args, err
	}

	args := make([]interface{}, 0, len(params))

	// Numeric keys bind positionally
	numericKeys := true
	for key := range params {
		if _, err := strconv.Atoi(key); err != nil {
			numericKeys = false
			break
		}
	}

	if numericKeys {
		keys := make([]int, 0, len(params))
		for key := range params {
			k, _ := strconv.Atoi(key)
			keys = append(keys, k)
		}
		sort.Ints(keys)

		for _, k := range keys {
			args = append(args, params[strconv.Itoa(k)])
		}
	} else {
		keys := make([]string, 0, len(params))
		for key := range params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			args = append(args, params[key])
		}
	}

	return statement, args, nil
}

// rewriteNamedParams replaces each :name occurrence with the next $N
// placeholder and collects values in order of appearance. Returns
// named=false when the statement carries no :name parameters.
func rewriteNamedParams(statement string, params map[string]interface{}) (string, []interface{}, bool, error) {
	matches := namedParamRegex.FindAllStringSubmatchIndex(statement, -1)
	if len(matches) == 0 {
		return statement, nil, false, nil
	}

	var sb strings.Builder
	args := make([]interface{}, 0, len(matches))
	last := 0
	for _, m := range matches {
		name := statement[m[4]:m[5]]
		val, ok := params[name]
		if !ok {
			return "", nil, true, fmt.Errorf("missing parameter: %s", name)
		}
		args = append(args, val)
		sb.WriteString(statement[last:m[3]]) // text up through the char before the colon
		sb.WriteString("$")
		sb.WriteString(strconv.Itoa(len(args)))
		last = m[1]
	}
	sb.WriteString(statement[last:])

	return sb.String(), args, true, nil
}
