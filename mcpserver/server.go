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

package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sqlward/platform/connectors/base"
	"sqlward/platform/connectors/registry"
	"sqlward/platform/gateway/sqlguard"
	"sqlward/platform/shared/logger"
)

const (
	ServerName    = "sqlward-mcp"
	ServerVersion = "1.2.0"

	// mcpClientID labels guard checks and audit events originating from
	// the stdio transport, where there is no HTTP client identity.
	mcpClientID = "mcp-stdio"
)

// Options configures the MCP server.
type Options struct {
	// Registry supplies the connectors tools run against.
	Registry *registry.Registry

	// Enforcer screens every statement before it reaches a connector.
	Enforcer *sqlguard.Enforcer

	// AllowWrites enables the transact tool. Off by default; injection and
	// bypass screening still applies when enabled.
	AllowWrites bool
}

// New returns an MCP server with the SQLWard tools registered.
func New(opts Options) (*mcp.Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("connector registry is required")
	}
	if opts.Enforcer == nil {
		return nil, fmt.Errorf("policy enforcer is required")
	}

	log := logger.New("mcp")

	s := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name: "readonly_query",
		Description: "Run a read-only SQL statement against a configured connector. " +
			"Statements carrying mutating keywords, injection signatures, or " +
			"transaction bypass attempts are rejected before execution.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in ReadonlyQueryInput) (*mcp.CallToolResult, ReadonlyQueryOutput, error) {
		if in.Connector == "" {
			return nil, ReadonlyQueryOutput{}, fmt.Errorf("connector is required")
		}
		if in.SQL == "" {
			return nil, ReadonlyQueryOutput{}, fmt.Errorf("sql is required")
		}

		decision, err := opts.Enforcer.CheckStatement(ctx, in.Connector, mcpClientID, in.SQL)
		if err != nil {
			if sqlguard.IsPolicyViolation(err) {
				return nil, ReadonlyQueryOutput{}, fmt.Errorf("statement rejected by read-only policy: %s", reasonSummary(decision))
			}
			return nil, ReadonlyQueryOutput{}, err
		}

		connector, err := opts.Registry.Get(in.Connector)
		if err != nil {
			return nil, ReadonlyQueryOutput{}, fmt.Errorf("connector not available: %w", err)
		}

		result, err := connector.Query(ctx, &base.Query{
			Statement:  in.SQL,
			Parameters: in.Params,
			Limit:      in.Limit,
		})
		if err != nil {
			return nil, ReadonlyQueryOutput{}, fmt.Errorf("query failed: %w", err)
		}

		log.Info(mcpClientID, "", "Query executed", map[string]interface{}{
			"connector": in.Connector,
			"row_count": result.RowCount,
			"truncated": result.Truncated,
		})

		return nil, ReadonlyQueryOutput{
			Rows:      result.Rows,
			RowCount:  result.RowCount,
			Truncated: result.Truncated,
		}, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "transact",
		Description: "Execute write statements against a connector. Available only when " +
			"the server was started with writes enabled. Statements still pass " +
			"injection and transaction-bypass screening.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in TransactInput) (*mcp.CallToolResult, TransactOutput, error) {
		if !opts.AllowWrites {
			return nil, TransactOutput{}, fmt.Errorf("writes are disabled; start the server with --allow-writes")
		}
		if in.Connector == "" {
			return nil, TransactOutput{}, fmt.Errorf("connector is required")
		}
		if len(in.Statements) == 0 {
			return nil, TransactOutput{}, fmt.Errorf("statements is required")
		}

		// Screen the whole batch before executing anything, so a rejected
		// statement never leaves earlier ones half-applied.
		for i, stmt := range in.Statements {
			decision, err := opts.Enforcer.CheckWriteStatement(ctx, in.Connector, mcpClientID, stmt)
			if err != nil {
				if sqlguard.IsPolicyViolation(err) {
					return nil, TransactOutput{}, fmt.Errorf("statement %d rejected: %s", i+1, reasonSummary(decision))
				}
				return nil, TransactOutput{}, err
			}
		}

		connector, err := opts.Registry.Get(in.Connector)
		if err != nil {
			return nil, TransactOutput{}, fmt.Errorf("connector not available: %w", err)
		}

		out := TransactOutput{Results: make([]TransactResult, 0, len(in.Statements))}
		for i, stmt := range in.Statements {
			result, err := connector.Execute(ctx, &base.Command{
				Statement:  stmt,
				Parameters: in.Params,
			})
			if err != nil {
				out.Results = append(out.Results, TransactResult{Error: err.Error()})
				return nil, out, fmt.Errorf("statement %d failed: %w", i+1, err)
			}
			out.Results = append(out.Results, TransactResult{RowsAffected: result.RowsAffected})
			out.RowsAffected += result.RowsAffected
		}

		log.Info(mcpClientID, "", "Transaction executed", map[string]interface{}{
			"connector":     in.Connector,
			"statements":    len(in.Statements),
			"rows_affected": out.RowsAffected,
		})

		return nil, out, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "get_schema",
		Description: "List tables visible to a connector via information_schema. The " +
			"listing query itself runs through the read-only guard.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in GetSchemaInput) (*mcp.CallToolResult, GetSchemaOutput, error) {
		if in.Connector == "" {
			return nil, GetSchemaOutput{}, fmt.Errorf("connector is required")
		}

		stmt, params := schemaQuery(in.Schema)

		decision, err := opts.Enforcer.CheckStatement(ctx, in.Connector, mcpClientID, stmt)
		if err != nil {
			if sqlguard.IsPolicyViolation(err) {
				return nil, GetSchemaOutput{}, fmt.Errorf("schema query rejected: %s", reasonSummary(decision))
			}
			return nil, GetSchemaOutput{}, err
		}

		connector, err := opts.Registry.Get(in.Connector)
		if err != nil {
			return nil, GetSchemaOutput{}, fmt.Errorf("connector not available: %w", err)
		}

		result, err := connector.Query(ctx, &base.Query{Statement: stmt, Parameters: params})
		if err != nil {
			return nil, GetSchemaOutput{}, fmt.Errorf("schema query failed: %w", err)
		}

		out := GetSchemaOutput{Tables: make([]TableInfo, 0, len(result.Rows))}
		for _, row := range result.Rows {
			out.Tables = append(out.Tables, TableInfo{
				Schema: stringField(row, "table_schema"),
				Name:   stringField(row, "table_name"),
			})
		}
		return nil, out, nil
	})

	return s, nil
}

// schemaQuery builds the information_schema listing, optionally filtered
// to one schema.
func schemaQuery(schema string) (string, map[string]interface{}) {
	if schema != "" {
		return "SELECT table_schema, table_name FROM information_schema.tables " +
				"WHERE table_type = 'BASE TABLE' AND table_schema = :schema " +
				"ORDER BY table_name",
			map[string]interface{}{"schema": schema}
	}
	return "SELECT table_schema, table_name FROM information_schema.tables " +
		"WHERE table_type = 'BASE TABLE' ORDER BY table_schema, table_name", nil
}

func reasonSummary(decision *sqlguard.Decision) string {
	if decision == nil || len(decision.Reasons) == 0 {
		return "policy violation"
	}
	return decision.Reasons[0]
}

func stringField(row map[string]interface{}, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", row[key])
	}
}
