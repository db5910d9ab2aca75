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

/*
Package logger provides structured JSON logging for SQLWard components.

# Overview

The logger package provides structured logging that outputs JSON to stdout,
making logs easily consumable by CloudWatch, ELK stack, or other log
aggregation systems. Every entry carries the client identifier so policy
decisions and query activity can be correlated per client.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (gateway, mcp, wardctl)
  - Instance ID and container name (for distributed tracing)
  - Client ID (for per-client audit correlation)
  - Request ID (for request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("gateway")

Log messages with client and request context:

	log.Info("client-123", "req-456", "Query allowed", map[string]interface{}{
	    "connector": "main-postgres",
	    "row_count": 42,
	})

Log errors with status codes:

	log.ErrorWithCode("client-123", "req-456", "Query blocked", 403, err, map[string]interface{}{
	    "connector": "main-postgres",
	})

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("client-123", "req-456", "Query completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"gateway","instance_id":"i-abc123","container":"gateway-xyz",
	 "client_id":"client-123","request_id":"req-456",
	 "message":"Query allowed","fields":{"connector":"main-postgres"}}

# Level Filtering

Loggers created with New drop entries below a minimum level. The default is
INFO; set SQLWARD_LOG_LEVEL=DEBUG to see debug output. A zero-value Logger
has no minimum and emits everything.

# Environment Variables

The logger reads these environment variables:

  - SQLWARD_LOG_LEVEL: Minimum level to emit (DEBUG, INFO, WARN, ERROR)
  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
