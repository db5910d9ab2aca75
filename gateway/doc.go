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
Package gateway provides the SQLWard HTTP gateway: the authenticated,
policy-enforcing front door between client applications and the databases
behind the connectors.

# Overview

The gateway handles:

  - Client authentication via API keys and a static allowlist
  - Optional user authentication via JWT tokens
  - Multi-tenant connector isolation
  - Read-only SQL policy enforcement via the sqlguard engine
  - Rate limiting (in-memory or Redis-backed sliding window)
  - S3 audit archival of policy violations

# Request Flow

Every statement passes the guard before it reaches a connector:

	Client → authenticate → rate limit → sqlguard → connector → database

The guard scan is static string analysis, typically well under a
millisecond, so the gateway adds negligible latency to the query path.

# Endpoints

	POST /v1/query              Run a read statement through the guard
	POST /v1/execute            Run a write statement (disabled by default)
	POST /v1/check              Classify a statement without executing it
	GET  /v1/connectors         List configured connectors
	POST /v1/connectors/reload  Pick up new connectors from the config file
	GET  /v1/connectors/health  Health of every connector
	GET  /v1/guard/metrics      Enforcer counters and active config
	GET  /health                Liveness/readiness probe
	GET  /metrics               Prometheus metrics

# Configuration

Configuration comes from the gateway section of sqlward.yaml plus
SQLWARD_* environment variables, with the environment taking precedence.
The same file's connectors section is loaded by the connectors/config
package. See LoadConfig for the search paths.

# Write Path

/v1/execute returns 403 until writes are enabled gateway-wide
(allow_writes or SQLWARD_ALLOW_WRITES). Even then, statements still pass
injection and transaction-bypass screening, the client needs the execute
permission, and read-only connectors refuse the command at the driver
level. Defense stays layered; enabling writes removes exactly one layer.
*/
package gateway
