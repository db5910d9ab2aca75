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
Command gateway runs the SQLWard HTTP gateway.

The gateway authenticates client applications, screens every SQL
statement through the read-only policy guard, and proxies approved
statements to the configured database connectors.

# Usage

	gateway

# Configuration

Reads the gateway and connectors sections of sqlward.yaml, searched at
./sqlward.yaml, ./config/sqlward.yaml, and /etc/sqlward/sqlward.yaml
(override with SQLWARD_CONFIG).

# Environment Variables

Optional:
  - SQLWARD_PORT: HTTP server port (default: 8080)
  - SQLWARD_ALLOW_WRITES: enable the /v1/execute endpoint
  - SQLWARD_GUARD_MODE: off | log | enforce (default: enforce)
  - SQLWARD_STACKING_POLICY: reject | allow-reads (default: reject)
  - SQLWARD_JWT_SECRET: enables user-token validation
  - SQLWARD_REDIS_URL: distributed rate limiting
  - SQLWARD_AUDIT_BUCKET / SQLWARD_AUDIT_REGION: S3 audit archival
  - SQLWARD_CONNECTORS: extra env-configured connectors ("name:type" pairs)
*/
package main
