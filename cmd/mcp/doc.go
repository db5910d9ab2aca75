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
Command mcp runs the SQLWard MCP server over stdio.

It exposes the configured connectors to MCP clients (agents, editors)
through guard-screened tools: readonly_query, get_schema, and transact
(only when started with --allow-writes).

# Usage

	mcp [--allow-writes]

Connector configuration is read the same way the gateway reads it
(sqlward.yaml or SQLWARD_* environment variables). Connection URLs never
appear in tool output or logs.
*/
package main
