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

// ReadonlyQueryInput is the input for the readonly_query tool.
type ReadonlyQueryInput struct {
	Connector string                 `json:"connector"`
	SQL       string                 `json:"sql"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Limit     int                    `json:"limit,omitempty"`
}

// ReadonlyQueryOutput is the result of readonly_query.
type ReadonlyQueryOutput struct {
	Rows      []map[string]interface{} `json:"rows"`
	RowCount  int                      `json:"row_count"`
	Truncated bool                     `json:"truncated,omitempty"`
}

// TransactInput is the input for the transact tool.
type TransactInput struct {
	Connector  string                 `json:"connector"`
	Statements []string               `json:"statements"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// TransactResult reports one statement of a transact batch.
type TransactResult struct {
	RowsAffected int    `json:"rows_affected"`
	Error        string `json:"error,omitempty"`
}

// TransactOutput is the result of transact.
type TransactOutput struct {
	Results      []TransactResult `json:"results"`
	RowsAffected int              `json:"rows_affected"`
}

// GetSchemaInput is the input for the get_schema tool.
type GetSchemaInput struct {
	Connector string `json:"connector"`
	Schema    string `json:"schema,omitempty"`
}

// TableInfo names one table visible to a connector.
type TableInfo struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// GetSchemaOutput is the result of get_schema.
type GetSchemaOutput struct {
	Tables []TableInfo `json:"tables"`
}
