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
	"log"
	"sync"

	"sqlward/platform/connectors/base"
	"sqlward/platform/connectors/cassandra"
	"sqlward/platform/connectors/mysql"
	"sqlward/platform/connectors/postgres"
	"sqlward/platform/connectors/registry"
)

// Supported connector types.
const (
	ConnectorPostgres  = "postgres"
	ConnectorMySQL     = "mysql"
	ConnectorCassandra = "cassandra"
)

// ConnectorCreator is a function that creates a new connector instance.
type ConnectorCreator func() base.Connector

// ConnectorFactoryRegistry holds registered connector creators, keyed by
// connector type.
type ConnectorFactoryRegistry struct {
	mu       sync.RWMutex
	creators map[string]ConnectorCreator
	logger   *log.Logger
}

var (
	defaultConnectorFactory     *ConnectorFactoryRegistry
	defaultConnectorFactoryOnce sync.Once
)

// GetDefaultConnectorFactory returns the singleton factory, initialized
// with all supported database connectors on first call.
func GetDefaultConnectorFactory() *ConnectorFactoryRegistry {
	defaultConnectorFactoryOnce.Do(func() {
		defaultConnectorFactory = NewConnectorFactoryRegistry()
		defaultConnectorFactory.RegisterDatabaseConnectors()
	})
	return defaultConnectorFactory
}

// NewConnectorFactoryRegistry creates a new empty connector factory.
func NewConnectorFactoryRegistry() *ConnectorFactoryRegistry {
	return &ConnectorFactoryRegistry{
		creators: make(map[string]ConnectorCreator),
		logger:   log.New(log.Writer(), "[CONNECTOR_FACTORY] ", log.LstdFlags),
	}
}

// RegisterOrReplace adds or replaces a connector creator.
func (f *ConnectorFactoryRegistry) RegisterOrReplace(connectorType string, creator ConnectorCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[connectorType] = creator
}

// Create instantiates a new connector of the given type.
func (f *ConnectorFactoryRegistry) Create(connectorType string) (base.Connector, error) {
	f.mu.RLock()
	creator, exists := f.creators[connectorType]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no creator registered for connector type: %s", connectorType)
	}
	return creator(), nil
}

// IsRegistered checks if a connector type has a creator registered.
func (f *ConnectorFactoryRegistry) IsRegistered(connectorType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.creators[connectorType]
	return exists
}

// RegisteredTypes returns a list of all registered connector types.
func (f *ConnectorFactoryRegistry) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	return types
}

// RegisterDatabaseConnectors registers the creators for every database
// engine the gateway fronts.
func (f *ConnectorFactoryRegistry) RegisterDatabaseConnectors() {
	f.RegisterOrReplace(ConnectorPostgres, func() base.Connector {
		return postgres.NewPostgresConnector()
	})
	f.RegisterOrReplace(ConnectorMySQL, func() base.Connector {
		return mysql.NewMySQLConnector()
	})
	f.RegisterOrReplace(ConnectorCassandra, func() base.Connector {
		return cassandra.NewCassandraConnector()
	})
	f.logger.Printf("Registered %d database connectors", len(f.creators))
}

// DefaultConnectorFactory adapts the singleton factory to the function
// type the connector registry expects for lazy loading.
func DefaultConnectorFactory() registry.ConnectorFactory {
	factory := GetDefaultConnectorFactory()
	return func(connectorType string) (base.Connector, error) {
		return factory.Create(connectorType)
	}
}
