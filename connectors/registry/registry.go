// Copyright 2025 SQLWard
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"sqlward/platform/connectors/base"
)

// ConnectorFactory creates a connector instance based on type
type ConnectorFactory func(connectorType string) (base.Connector, error)

// Registry manages all configured connectors.
// Thread-safe for concurrent access.
type Registry struct {
	connectors map[string]base.Connector
	configs    map[string]*base.ConnectorConfig
	factory    ConnectorFactory // Factory for lazy-loading connectors
	mu         sync.RWMutex
	logger     *log.Logger
}

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]base.Connector),
		configs:    make(map[string]*base.ConnectorConfig),
		factory:    nil, // No factory by default
		logger:     log.New(os.Stdout, "[REGISTRY] ", log.LstdFlags),
	}
}

// SetFactory sets the connector factory for lazy-loading
// This should be called after registry initialization to enable lazy connector instantiation
func (r *Registry) SetFactory(factory ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = factory
	r.logger.Println("Connector factory configured for lazy-loading")
}

// LoadConfigs stores connector configurations for lazy instantiation.
// The factory creates and connects each connector on first Get, so a
// connector that is down at startup does not block the rest. Entries
// without a name and duplicates are skipped. Returns the number of
// configs stored.
func (r *Registry) LoadConfigs(configs []*base.ConnectorConfig) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, config := range configs {
		if config == nil || config.Name == "" {
			continue
		}
		if _, exists := r.configs[config.Name]; exists {
			r.logger.Printf("Skipping duplicate connector config: %s", config.Name)
			continue
		}
		r.configs[config.Name] = config
		loaded++
		r.logger.Printf("Loaded connector config: %s (type: %s, read_only: %v)",
			config.Name, config.Type, config.ReadOnly)
	}

	return loaded
}

// Register adds a new connector to the registry
// Returns error if a connector with the same name already exists
func (r *Registry) Register(name string, connector base.Connector, config *base.ConnectorConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("connector '%s' already registered", name)
	}

	// Attempt to connect the connector
	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if err := connector.Connect(ctx, config); err != nil {
		r.logger.Printf("Failed to connect connector '%s': %v", name, err)
		return fmt.Errorf("failed to connect connector '%s': %w", name, err)
	}

	r.connectors[name] = connector
	r.configs[name] = config

	r.logger.Printf("Registered connector '%s' (type: %s)", name, config.Type)

	return nil
}

// Unregister removes a connector from the registry and disconnects it
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connector, exists := r.connectors[name]
	if !exists {
		return fmt.Errorf("connector '%s' not found", name)
	}

	// Disconnect the connector
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := connector.Disconnect(ctx); err != nil {
		r.logger.Printf("Error disconnecting connector '%s': %v", name, err)
	}

	delete(r.connectors, name)
	delete(r.configs, name)

	r.logger.Printf("Unregistered connector '%s'", name)

	return nil
}

// Get retrieves a connector by name, lazy-loading if necessary
func (r *Registry) Get(name string) (base.Connector, error) {
	// First try to get existing connector (read lock)
	r.mu.RLock()
	connector, exists := r.connectors[name]
	config, hasConfig := r.configs[name]
	factory := r.factory
	r.mu.RUnlock()

	if exists {
		return connector, nil
	}

	// If we have a config but no connector instance, lazy-load it
	if hasConfig && factory != nil {
		return r.lazyLoadConnector(name, config)
	}

	return nil, fmt.Errorf("connector '%s' not found", name)
}

// lazyLoadConnector creates and connects a connector instance from its stored config
func (r *Registry) lazyLoadConnector(name string, config *base.ConnectorConfig) (base.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check if connector was created by another goroutine
	if connector, exists := r.connectors[name]; exists {
		return connector, nil
	}

	r.logger.Printf("Lazy-loading connector '%s' (type: %s)", name, config.Type)

	// Create connector instance using factory
	connector, err := r.factory(config.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector '%s': %w", name, err)
	}

	// Connect the connector
	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if err := connector.Connect(ctx, config); err != nil {
		r.logger.Printf("Failed to connect lazy-loaded connector '%s': %v", name, err)
		return nil, fmt.Errorf("failed to connect connector '%s': %w", name, err)
	}

	// Store the connected connector
	r.connectors[name] = connector
	r.logger.Printf("Successfully lazy-loaded connector '%s'", name)

	return connector, nil
}

// GetConfig retrieves a connector's configuration by name
func (r *Registry) GetConfig(name string) (*base.ConnectorConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.configs[name]
	if !exists {
		return nil, fmt.Errorf("config for connector '%s' not found", name)
	}

	return config, nil
}

// List returns all connector names with a stored config, connected or not
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}

	return names
}

// ListWithTypes returns all connector names mapped to their types
func (r *Registry) ListWithTypes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string)
	for name, config := range r.configs {
		result[name] = config.Type
	}

	return result
}

// HealthCheck performs health checks on all connected connectors
// Returns a map of connector names to their health status
func (r *Registry) HealthCheck(ctx context.Context) map[string]*base.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]*base.HealthStatus)

	for name, connector := range r.connectors {
		status, err := connector.HealthCheck(ctx)
		if err != nil {
			r.logger.Printf("Health check failed for connector '%s': %v", name, err)
			status = &base.HealthStatus{
				Healthy: false,
				Error:   err.Error(),
			}
		}
		results[name] = status
	}

	return results
}

// HealthCheckSingle performs a health check on a specific connector
func (r *Registry) HealthCheckSingle(ctx context.Context, name string) (*base.HealthStatus, error) {
	connector, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	status, err := connector.HealthCheck(ctx)
	if err != nil {
		r.logger.Printf("Health check failed for connector '%s': %v", name, err)
		return &base.HealthStatus{
			Healthy: false,
			Error:   err.Error(),
		}, nil
	}

	return status, nil
}

// Count returns the number of connected connectors
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connectors)
}

// DisconnectAll disconnects all connected connectors
// Useful for graceful shutdown
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Println("Disconnecting all connectors...")

	for name, connector := range r.connectors {
		if err := connector.Disconnect(ctx); err != nil {
			r.logger.Printf("Error disconnecting connector '%s': %v", name, err)
		} else {
			r.logger.Printf("Disconnected connector '%s'", name)
		}
	}

	r.logger.Println("All connectors disconnected")
}

// GetConnectorsByTenant returns all connectors accessible to a specific tenant
func (r *Registry) GetConnectorsByTenant(tenantID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0)
	for name, config := range r.configs {
		if config.TenantID == tenantID || config.TenantID == "*" {
			names = append(names, name)
		}
	}

	return names
}

// ValidateTenantAccess checks if a tenant can access a specific connector
func (r *Registry) ValidateTenantAccess(connectorName, tenantID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.configs[connectorName]
	if !exists {
		return fmt.Errorf("connector '%s' not found", connectorName)
	}

	if config.TenantID != tenantID && config.TenantID != "*" {
		return fmt.Errorf("tenant '%s' does not have access to connector '%s'", tenantID, connectorName)
	}

	return nil
}
