// Copyright 2025 SQLWard
// SPDX-License-Identifier: Apache-2.0

/*
Package registry provides a thread-safe registry for the database connectors
behind the SQLWard gateway.

# Overview

The Registry is the central management point for all connectors. It handles:

  - Connector registration and lifecycle management
  - Lazy instantiation of connectors declared in the YAML config file
  - Tenant isolation and access control
  - Health checking across all connected connectors

# Creating a Registry

	registry := NewRegistry()

# Loading Configured Connectors

At startup the gateway parses its connector file and hands the configs to
the registry. Nothing connects yet; each connector is created and connected
on first use:

	registry.SetFactory(func(connectorType string) (base.Connector, error) {
	    switch connectorType {
	    case "postgres":
	        return postgres.NewPostgresConnector(), nil
	    case "mysql":
	        return mysql.NewMySQLConnector(), nil
	    case "cassandra":
	        return cassandra.NewCassandraConnector(), nil
	    default:
	        return nil, fmt.Errorf("unknown connector type: %s", connectorType)
	    }
	})

	loaded := registry.LoadConfigs(configs)

# Registering Connectors

A connector can also be registered directly with its configuration, which
connects it immediately:

	config := &base.ConnectorConfig{
	    Name:          "reporting-postgres",
	    Type:          "postgres",
	    ConnectionURL: "postgres://...",
	    TenantID:      "analytics",
	    Timeout:       5 * time.Second,
	    ReadOnly:      true,
	}

	err := registry.Register("reporting-postgres", postgresConnector, config)

# Using Connectors

	connector, err := registry.Get("reporting-postgres")
	if err != nil {
	    return err
	}

	result, err := connector.Query(ctx, &base.Query{
	    Statement: "SELECT * FROM customers",
	})

# Tenant Access Control

	// Check if a tenant can use a connector
	err := registry.ValidateTenantAccess("reporting-postgres", "analytics")
	if err != nil {
	    return err // Access denied
	}

	// List all connectors for a tenant
	connectors := registry.GetConnectorsByTenant("analytics")

A connector with TenantID "*" is accessible to every tenant.

# Health Checking

	health := registry.HealthCheck(ctx)
	for name, status := range health {
	    if !status.Healthy {
	        log.Printf("Connector %s unhealthy: %s", name, status.Error)
	    }
	}

List reports every configured connector; Count and HealthCheck cover only
the instances that have actually connected.

# Graceful Shutdown

Disconnect all connectors on shutdown:

	registry.DisconnectAll(ctx)

# Thread Safety

The Registry is safe for concurrent use. All methods use sync.RWMutex
for proper synchronization. Multiple goroutines can register, retrieve,
and query connectors simultaneously.
*/
package registry
