// Copyright 2025 SQLWard
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"testing"

	"sqlward/platform/connectors/base"
)

func TestResolveCredentials(t *testing.T) {
	sm := NewLocalSecretsManager(nil)
	sm.SetSecret("arn:aws:secretsmanager:us-east-1:123456789012:secret:db-creds", map[string]string{
		"username": "vault-user",
		"password": "vault-pass",
	})

	cfg := &base.ConnectorConfig{
		Name: "maindb",
		Type: "postgres",
		Credentials: map[string]string{
			"secret_arn": "arn:aws:secretsmanager:us-east-1:123456789012:secret:db-creds",
		},
	}

	if err := ResolveCredentials(context.Background(), sm, cfg); err != nil {
		t.Fatalf("ResolveCredentials failed: %v", err)
	}

	if cfg.Credentials["username"] != "vault-user" {
		t.Errorf("Expected username 'vault-user', got '%s'", cfg.Credentials["username"])
	}
	if cfg.Credentials["password"] != "vault-pass" {
		t.Errorf("Expected password 'vault-pass', got '%s'", cfg.Credentials["password"])
	}
}

func TestResolveCredentials_InlineWins(t *testing.T) {
	sm := NewLocalSecretsManager(nil)
	sm.SetSecret("arn:aws:secretsmanager:us-east-1:123456789012:secret:db-creds", map[string]string{
		"username": "vault-user",
		"password": "vault-pass",
	})

	cfg := &base.ConnectorConfig{
		Name: "maindb",
		Type: "postgres",
		Credentials: map[string]string{
			"secret_arn": "arn:aws:secretsmanager:us-east-1:123456789012:secret:db-creds",
			"password":   "operator-override",
		},
	}

	if err := ResolveCredentials(context.Background(), sm, cfg); err != nil {
		t.Fatalf("ResolveCredentials failed: %v", err)
	}

	if cfg.Credentials["password"] != "operator-override" {
		t.Errorf("Inline credential should win, got '%s'", cfg.Credentials["password"])
	}
	if cfg.Credentials["username"] != "vault-user" {
		t.Errorf("Missing credential should be filled from secret, got '%s'", cfg.Credentials["username"])
	}
}

func TestResolveCredentials_NoSecretRef(t *testing.T) {
	sm := NewLocalSecretsManager(nil)

	cfg := &base.ConnectorConfig{
		Name:        "maindb",
		Type:        "postgres",
		Credentials: map[string]string{"username": "plain"},
	}

	if err := ResolveCredentials(context.Background(), sm, cfg); err != nil {
		t.Fatalf("ResolveCredentials should be a no-op without secret_arn: %v", err)
	}
	if cfg.Credentials["username"] != "plain" {
		t.Errorf("Credentials should be unchanged, got '%s'", cfg.Credentials["username"])
	}
}

func TestResolveCredentials_SecretNotFound(t *testing.T) {
	sm := NewLocalSecretsManager(nil)

	cfg := &base.ConnectorConfig{
		Name: "maindb",
		Type: "postgres",
		Credentials: map[string]string{
			"secret_arn": "arn:aws:secretsmanager:us-east-1:123456789012:secret:missing",
		},
	}

	if err := ResolveCredentials(context.Background(), sm, cfg); err == nil {
		t.Fatal("Expected error for missing secret, got nil")
	}
}

func TestLocalSecretsManager(t *testing.T) {
	sm := NewLocalSecretsManager(nil)
	sm.SetSecret("dev-secret", map[string]string{"password": "hunter2"})

	secret, err := sm.GetSecret(context.Background(), "dev-secret")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if secret["password"] != "hunter2" {
		t.Errorf("Expected password 'hunter2', got '%s'", secret["password"])
	}

	if _, err := sm.GetSecret(context.Background(), "absent"); err == nil {
		t.Error("Expected error for unknown secret, got nil")
	}
}

func TestEnvSecretsManager(t *testing.T) {
	t.Setenv("MAINDB_USERNAME", "env-user")
	t.Setenv("MAINDB_PASSWORD", "env-pass")

	sm := NewEnvSecretsManager(nil)
	secret, err := sm.GetSecret(context.Background(), "MAINDB")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}

	if secret["username"] != "env-user" {
		t.Errorf("Expected username 'env-user', got '%s'", secret["username"])
	}
	if secret["password"] != "env-pass" {
		t.Errorf("Expected password 'env-pass', got '%s'", secret["password"])
	}
}

func TestEnvSecretsManager_NoCredentials(t *testing.T) {
	sm := NewEnvSecretsManager(nil)
	if _, err := sm.GetSecret(context.Background(), "NOSUCHPREFIX"); err == nil {
		t.Error("Expected error when no credentials exist for prefix")
	}
}

func TestMaskARN(t *testing.T) {
	tests := []struct {
		name     string
		arn      string
		expected string
	}{
		{
			name:     "full ARN",
			arn:      "arn:aws:secretsmanager:us-east-1:123456789012:secret:db-creds-AbCdEf",
			expected: "...s-AbCdEf",
		},
		{
			name:     "short string",
			arn:      "short",
			expected: "***",
		},
		{
			name:     "empty string",
			arn:      "",
			expected: "***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskARN(tt.arn); got != tt.expected {
				t.Errorf("maskARN(%q) = %q, want %q", tt.arn, got, tt.expected)
			}
		})
	}
}
