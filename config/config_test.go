// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, `
log:
  level: debug
`))
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateAndSetDefaults())
	assert.Equal(t, ":8800", cfg.Inspector.HttpServer.Address)
	assert.Equal(t, AuditSinkTypeNoop, cfg.Audit.Sink)
}

func TestSQLSinkRequiresConnectionFields(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, `
audit:
  sink: sql
  sql:
    databaseName: audit
`))
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateAndSetDefaults())
}

func TestPulsarSinkRequiresTopic(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, `
audit:
  sink: pulsar
  pulsar:
    serviceURL: pulsar://localhost:6650
`))
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateAndSetDefaults())
}

func TestUnknownSinkIsRejected(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, `
audit:
  sink: kafka
`))
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateAndSetDefaults())
}
