// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/config"
	"github.com/xdblab/wfreplay/internal/coordinator"
)

func TestNoopSinkIsDefault(t *testing.T) {
	sink, err := NewSinkFromConfig(config.AuditConfig{}, log.NewDevelopmentLogger())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		sink.Publish(coordinator.AuditRecord{RunID: "run-1"})
	})
	assert.NoError(t, sink.Stop())

	sink, err = NewSinkFromConfig(config.AuditConfig{Sink: config.AuditSinkTypeNoop}, log.NewDevelopmentLogger())
	require.NoError(t, err)
	assert.NoError(t, sink.Stop())
}

func TestUnknownSinkIsRejected(t *testing.T) {
	_, err := NewSinkFromConfig(config.AuditConfig{Sink: "kafka"}, log.NewDevelopmentLogger())
	assert.Error(t, err)
}
