// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"fmt"

	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/config"
	"github.com/xdblab/wfreplay/internal/coordinator"
)

// Sink is an Auditor with a lifecycle: what the harness wires into a
// coordinator and tears down on shutdown.
type Sink interface {
	coordinator.Auditor
	Stop() error
}

type noopSink struct{}

func (noopSink) Publish(coordinator.AuditRecord) {}
func (noopSink) Stop() error                     { return nil }

// NewSinkFromConfig builds and starts the Auditor the config selects. The
// default (and the "noop" sink) discards every record.
func NewSinkFromConfig(cfg config.AuditConfig, logger log.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", config.AuditSinkTypeNoop:
		return noopSink{}, nil
	case config.AuditSinkTypeSQL:
		return NewSQLAuditor(cfg.SQL, logger)
	case config.AuditSinkTypePulsar:
		auditor := NewPulsarAuditor(*cfg.Pulsar, logger)
		if err := auditor.Start(); err != nil {
			return nil, err
		}
		return auditor, nil
	default:
		return nil, fmt.Errorf("unknown audit sink: %v", cfg.Sink)
	}
}
