// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package audit implements the optional, replay-suppressed Auditor sinks
// the coordinator mirrors finalized workflow tasks to: a Pulsar topic for
// live fleets and a Postgres table for offline inspection. Both are
// human-facing audit trails only; the replay core never reads them back.
package audit

import (
	"context"
	"encoding/json"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/xdblab/wfreplay/common/clock"
	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/common/log/tag"
	"github.com/xdblab/wfreplay/config"
	"github.com/xdblab/wfreplay/internal/coordinator"
)

type PulsarAuditor struct {
	cfg        config.PulsarConfig
	client     pulsar.Client
	producer   pulsar.Producer
	records    chan coordinator.AuditRecord
	stopCh     chan struct{}
	timeSource clock.TimeSource
	logger     log.Logger
}

// NewPulsarAuditor returns an Auditor that publishes one message per
// finalized workflow task to the configured topic. Call Start before
// handing it to a coordinator and Stop on shutdown.
func NewPulsarAuditor(cfg config.PulsarConfig, logger log.Logger) *PulsarAuditor {
	return &PulsarAuditor{
		cfg:        cfg,
		records:    make(chan coordinator.AuditRecord, 128),
		stopCh:     make(chan struct{}),
		timeSource: clock.NewRealTimeSource(),
		logger:     logger,
	}
}

func (p *PulsarAuditor) Start() error {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:              p.cfg.ServiceURL,
		OperationTimeout: p.cfg.OperationTimeout,
	})
	if err != nil {
		return err
	}
	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: p.cfg.AuditTopic,
	})
	if err != nil {
		client.Close()
		return err
	}
	p.client = client
	p.producer = producer
	// publishing happens in a goroutine so Publish never blocks the
	// coordinator's event loop
	go p.publishRecords()
	return nil
}

func (p *PulsarAuditor) Stop() error {
	close(p.stopCh)
	p.producer.Close()
	p.client.Close()
	return nil
}

// Publish enqueues the record for asynchronous delivery. A full buffer
// drops the record with a warning rather than stalling replay.
func (p *PulsarAuditor) Publish(record coordinator.AuditRecord) {
	record.Timestamp = p.timeSource.Now()
	select {
	case p.records <- record:
	default:
		p.logger.Warn("audit record buffer is full, dropping record", tag.RunID(record.RunID))
	}
}

func (p *PulsarAuditor) publishRecords() {
	for {
		select {
		case record := <-p.records:
			payload, err := json.Marshal(record)
			if err != nil {
				p.logger.Error("failed to serialize audit record", tag.Error(err), tag.RunID(record.RunID))
				continue
			}
			_, err = p.producer.Send(context.Background(), &pulsar.ProducerMessage{
				Key:     record.RunID,
				Payload: payload,
			})
			if err != nil {
				p.logger.Error("failed to publish audit record",
					tag.Error(err),
					tag.RunID(record.RunID),
					tag.EventID(record.WorkflowTaskStartedEventID))
			}
		case <-p.stopCh:
			p.logger.Info("audit record publisher is closed")
			return
		}
	}
}
