// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"

	"github.com/iancoleman/strcase"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // load the SQL driver for postgres

	"github.com/xdblab/wfreplay/common/clock"
	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/common/log/tag"
	"github.com/xdblab/wfreplay/config"
	"github.com/xdblab/wfreplay/internal/coordinator"
)

const dsnFmt = "postgres://%s@%s:%s/%s"

const createAuditTableQuery = `CREATE TABLE IF NOT EXISTS wfreplay_audit(
	run_id VARCHAR(128) NOT NULL,
	workflow_task_started_event_id BIGINT NOT NULL,
	commands JSONB NOT NULL,
	non_deterministic BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, workflow_task_started_event_id)
)`

const insertAuditRecordQuery = `INSERT INTO wfreplay_audit
	(run_id, workflow_task_started_event_id, commands, non_deterministic, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (run_id, workflow_task_started_event_id) DO NOTHING`

type SQLAuditor struct {
	db         *sqlx.DB
	timeSource clock.TimeSource
	logger     log.Logger
}

// NewSQLAuditor returns an Auditor that appends one row per finalized
// workflow task to a Postgres-backed audit table. The table is created if
// absent.
func NewSQLAuditor(cfg *config.SQL, logger log.Logger) (*SQLAuditor, error) {
	db, err := createDBConn(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), createAuditTableQuery); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLAuditor{
		db:         db,
		timeSource: clock.NewRealTimeSource(),
		logger:     logger,
	}, nil
}

func (s *SQLAuditor) Stop() error {
	return s.db.Close()
}

func (s *SQLAuditor) Publish(record coordinator.AuditRecord) {
	commands, err := json.Marshal(record.Commands)
	if err != nil {
		s.logger.Error("failed to serialize audit commands", tag.Error(err), tag.RunID(record.RunID))
		return
	}
	_, err = s.db.ExecContext(context.Background(), insertAuditRecordQuery,
		record.RunID, record.WorkflowTaskStartedEventID, commands, record.NonDeterministic, s.timeSource.Now())
	if err != nil {
		s.logger.Error("failed to insert audit record",
			tag.Error(err),
			tag.RunID(record.RunID),
			tag.EventID(record.WorkflowTaskStartedEventID))
	}
}

func createDBConn(cfg *config.SQL) (*sqlx.DB, error) {
	host, port, err := net.SplitHostPort(cfg.ConnectAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid connect address, it must be in host:port format, %v, err: %v", cfg.ConnectAddr, err)
	}

	sslParams := url.Values{}
	sslParams.Set("sslmode", "disable")
	db, err := sqlx.Connect(cfg.DBExtensionName, buildDSN(cfg, host, port, sslParams))
	if err != nil {
		return nil, err
	}

	// Maps struct names in CamelCase to snake without need for db struct tags.
	db.MapperFunc(strcase.ToSnake)
	return db, nil
}

func buildDSN(cfg *config.SQL, host string, port string, params url.Values) string {
	dbName := cfg.DatabaseName
	if dbName == "" {
		dbName = "postgres"
	}
	credentialString := generateCredentialString(cfg.User, cfg.Password)
	dsn := fmt.Sprintf(dsnFmt, credentialString, host, port, dbName)
	if attrs := params.Encode(); attrs != "" {
		dsn += "?" + attrs
	}
	return dsn
}

func generateCredentialString(user string, password string) string {
	userPass := url.PathEscape(user)
	if password != "" {
		userPass += ":" + url.PathEscape(password)
	}
	return userPass
}
