// Copyright (c) XDBLab
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		// Log is the logging config
		Log Logger `yaml:"log"`

		// Inspector is the config for the read-only HTTP introspection server
		Inspector InspectorConfig `yaml:"inspector"`

		// Audit is the config for the replay audit/telemetry sink
		Audit AuditConfig `yaml:"audit"`
	}

	// InspectorConfig controls the gin-based HTTP server that exposes
	// replayed workflow state for debugging.
	InspectorConfig struct {
		// HttpServer is the config for starting http.Server
		HttpServer HttpServerConfig `yaml:"httpServer"`
	}

	// AuditSinkType selects which Auditor implementation the engine wires up.
	AuditSinkType string

	// AuditConfig is the config for the audit/telemetry sink. Exactly one of
	// SQL or Pulsar is read, depending on Sink.
	AuditConfig struct {
		// Sink selects the Auditor implementation: "noop", "sql", or "pulsar".
		Sink AuditSinkType `yaml:"sink"`
		// SQL is used when Sink == AuditSinkTypeSQL
		SQL *SQL `yaml:"sql"`
		// Pulsar is used when Sink == AuditSinkTypePulsar
		Pulsar *PulsarConfig `yaml:"pulsar"`
	}

	// PulsarConfig is the config for publishing audit records to a Pulsar topic.
	PulsarConfig struct {
		// ServiceURL is the pulsar broker URL, e.g. pulsar://localhost:6650
		ServiceURL string `yaml:"serviceURL"`
		// AuditTopic is the topic that audit records are published to
		AuditTopic string `yaml:"auditTopic"`
		// OperationTimeout bounds how long a single publish can take
		OperationTimeout time.Duration `yaml:"operationTimeout"`
	}

	// HttpServerConfig is the config that will be mapped into http.Server
	HttpServerConfig struct {
		// Address optionally specifies the TCP address for the server to listen on,
		// in the form "host:port". If empty, ValidateAndSetDefaults sets it to ":8800".
		// The service names are defined in RFC 6335 and assigned by IANA.
		// See net.Dial for details of the address format.
		// For more details, see https://blog.cloudflare.com/the-complete-guide-to-golang-net-http-timeouts/
		Address string `yaml:"address"`
		// ReadTimeout is the maximum duration for reading the entire
		// request, including the body. Because ReadTimeout does not
		// let Handlers make per-request decisions on each request body's acceptable
		// deadline or upload rate, most users will prefer to use
		// ReadHeaderTimeout. It is valid to use them both.
		ReadTimeout time.Duration `yaml:"readTimeout"`
		/// WriteTimeout is the maximum duration before timing out
		// writes of the response. It is valid to use them both ReadTimeout and WriteTimeout.
		// For more details, see https://blog.cloudflare.com/the-complete-guide-to-golang-net-http-timeouts/
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		// TLSConfig optionally provides a TLS configuration for use
		// by ServeTLS and ListenAndServeTLS
		TLSConfig *tls.Config `yaml:"tlsConfig"`
		// the rest are less frequently used
		ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
		IdleTimeout       time.Duration `yaml:"idleTimeout"`
		MaxHeaderBytes    int           `yaml:"maxHeaderBytes"`
	}
)

const (
	AuditSinkTypeNoop   AuditSinkType = "noop"
	AuditSinkTypeSQL    AuditSinkType = "sql"
	AuditSinkTypePulsar AuditSinkType = "pulsar"
)

// NewConfig returns a new decoded Config struct
func NewConfig(configPath string) (*Config, error) {
	log.Printf("Loading configFile=%v\n", configPath)

	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)

	if err := d.Decode(&config); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) ValidateAndSetDefaults() error {
	if c.Inspector.HttpServer.Address == "" {
		c.Inspector.HttpServer.Address = ":8800"
	}

	switch c.Audit.Sink {
	case "":
		c.Audit.Sink = AuditSinkTypeNoop
	case AuditSinkTypeNoop:
	case AuditSinkTypeSQL:
		if c.Audit.SQL == nil {
			return fmt.Errorf("audit.sql config is required when audit.sink is sql")
		}
		sql := c.Audit.SQL
		if anyAbsent(sql.DatabaseName, sql.DBExtensionName, sql.ConnectAddr, sql.User) {
			return fmt.Errorf("some required configs are missing: audit.sql.databaseName, audit.sql.dbExtensionName, audit.sql.connectAddr, audit.sql.user")
		}
	case AuditSinkTypePulsar:
		if c.Audit.Pulsar == nil {
			return fmt.Errorf("audit.pulsar config is required when audit.sink is pulsar")
		}
		if c.Audit.Pulsar.ServiceURL == "" {
			return fmt.Errorf("audit.pulsar.serviceURL is required")
		}
		if c.Audit.Pulsar.AuditTopic == "" {
			return fmt.Errorf("audit.pulsar.auditTopic is required")
		}
		if c.Audit.Pulsar.OperationTimeout == 0 {
			c.Audit.Pulsar.OperationTimeout = 10 * time.Second
		}
	default:
		return fmt.Errorf("unknown audit.sink: %v", c.Audit.Sink)
	}
	return nil
}

func anyAbsent(strs ...string) bool {
	for _, s := range strs {
		if s == "" {
			return true
		}
	}
	return false
}

// String converts the config object into a string
func (c *Config) String() string {
	out, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		panic(err)
	}
	return string(out)
}
