// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package bootstrap wires the replay CLI together: config, logging, audit
// sink, introspection server, and either a fixture replay or a local
// simulation of a registered workflow.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/common/log/tag"
	"github.com/xdblab/wfreplay/common/uuid"
	"github.com/xdblab/wfreplay/config"
	"github.com/xdblab/wfreplay/internal/audit"
	"github.com/xdblab/wfreplay/internal/coordinator"
	"github.com/xdblab/wfreplay/internal/fixture"
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/inspector"
	"github.com/xdblab/wfreplay/internal/simulator"
	"github.com/xdblab/wfreplay/internal/workflowregistry"
)

const (
	FlagConfig   = "config"
	FlagFixture  = "fixture"
	FlagWorkflow = "workflow"
	FlagSimulate = "simulate"
	FlagAddress  = "address"
)

// InspectCli queries a running harness's introspection endpoint and prints
// the coordinator snapshot.
func InspectCli(c *cli.Context) error {
	logger := log.NewDevelopmentLogger()
	state, err := inspector.FetchState(context.Background(), c.String(FlagAddress), logger)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

// ReplayCli runs one replay (or simulation) per the CLI flags and prints
// the resulting command stream as JSON.
func ReplayCli(c *cli.Context) error {
	cfg, err := config.NewConfig(c.String(FlagConfig))
	if err != nil {
		return err
	}
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return err
	}
	zapLogger, err := cfg.Log.NewZapLogger()
	if err != nil {
		return err
	}
	logger := log.NewLogger(zapLogger)

	auditor, err := audit.NewSinkFromConfig(cfg.Audit, logger)
	if err != nil {
		return err
	}

	workflowType := c.String(FlagWorkflow)
	workflowFn, err := workflowregistry.Get(workflowType)
	if err != nil {
		return err
	}

	coord := coordinator.New(coordinator.Options{
		RunID:   uuid.MustNewUUID().String(),
		Logger:  logger,
		Auditor: auditor,
	})
	coord.RegisterWorkflowRoot(workflowFn)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inspectorServer := inspector.NewServerWithGin(rootCtx, *cfg, coord.Inspect, logger)
	if err := inspectorServer.Start(); err != nil {
		return err
	}

	var runErr error
	if c.Bool(FlagSimulate) {
		runErr = simulate(coord, workflowType, logger)
	} else {
		runErr = replayFixture(coord, c.String(FlagFixture), logger)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	stopErr := multierr.Combine(
		inspectorServer.Stop(shutdownCtx),
		auditor.Stop(),
	)
	return multierr.Append(runErr, stopErr)
}

// replayFixture feeds a recorded history through the coordinator and
// prints the commands each workflow task produced.
func replayFixture(coord *coordinator.Coordinator, path string, logger log.Logger) error {
	if path == "" {
		return fmt.Errorf("--%s is required unless --%s is set", FlagFixture, FlagSimulate)
	}
	f, err := fixture.Load(path)
	if err != nil {
		return err
	}
	events, err := f.HistoryEvents()
	if err != nil {
		return err
	}
	if err := coord.SetPreviousStartedEventID(f.PreviousStartedEventID); err != nil {
		return err
	}
	coord.SetWorkflowTaskStartedEventID(f.WorkflowTaskStartedEventID)

	logger.Info("replaying fixture",
		tag.RunID(f.RunID), tag.EventID(f.PreviousStartedEventID))
	for i, event := range events {
		if err := coord.HandleEvent(event, i < len(events)-1); err != nil {
			return err
		}
	}
	return printCommands(coord.DrainCommands())
}

// simulate executes the workflow from an empty history against an
// in-process stand-in for the service, with timers elapsing on the wall
// clock.
func simulate(coord *coordinator.Coordinator, workflowType string, logger log.Logger) error {
	sim := simulator.New(coord, true, logger)
	outcome, err := sim.Run(workflowType+"-simulated", workflowType, nil)
	if err != nil {
		return err
	}
	logger.Info("simulation finished", tag.Value(string(outcome.Status)))
	out, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func printCommands(commands []history.Command) error {
	type printedCommand struct {
		CommandType string `json:"commandType"`
		Attributes  any    `json:"attributes,omitempty"`
	}
	out := make([]printedCommand, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, printedCommand{CommandType: cmd.CommandType.String(), Attributes: cmd.Attributes})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}
