// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/xdblab/wfreplay/cmd/replaycli/bootstrap"
	"github.com/xdblab/wfreplay/internal/coordinator"
	"github.com/xdblab/wfreplay/internal/workflowregistry"
)

func main() {
	registerBuiltinWorkflows()

	app := &cli.App{
		Name:  "wfreplay",
		Usage: "replay a recorded workflow history, or simulate one locally",
		Commands: []*cli.Command{
			{
				Name:  "replay",
				Usage: "drive a history fixture through the replay engine and print the resulting commands",
				Action: func(c *cli.Context) error {
					return bootstrap.ReplayCli(c)
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  bootstrap.FlagConfig,
						Value: "./config/development.yaml",
						Usage: "the config to start the replay harness with",
					},
					&cli.StringFlag{
						Name:  bootstrap.FlagFixture,
						Usage: "path to a YAML history fixture",
					},
					&cli.StringFlag{
						Name:  bootstrap.FlagWorkflow,
						Value: "sleep",
						Usage: "the registered workflow type to replay against",
					},
					&cli.BoolFlag{
						Name:  bootstrap.FlagSimulate,
						Usage: "execute the workflow against a local simulated service instead of a fixture",
					},
				},
			},
			{
				Name:  "state",
				Usage: "query a running harness's introspection endpoint",
				Action: func(c *cli.Context) error {
					return bootstrap.InspectCli(c)
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  bootstrap.FlagAddress,
						Value: "http://localhost:8800",
						Usage: "base URL of the harness's inspector server",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// registerBuiltinWorkflows installs a small demo workflow so the CLI is
// usable out of the box; real deployments register their own types before
// calling bootstrap.ReplayCli.
func registerBuiltinWorkflows() {
	workflowregistry.Register("sleep", func(ctx *coordinator.WorkflowContext) ([]byte, error) {
		engine := ctx.Engine()
		if _, err := ctx.Await(engine.NewTimer(5 * time.Second)); err != nil {
			return nil, err
		}
		return []byte("done"), nil
	})
}
