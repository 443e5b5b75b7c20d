// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package inspector serves the read-only HTTP introspection endpoint of the
// replay harness: the coordinator's current replay position for a run in
// progress, useful when driving a long fixture interactively.
package inspector

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/common/log/tag"
	"github.com/xdblab/wfreplay/config"
	"github.com/xdblab/wfreplay/internal/coordinator"
)

const PathReplayState = "/v1/replay/state"

// Server is the lifecycle interface the harness drives.
type Server interface {
	Start() error
	Stop(ctx context.Context) error
}

// StateFn supplies the current coordinator snapshot. Reading it is safe
// from the HTTP goroutine: InspectionState is a value copy.
type StateFn func() coordinator.InspectionState

type defaultServer struct {
	rootCtx    context.Context
	cfg        config.Config
	logger     log.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServerWithGin builds the inspector HTTP server around stateFn.
func NewServerWithGin(rootCtx context.Context, cfg config.Config, stateFn StateFn, logger log.Logger) Server {
	engine := gin.Default()

	handler := newGinHandler(stateFn, logger)
	engine.GET(PathReplayState, handler.ReplayState)

	svrCfg := cfg.Inspector.HttpServer
	httpServer := &http.Server{
		Addr:              svrCfg.Address,
		ReadTimeout:       svrCfg.ReadTimeout,
		WriteTimeout:      svrCfg.WriteTimeout,
		ReadHeaderTimeout: svrCfg.ReadHeaderTimeout,
		IdleTimeout:       svrCfg.IdleTimeout,
		MaxHeaderBytes:    svrCfg.MaxHeaderBytes,
		TLSConfig:         svrCfg.TLSConfig,
		Handler:           engine,
		BaseContext: func(listener net.Listener) context.Context {
			// for graceful shutdown
			return rootCtx
		},
	}

	return &defaultServer{
		rootCtx:    rootCtx,
		cfg:        cfg,
		logger:     logger,
		engine:     engine,
		httpServer: httpServer,
	}
}

func (s defaultServer) Start() error {
	go func() {
		err := s.httpServer.ListenAndServe()
		s.logger.Info("Http Server for replay inspector is closed", tag.Error(err))
	}()

	return nil
}

func (s defaultServer) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type ginHandler struct {
	stateFn StateFn
	logger  log.Logger
}

func newGinHandler(stateFn StateFn, logger log.Logger) *ginHandler {
	return &ginHandler{stateFn: stateFn, logger: logger}
}

func (h *ginHandler) ReplayState(c *gin.Context) {
	state := h.stateFn()
	h.logger.Debug("received ReplayState request",
		tag.EventID(state.CurrentStartedEventID), tag.Replaying(state.Replaying))
	c.JSON(http.StatusOK, state)
}
