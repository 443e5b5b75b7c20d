// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package inspector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/internal/coordinator"
)

func TestReplayStateEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	state := coordinator.InspectionState{
		PreviousStartedEventID: 7,
		CurrentStartedEventID:  3,
		Replaying:              true,
		PendingCommandCount:    2,
	}
	handler := newGinHandler(func() coordinator.InspectionState { return state }, log.NewDevelopmentLogger())

	engine := gin.New()
	engine.GET(PathReplayState, handler.ReplayState)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, PathReplayState, nil)
	engine.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	var got coordinator.InspectionState
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	assert.Equal(t, state, got)
}
