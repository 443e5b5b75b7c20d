// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xdblab/wfreplay/common/httperror"
	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/internal/coordinator"
)

// FetchState queries a running harness's introspection endpoint and returns
// the coordinator snapshot it is serving.
func FetchState(ctx context.Context, baseURL string, logger log.Logger) (*coordinator.InspectionState, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+PathReplayState, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if httperror.CheckHttpResponseAndError(err, resp, logger) {
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return nil, fmt.Errorf("inspector returned status %d", resp.StatusCode)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	state := &coordinator.InspectionState{}
	if err := json.Unmarshal(body, state); err != nil {
		return nil, err
	}
	return state, nil
}
