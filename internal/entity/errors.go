// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/workflowerror"
)

func failureToError(f *history.Failure) error {
	if f == nil {
		return &workflowerror.ApplicationFailure{}
	}
	return &workflowerror.ApplicationFailure{
		Type:         f.Type,
		Message:      f.Message,
		Details:      f.Details,
		NonRetryable: f.NonRetryable,
	}
}

func timeoutError(timeoutType string) error {
	return &workflowerror.TimeoutFailure{TimeoutType: workflowerror.TimeoutType(timeoutType)}
}

func canceledError() error {
	return &workflowerror.CanceledFailure{}
}
