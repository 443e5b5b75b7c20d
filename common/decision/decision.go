// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package decision validates the mutual-exclusion rules workflow code must
// respect when it issues terminal commands within a single workflow task.
package decision

import (
	"fmt"

	"github.com/xdblab/wfreplay/internal/history"
)

// ValidateTerminalCommand enforces that CompleteWorkflowExecution and
// FailWorkflowExecution are mutually exclusive terminals: once either has
// been emitted, no further command may be produced in this workflow task.
func ValidateTerminalCommand(alreadyEmitted []history.CommandType, next history.CommandType) error {
	for _, emitted := range alreadyEmitted {
		if isTerminal(emitted) {
			return fmt.Errorf("cannot emit %s: workflow task already emitted terminal command %s", next, emitted)
		}
	}
	return nil
}

func isTerminal(t history.CommandType) bool {
	switch t {
	case history.CommandTypeCompleteWorkflowExecution,
		history.CommandTypeFailWorkflowExecution,
		history.CommandTypeCancelWorkflowExecution,
		history.CommandTypeContinueAsNewWorkflowExecution:
		return true
	default:
		return false
	}
}
