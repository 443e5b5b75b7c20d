// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xdblab/wfreplay/internal/history"
)

func TestTerminalCommandsAreMutuallyExclusive(t *testing.T) {
	emitted := []history.CommandType{history.CommandTypeCompleteWorkflowExecution}
	err := ValidateTerminalCommand(emitted, history.CommandTypeFailWorkflowExecution)
	assert.Error(t, err)

	err = ValidateTerminalCommand(emitted, history.CommandTypeStartTimer)
	assert.Error(t, err)
}

func TestNonTerminalCommandsStack(t *testing.T) {
	emitted := []history.CommandType{
		history.CommandTypeStartTimer,
		history.CommandTypeScheduleActivityTask,
	}
	assert.NoError(t, ValidateTerminalCommand(emitted, history.CommandTypeCompleteWorkflowExecution))
	assert.NoError(t, ValidateTerminalCommand(nil, history.CommandTypeFailWorkflowExecution))
}
