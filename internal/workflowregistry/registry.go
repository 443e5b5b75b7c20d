// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package workflowregistry maps workflow type names to the Go functions
// implementing them, so the replay CLI can look up which code to replay a
// fixture against.
package workflowregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xdblab/wfreplay/internal/coordinator"
)

var (
	mu        sync.RWMutex
	workflows = make(map[string]coordinator.WorkflowFunc)
)

// Register binds a workflow type name to its implementation. Registering
// the same name twice is a programmer error.
func Register(workflowType string, fn coordinator.WorkflowFunc) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := workflows[workflowType]; exists {
		panic(fmt.Sprintf("workflowregistry: workflow type %q registered twice", workflowType))
	}
	workflows[workflowType] = fn
}

// Get returns the implementation for workflowType.
func Get(workflowType string) (coordinator.WorkflowFunc, error) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := workflows[workflowType]
	if !ok {
		return nil, fmt.Errorf("no workflow registered for type %q (registered: %v)", workflowType, names())
	}
	return fn, nil
}

func names() []string {
	out := make([]string, 0, len(workflows))
	for name := range workflows {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
