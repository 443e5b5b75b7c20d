// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package activityretry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xdblab/wfreplay/internal/history"
)

func TestBackoffGrowsWithAttempts(t *testing.T) {
	policy := &history.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    10 * time.Second,
	}
	start := time.UnixMilli(0)

	backoff, retry := GetNextBackoff(1, &history.Failure{Type: "io"}, start, start, policy)
	assert.True(t, retry)
	assert.Equal(t, time.Second, backoff)

	backoff, retry = GetNextBackoff(3, &history.Failure{Type: "io"}, start, start, policy)
	assert.True(t, retry)
	assert.Equal(t, 4*time.Second, backoff)

	// capped at the maximum interval
	backoff, retry = GetNextBackoff(10, &history.Failure{Type: "io"}, start, start, policy)
	assert.True(t, retry)
	assert.Equal(t, 10*time.Second, backoff)
}

func TestNonRetryableFailureStopsRetrying(t *testing.T) {
	_, retry := GetNextBackoff(1, &history.Failure{Type: "fatal", NonRetryable: true}, time.UnixMilli(0), time.UnixMilli(0), nil)
	assert.False(t, retry)
}

func TestDoNotRetryListStopsMatchingTypes(t *testing.T) {
	policy := &history.RetryPolicy{DoNotRetry: []string{"AssertionError"}}

	_, retry := GetNextBackoff(1, &history.Failure{Type: "AssertionError"}, time.UnixMilli(0), time.UnixMilli(0), policy)
	assert.False(t, retry)

	_, retry = GetNextBackoff(1, &history.Failure{Type: "io"}, time.UnixMilli(0), time.UnixMilli(0), policy)
	assert.True(t, retry)
}

func TestMaximumAttemptsStopsRetrying(t *testing.T) {
	policy := &history.RetryPolicy{MaximumAttempts: 3}

	_, retry := GetNextBackoff(2, &history.Failure{Type: "io"}, time.UnixMilli(0), time.UnixMilli(0), policy)
	assert.True(t, retry)

	_, retry = GetNextBackoff(3, &history.Failure{Type: "io"}, time.UnixMilli(0), time.UnixMilli(0), policy)
	assert.False(t, retry)
}

func TestDefaultsAppliedWhenPolicyAbsent(t *testing.T) {
	backoff, retry := GetNextBackoff(1, &history.Failure{Type: "io"}, time.UnixMilli(0), time.UnixMilli(0), nil)
	assert.True(t, retry)
	assert.Equal(t, time.Second, backoff)
}
