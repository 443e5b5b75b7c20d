// Copyright (c) 2023 XDBLab Organization
// SPDX-License-Identifier: BUSL-1.1

// Package activityretry computes activity retry backoff intervals from a
// RetryPolicy. Computation only depends on completedAttempts, the last
// failure and the policy, so the same inputs always produce the same backoff
// decision.
package activityretry

import (
	"math"
	"time"

	"github.com/xdblab/wfreplay/internal/history"
)

const (
	defaultInitialInterval    = time.Second
	defaultBackoffCoefficient = 2.0
	defaultMaximumInterval    = 100 * time.Second
)

// GetNextBackoff returns the delay to wait before the next attempt, and
// whether a retry should happen at all. firstAttemptStart and now are
// accepted but not consulted: no expiration or schedule-to-close budget is
// checked here.
func GetNextBackoff(
	completedAttempts int32, lastFailure *history.Failure, firstAttemptStart time.Time, now time.Time, policy *history.RetryPolicy,
) (nextBackoff time.Duration, shouldRetry bool) {
	policy = withDefaults(policy)

	if lastFailure != nil && lastFailure.NonRetryable {
		return 0, false
	}
	if policy.MaximumAttempts > 0 && completedAttempts >= policy.MaximumAttempts {
		return 0, false
	}
	if lastFailure != nil && isNonRetryableType(policy.DoNotRetry, lastFailure.Type) {
		return 0, false
	}

	interval := float64(policy.InitialInterval) * math.Pow(policy.BackoffCoefficient, float64(completedAttempts-1))
	next := time.Duration(interval)
	if policy.MaximumInterval > 0 && next > policy.MaximumInterval {
		next = policy.MaximumInterval
	}
	return next, true
}

func isNonRetryableType(doNotRetry []string, failureType string) bool {
	for _, t := range doNotRetry {
		if t == failureType {
			return true
		}
	}
	return false
}

func withDefaults(policy *history.RetryPolicy) *history.RetryPolicy {
	if policy == nil {
		return &history.RetryPolicy{
			InitialInterval:    defaultInitialInterval,
			BackoffCoefficient: defaultBackoffCoefficient,
			MaximumInterval:    defaultMaximumInterval,
		}
	}
	p := *policy
	if p.InitialInterval == 0 {
		p.InitialInterval = defaultInitialInterval
	}
	if p.BackoffCoefficient == 0 {
		p.BackoffCoefficient = defaultBackoffCoefficient
	}
	if p.MaximumInterval == 0 {
		p.MaximumInterval = defaultMaximumInterval
	}
	return &p
}
