// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package timergate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdblab/wfreplay/common/clock"
	"github.com/xdblab/wfreplay/common/log"
)

func TestGateFiresInDeadlineOrder(t *testing.T) {
	g := NewGate(clock.NewRealTimeSource(), log.NewDevelopmentLogger())
	defer g.Close()

	g.Schedule("slow", 5, 40*time.Millisecond)
	g.Schedule("fast", 3, 10*time.Millisecond)

	first := <-g.FireChan()
	assert.Equal(t, "fast", first.TimerID)
	assert.Equal(t, int64(3), first.StartedEventID)

	second := <-g.FireChan()
	assert.Equal(t, "slow", second.TimerID)
	assert.Equal(t, int64(5), second.StartedEventID)
}

func TestGateCancelDropsPendingTimer(t *testing.T) {
	g := NewGate(clock.NewRealTimeSource(), log.NewDevelopmentLogger())
	defer g.Close()

	g.Schedule("doomed", 2, time.Hour)
	g.Schedule("kept", 4, 15*time.Millisecond)
	assert.True(t, g.CancelTimer("doomed"))
	assert.False(t, g.CancelTimer("doomed"))

	fire := <-g.FireChan()
	assert.Equal(t, "kept", fire.TimerID)

	select {
	case unexpected := <-g.FireChan():
		t.Fatalf("cancelled timer fired: %v", unexpected)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	g := NewGate(clock.NewRealTimeSource(), log.NewDevelopmentLogger())
	g.Schedule("late", 1, time.Hour)
	g.Close()

	_, ok := <-g.FireChan()
	require.False(t, ok)
}
