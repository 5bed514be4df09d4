package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls int32
	err   error
}

func (s *countingSweeper) NotifyExpiredTrials(context.Context) (int, error) {
	atomic.AddInt32(&s.calls, 1)
	return 2, s.err
}

func TestGetManager(t *testing.T) {
	// Reset the singleton for testing
	globalManager = nil
	managerOnce = sync.Once{}

	manager1 := GetManager()
	manager2 := GetManager()

	assert.NotNil(t, manager1)
	assert.Same(t, manager1, manager2, "GetManager should return the same instance")
	assert.NotNil(t, manager1.GetQueue())
	assert.False(t, manager1.IsRunning())
}

func TestManager_StopWithoutStart(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	manager := NewManager(q)

	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_StartStop(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	manager := NewManager(q)
	sweeper := &countingSweeper{}
	manager.SetTrialSweeper(sweeper, 20*time.Millisecond)

	manager.Start()
	manager.Start()
	assert.True(t, manager.IsRunning())
	assert.True(t, waitFor(func() bool { return atomic.LoadInt32(&sweeper.calls) >= 2 }, 2*time.Second))

	manager.Stop()
	assert.False(t, manager.IsRunning())

	// restartable after stop
	manager.Start()
	assert.True(t, manager.IsRunning())
	manager.Stop()
}

func TestManager_RunTrialSweepOnce(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	manager := NewManager(q)

	n, err := manager.RunTrialSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	sweeper := &countingSweeper{err: errors.New("db down")}
	manager.SetTrialSweeper(sweeper, 0)
	_, err = manager.RunTrialSweepOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sweeper.calls))
	assert.Equal(t, 15*time.Minute, manager.trialInterval)
}
