package progress

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/maxkimambo/qtask/internal/task"
	"github.com/maxkimambo/qtask/internal/timer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a goroutine safe bytes.Buffer
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTracker_ReportsRunLifecycle(t *testing.T) {
	var userOut, opOut syncBuffer
	logger.SetupWriters(&userOut, &opOut, logrus.DebugLevel)

	timers := timer.NewRegistry()
	tracker := NewTracker(timers, 5*time.Millisecond)
	registry := task.NewRegistry(task.WithObserver(tracker))

	inSecond := make(chan struct{})
	release := make(chan struct{})
	registry.Define("deploy",
		task.StepFunc(func(ctx context.Context) error { return nil }),
		task.StepFunc(func(ctx context.Context) error {
			close(inSecond)
			<-release
			return nil
		}),
	)

	exec, err := registry.Run(context.Background(), "deploy")
	require.NoError(t, err)
	<-inSecond

	snap, ok := tracker.Snapshot(exec.ID())
	require.True(t, ok)
	assert.Equal(t, 1, snap.CompletedSteps)
	assert.Equal(t, 2, snap.CurrentStep)
	assert.Equal(t, []string{timerPrefix + exec.ID()}, timers.Active())

	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(userOut.String()), []byte("deploy: 1/2 steps completed (50.0%) | Step 2 running"))
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, exec.Wait(context.Background()))

	_, ok = tracker.Snapshot(exec.ID())
	assert.False(t, ok)
	assert.Empty(t, timers.Active())

	out := userOut.String()
	assert.Contains(t, out, "🚀 Running task deploy (2 steps, timeout 20s)")
	assert.Contains(t, out, "deploy: step 1/2 COMPLETED")
	assert.Contains(t, out, "✅ Task deploy completed in")
	assert.Contains(t, opOut.String(), "deploy: starting step 2/2")
}

func TestTracker_ReportsFailureAndTimeout(t *testing.T) {
	var userOut, opOut syncBuffer
	logger.SetupWriters(&userOut, &opOut, logrus.InfoLevel)

	tracker := NewTracker(nil, 0)
	registry := task.NewRegistry(task.WithObserver(tracker))
	registry.Define("broken", task.StepFunc(func(ctx context.Context) error { return errors.New("disk full") }))
	registry.Define("stuck", task.StepFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	exec, err := registry.Run(context.Background(), "broken")
	require.NoError(t, err)
	_ = exec.Wait(context.Background())

	exec, err = registry.Run(context.Background(), "stuck", task.WithTimeout(10*time.Millisecond))
	require.NoError(t, err)
	_ = exec.Wait(context.Background())

	out := userOut.String()
	assert.Contains(t, out, "❌ Task broken failed after")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "⏰ Task stuck timed out after")
	assert.Contains(t, opOut.String(), "broken: step 1/1 FAILED")
}
