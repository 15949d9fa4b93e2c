package gcp

import (
	"context"
	"errors"
	"testing"
	"time"

	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"github.com/maxkimambo/qtask/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

type MockInstanceOperations struct {
	mock.Mock
}

func (m *MockInstanceOperations) StartInstance(ctx context.Context, ref InstanceRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockInstanceOperations) StopInstance(ctx context.Context, ref InstanceRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockInstanceOperations) GetInstance(ctx context.Context, ref InstanceRef) (*computepb.Instance, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*computepb.Instance), args.Error(1)
}

func (m *MockInstanceOperations) Close() error {
	return m.Called().Error(0)
}

func instanceWithStatus(status string) *computepb.Instance {
	return &computepb.Instance{Name: proto.String("web-1"), Status: proto.String(status)}
}

func TestInstanceStepsInRegistry(t *testing.T) {
	ops := new(MockInstanceOperations)
	ops.On("StopInstance", mock.Anything, testRef).Return(nil).Once()
	ops.On("GetInstance", mock.Anything, testRef).Return(instanceWithStatus("STOPPING"), nil).Once()
	ops.On("GetInstance", mock.Anything, testRef).Return(instanceWithStatus(StatusTerminated), nil).Once()
	ops.On("StartInstance", mock.Anything, testRef).Return(nil).Once()

	registry := task.NewRegistry()
	registry.Define("restart",
		StopInstanceStep(ops, testRef),
		WaitForStatusStep(ops, testRef, "terminated", time.Millisecond),
		StartInstanceStep(ops, testRef),
	)

	exec, err := registry.Run(context.Background(), "restart", task.WithTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, exec.Wait(context.Background()))

	assert.Equal(t, task.Succeeded, exec.Outcome())
	ops.AssertExpectations(t)
}

func TestStartInstanceStep_Failure(t *testing.T) {
	ops := new(MockInstanceOperations)
	startErr := errors.New("zone exhausted")
	ops.On("StartInstance", mock.Anything, testRef).Return(startErr)

	var failErr error
	registry := task.NewRegistry()
	registry.Define("boot", StartInstanceStep(ops, testRef))

	exec, err := registry.Run(context.Background(), "boot", task.WithFail(func(err error) { failErr = err }))
	require.NoError(t, err)
	_ = exec.Wait(context.Background())

	assert.ErrorIs(t, failErr, startErr)
	ops.AssertExpectations(t)
}

func TestWaitForStatus_GetError(t *testing.T) {
	ops := new(MockInstanceOperations)
	ops.On("GetInstance", mock.Anything, testRef).Return(nil, errors.New("not found"))

	err := WaitForStatus(context.Background(), ops, testRef, StatusRunning, time.Millisecond)

	assert.EqualError(t, err, "not found")
}

func TestWaitForStatus_ContextEnds(t *testing.T) {
	ops := new(MockInstanceOperations)
	ops.On("GetInstance", mock.Anything, testRef).Return(instanceWithStatus("PROVISIONING"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := WaitForStatus(ctx, ops, testRef, StatusRunning, time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "did not reach RUNNING (last status PROVISIONING)")
}

func TestWaitForStatusStep_TimesOutInRegistry(t *testing.T) {
	ops := new(MockInstanceOperations)
	ops.On("GetInstance", mock.Anything, testRef).Return(instanceWithStatus("STAGING"), nil)

	timedOut := make(chan struct{}, 1)
	registry := task.NewRegistry()
	registry.Define("await", WaitForStatusStep(ops, testRef, StatusRunning, time.Millisecond))

	exec, err := registry.Run(context.Background(), "await",
		task.WithTimeout(30*time.Millisecond),
		task.WithTimeoutCallback(func() { timedOut <- struct{}{} }),
	)
	require.NoError(t, err)
	_ = exec.Wait(context.Background())

	assert.Equal(t, task.TimedOut, exec.Outcome())
	assert.Len(t, timedOut, 1)
}
