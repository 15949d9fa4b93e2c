package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"github.com/maxkimambo/qtask/internal/gcp"
	"github.com/maxkimambo/qtask/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

type fakeCompute struct {
	mu     sync.Mutex
	calls  []string
	status string
}

func (f *fakeCompute) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCompute) StartInstance(ctx context.Context, ref gcp.InstanceRef) error {
	f.record("start " + ref.Name)
	f.mu.Lock()
	f.status = gcp.StatusRunning
	f.mu.Unlock()
	return nil
}

func (f *fakeCompute) StopInstance(ctx context.Context, ref gcp.InstanceRef) error {
	f.record("stop " + ref.Name)
	f.mu.Lock()
	f.status = gcp.StatusTerminated
	f.mu.Unlock()
	return nil
}

func (f *fakeCompute) GetInstance(ctx context.Context, ref gcp.InstanceRef) (*computepb.Instance, error) {
	f.record("get " + ref.Name)
	f.mu.Lock()
	defer f.mu.Unlock()
	return &computepb.Instance{Name: proto.String(ref.Name), Status: proto.String(f.status)}, nil
}

func (f *fakeCompute) Close() error { return nil }

func runTask(t *testing.T, registry *task.Registry, name string, opts ...task.RunOption) *task.Execution {
	t.Helper()
	exec, err := registry.Run(context.Background(), name, opts...)
	require.NoError(t, err)
	_ = exec.Wait(context.Background())
	return exec
}

func TestRegister_RunsPipeline(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p, err := Parse([]byte(`
tasks:
  - name: cycle
    timeout: 2s
    steps:
      - kind: gce_stop
        project: p
        zone: projects/p/zones/us-central1-a
        instance: web-1
      - kind: gce_wait
        project: p
        zone: us-central1-a
        instance: web-1
        status: terminated
        poll_interval: 1ms
      - kind: gce_start
        project: p
        zone: us-central1-a
        instance: web-1
      - kind: sleep
        duration: 5ms
      - kind: http
        url: ` + srv.URL + `
        method: post
        response_type: bytes
        expect_status: 201
        retries: -1
`))
	require.NoError(t, err)

	compute := &fakeCompute{status: gcp.StatusRunning}
	registry := task.NewRegistry()
	require.NoError(t, Builder{Compute: compute}.Register(registry, p))

	assert.Equal(t, 5, registry.Steps("cycle"))

	spec, _ := p.Task("cycle")
	exec := runTask(t, registry, "cycle", spec.RunOptions()...)

	require.NoError(t, exec.Err())
	assert.Equal(t, task.Succeeded, exec.Outcome())
	assert.Equal(t, []string{"stop web-1", "get web-1", "start web-1"}, compute.calls)
	assert.Equal(t, 1, hits)
}

func TestRegister_FailStep(t *testing.T) {
	p, err := Parse([]byte("tasks:\n  - name: broken\n    steps:\n      - kind: fail\n        message: boom\n      - kind: sleep\n        duration: 1h\n"))
	require.NoError(t, err)

	registry := task.NewRegistry()
	require.NoError(t, Builder{}.Register(registry, p))

	var failErr error
	exec := runTask(t, registry, "broken", task.WithFail(func(err error) { failErr = err }))

	assert.Equal(t, task.Failed, exec.Outcome())
	assert.EqualError(t, failErr, "boom")
}

func TestRegister_ComputeClientRequired(t *testing.T) {
	p, err := Parse([]byte("tasks:\n  - name: boot\n    steps: [{kind: gce_start, project: p, zone: z, instance: i}]\n"))
	require.NoError(t, err)

	err = Builder{}.Register(task.NewRegistry(), p)

	assert.EqualError(t, err, "task boot step 1: gce_start step needs a Compute Engine client")
}

func TestSleepStep_StopsWithRun(t *testing.T) {
	registry := task.NewRegistry()
	registry.Define("nap", SleepStep(time.Hour))

	exec := runTask(t, registry, "nap", task.WithTimeout(20*time.Millisecond))

	assert.Equal(t, task.TimedOut, exec.Outcome())
	assert.ErrorIs(t, exec.Err(), task.ErrTimeout)
}

func TestFailStep_DefaultMessage(t *testing.T) {
	assert.EqualError(t, FailStep("")(context.Background()), "step failed")
}

func TestRunOptions(t *testing.T) {
	assert.Empty(t, TaskSpec{}.RunOptions())
	assert.Len(t, TaskSpec{Timeout: time.Second}.RunOptions(), 1)
}
