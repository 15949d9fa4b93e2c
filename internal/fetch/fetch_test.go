package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxkimambo/qtask/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(o Options) Options {
	o.RetryDelay = time.Millisecond
	o.MaxRetryDelay = 2 * time.Millisecond
	return o
}

func TestDo_DecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("X-Trace"))
		_, _ = w.Write([]byte(`{"status":"ok","count":2}`))
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.URL, Options{Headers: map[string]string{"X-Trace": "abc"}})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, float64(2), data["count"])
}

func TestDo_PostTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		_, _ = w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.URL, Options{
		Method:       http.MethodPost,
		Body:         []byte("hello"),
		ContentType:  "text/plain",
		ResponseType: ResponseText,
	})

	require.NoError(t, err)
	assert.Equal(t, "echo:hello", resp.Text)
	assert.Nil(t, resp.Data)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := Do(context.Background(), srv.URL, fastRetry(Options{}))

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Do(context.Background(), srv.URL, fastRetry(Options{Retries: 2}))

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_NoRetryWhenDisabled(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := Do(context.Background(), srv.URL, Options{Retries: -1})

	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_ExpectStatusAndValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ready":false}`))
	}))
	defer srv.Close()

	_, err := Do(context.Background(), srv.URL, Options{Retries: -1, ExpectStatus: http.StatusOK})
	assert.True(t, IsStatus(err, http.StatusAccepted))

	notReady := errors.New("not ready")
	_, err = Do(context.Background(), srv.URL, Options{
		Retries: -1,
		Validate: func(r *Response) error {
			if r.Data.(map[string]interface{})["ready"] != true {
				return notReady
			}
			return nil
		},
	})
	assert.ErrorIs(t, err, notReady)
}

func TestDo_AttemptTimeoutIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := Do(context.Background(), srv.URL, fastRetry(Options{Timeout: 20 * time.Millisecond}))

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_CancelledContextIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Do(ctx, srv.URL, fastRetry(Options{}))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "aborted")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStep_RunsInRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"1.2.3"}`))
	}))
	defer srv.Close()

	var version interface{}
	registry := task.NewRegistry()
	registry.Define("health", Step(srv.URL, Options{}, func(r *Response) error {
		version = r.Data.(map[string]interface{})["version"]
		return nil
	}))

	exec, err := registry.Run(context.Background(), "health")
	require.NoError(t, err)
	require.NoError(t, exec.Wait(context.Background()))
	assert.Equal(t, "1.2.3", version)
}

func TestStep_FailureReachesFailCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var failErr error
	registry := task.NewRegistry()
	registry.Define("missing", Step(srv.URL, Options{Retries: -1}, nil))

	exec, err := registry.Run(context.Background(), "missing", task.WithFail(func(err error) { failErr = err }))
	require.NoError(t, err)
	_ = exec.Wait(context.Background())

	assert.True(t, IsStatus(failErr, http.StatusNotFound))
}
