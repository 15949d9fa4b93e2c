// Package fetch performs HTTP requests with retries and exposes them as task
// steps.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/maxkimambo/qtask/internal/task"
)

// ResponseType selects how the body is decoded.
type ResponseType string

const (
	ResponseJSON  ResponseType = "json"
	ResponseText  ResponseType = "text"
	ResponseBytes ResponseType = "bytes"
)

const (
	defaultRetries       = 3
	defaultRetryDelay    = time.Second
	defaultMaxRetryDelay = 30 * time.Second
	defaultContentType   = "application/json"
)

// Options configures a request. The zero value is a GET with three retries.
type Options struct {
	Method       string
	Headers      map[string]string
	Body         []byte
	ContentType  string
	ResponseType ResponseType

	// Retries is the number of extra attempts after the first one. Negative
	// disables retrying.
	Retries int
	// RetryDelay is the first backoff pause; each retry doubles it with
	// jitter up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// Timeout bounds a single attempt. Zero means no per-attempt limit.
	Timeout time.Duration

	// ExpectStatus, when set, must match the response status exactly.
	// Otherwise any 2xx status is accepted.
	ExpectStatus int
	// Validate inspects a decoded response. An error fails the attempt.
	Validate func(*Response) error

	Client *http.Client
}

// Response is a decoded HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Data holds the decoded JSON document for ResponseJSON.
	Data interface{}
	// Text holds the body for ResponseText.
	Text string
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected response status %s", e.URL, e.Status)
}

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = http.MethodGet
	}
	if o.ContentType == "" {
		o.ContentType = defaultContentType
	}
	if o.ResponseType == "" {
		o.ResponseType = ResponseJSON
	}
	if o.Retries == 0 {
		o.Retries = defaultRetries
	} else if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = defaultMaxRetryDelay
	}
	if o.MaxRetryDelay < o.RetryDelay {
		o.MaxRetryDelay = o.RetryDelay
	}
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	return o
}

// Do sends the request, retrying failed attempts. Cancellation of ctx is
// never retried.
func Do(ctx context.Context, url string, opts Options) (*Response, error) {
	opts = opts.withDefaults()
	backoff := gax.Backoff{
		Initial:    opts.RetryDelay,
		Max:        opts.MaxRetryDelay,
		Multiplier: 2,
	}

	logFields := map[string]interface{}{
		"url":    url,
		"method": opts.Method,
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			pause := backoff.Pause()
			logger.Op.WithFields(logFields).WithError(lastErr).Warnf("Retrying request (%d/%d) in %s", attempt, opts.Retries, pause)
			if err := gax.Sleep(ctx, pause); err != nil {
				return nil, fmt.Errorf("fetch %s aborted: %w", url, err)
			}
		}

		resp, err := attemptOnce(ctx, url, opts)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s aborted: %w", url, ctx.Err())
		}
		lastErr = err
	}

	logger.Op.WithFields(logFields).WithError(lastErr).Error("Request failed after retries")
	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", url, opts.Retries+1, lastErr)
}

func attemptOnce(ctx context.Context, url string, opts Options) (*Response, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", opts.ContentType)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	httpResp, err := opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if !statusAccepted(httpResp.StatusCode, opts.ExpectStatus) {
		return nil, &StatusError{URL: url, StatusCode: httpResp.StatusCode, Status: httpResp.Status}
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       raw,
	}
	switch opts.ResponseType {
	case ResponseJSON:
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &resp.Data); err != nil {
				return nil, fmt.Errorf("decoding JSON response: %w", err)
			}
		}
	case ResponseText:
		resp.Text = string(raw)
	case ResponseBytes:
	default:
		return nil, fmt.Errorf("unsupported response type %q", opts.ResponseType)
	}

	if opts.Validate != nil {
		if err := opts.Validate(resp); err != nil {
			return nil, fmt.Errorf("response rejected: %w", err)
		}
	}
	return resp, nil
}

func statusAccepted(code, expect int) bool {
	if expect != 0 {
		return code == expect
	}
	return code >= 200 && code < 300
}

// Step returns an asynchronous task step that performs the request and hands
// the response to sink, which may be nil.
func Step(url string, opts Options, sink func(*Response) error) task.AsyncFunc {
	return func(ctx context.Context) *task.Future {
		return task.Go(ctx, func(ctx context.Context) error {
			resp, err := Do(ctx, url, opts)
			if err != nil {
				return err
			}
			if sink != nil {
				return sink(resp)
			}
			return nil
		})
	}
}

// IsStatus reports whether err carries an HTTP status error with code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
