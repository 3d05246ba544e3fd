package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gemfault/GemFlow/internal/pkg/env"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 2 * time.Second
)

// Options bounds a delivery: per-attempt timeout, number of retries after
// the initial attempt, and the fixed pause between attempts. The delay is
// constant on purpose; there is no backoff growth.
type Options struct {
	Method     string
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// OptionsFromEnv builds delivery defaults from the environment.
func OptionsFromEnv() Options {
	return Options{
		Method:     http.MethodPost,
		Timeout:    time.Duration(env.GetEnvInt("DELIVERY_TIMEOUT_MS", int(DefaultTimeout/time.Millisecond))) * time.Millisecond,
		MaxRetries: env.GetEnvInt("DELIVERY_MAX_RETRIES", DefaultMaxRetries),
		RetryDelay: time.Duration(env.GetEnvInt("DELIVERY_RETRY_DELAY_MS", int(DefaultRetryDelay/time.Millisecond))) * time.Millisecond,
	}
}

// Result reports how a delivery went: total attempts made, elapsed wall time,
// final status and body on success, last error on exhaustion.
type Result struct {
	Success    bool          `json:"success"`
	Attempts   int           `json:"attempts"`
	Elapsed    time.Duration `json:"elapsed"`
	StatusCode int           `json:"status_code,omitempty"`
	Body       string        `json:"body,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
}

// Sender performs outbound webhook deliveries with bounded linear retry.
// It doubles as the end-to-end test harness for externally configured
// webhooks and as the transport for the dead-letter redrive tooling.
type Sender struct {
	Client *http.Client
}

// NewSender creates a sender with a default HTTP client.
func NewSender() *Sender {
	return &Sender{Client: &http.Client{}}
}

// Send performs the call and retries on transport failure or non-2xx
// response, up to opts.MaxRetries additional times with a fixed delay in
// between. The caller's context cancels the whole sequence.
func (s *Sender) Send(ctx context.Context, url string, payload []byte, opts Options) Result {
	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	start := time.Now()
	result := Result{}

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				result.LastError = ctx.Err().Error()
				result.Elapsed = time.Since(start)
				return result
			case <-time.After(opts.RetryDelay):
			}
		}

		result.Attempts++
		status, body, err := s.attempt(ctx, method, url, payload, opts.Headers, timeout)
		if err != nil {
			result.LastError = err.Error()
			continue
		}
		result.StatusCode = status
		if status >= 200 && status < 300 {
			result.Success = true
			result.Body = body
			result.LastError = ""
			result.Elapsed = time.Since(start)
			return result
		}
		result.LastError = fmt.Sprintf("unexpected status %d", status)
	}

	result.Elapsed = time.Since(start)
	return result
}

func (s *Sender) attempt(ctx context.Context, method, url string, payload []byte, headers map[string]string, timeout time.Duration) (int, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	if _, ok := headers["Content-Type"]; !ok {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, string(body), nil
}
