package http

import (
	"bytes"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/pkg/errors"
)

type Option func(*SimpleRetryStrategy) error

func WithMaxRetries(retries int) Option {
	return func(r *SimpleRetryStrategy) error {
		if retries <= 0 {
			return errors.New("retries must be a positive integer")
		}
		r.MaxRetries = retries
		return nil
	}
}

func WithFixedDelay(delay time.Duration) Option {
	return func(r *SimpleRetryStrategy) error {
		if delay <= 0 {
			return errors.New("delay must be positive")
		}
		r.FixedDelay = delay
		return nil
	}
}

func WithRetryableStatusCodes(statusCodes ...int) Option {
	return func(r *SimpleRetryStrategy) error {
		r.RetryableStatusCodes = statusCodes
		return nil
	}
}

func WithExponentialBackOff() Option {
	return func(r *SimpleRetryStrategy) error {
		r.ExponentialBackOff = true
		return nil
	}
}

// SimpleRetryStrategy resends a request while the server answers with one of
// RetryableStatusCodes. Transport errors are returned immediately.
type SimpleRetryStrategy struct {
	MaxRetries           int
	FixedDelay           time.Duration
	ExponentialBackOff   bool
	RetryableStatusCodes []int
}

func NewSimpleRetryStrategy(opts ...Option) (*SimpleRetryStrategy, error) {
	var strategy = &SimpleRetryStrategy{
		MaxRetries:           3,
		FixedDelay:           time.Second,
		RetryableStatusCodes: []int{},
	}
	for _, opt := range opts {
		if err := opt(strategy); err != nil {
			return nil, err
		}
	}
	return strategy, nil
}

func (r *SimpleRetryStrategy) DoWithRetry(client *http.Client, req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var readErr error
		bodyBytes, readErr = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if readErr != nil {
			return nil, errors.Wrap(readErr, "error buffering request body")
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bodyBytes)), nil
		}
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt < r.MaxRetries; attempt++ {
		if attempt > 0 && bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
		resp, err = client.Do(req)
		if err != nil || !r.isRetryable(resp.StatusCode) || attempt == r.MaxRetries-1 {
			break
		}
		_ = resp.Body.Close()
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(r.delay(attempt)):
		}
	}
	return resp, err
}

func (r *SimpleRetryStrategy) delay(attempt int) time.Duration {
	if !r.ExponentialBackOff {
		return r.FixedDelay
	}
	return r.FixedDelay << attempt
}

func (r *SimpleRetryStrategy) isRetryable(code int) bool {
	return slices.Contains(r.RetryableStatusCodes, code)
}
