package http

import "net/http"

type RetryStrategy interface {
	DoWithRetry(client *http.Client, req *http.Request) (*http.Response, error)
}

// NoRetry sends each request exactly once.
type NoRetry struct{}

func (NoRetry) DoWithRetry(client *http.Client, req *http.Request) (*http.Response, error) {
	return client.Do(req)
}
