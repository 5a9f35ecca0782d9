package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents a failed round trip to the similarity webservice. It carries the
// HTTP status (zero when the request never reached the server), an error id and the message.
// Example body the backend may send alongside a failing status:
//
//	{
//	 "message_type": "error",
//	 "message": "Invalid API key"
//	}
type APIError struct {
	ErrorID    string `json:"error"`
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func APIErrorFromHTTPResponse(resp *http.Response, err error) *APIError {
	apiErr := &APIError{
		ErrorID: "unknown",
		Message: "unknown",
	}
	if err != nil {
		apiErr.ErrorID = "transport"
		apiErr.Message = err.Error()
	}
	if resp == nil {
		return apiErr
	}
	defer func() { _ = resp.Body.Close() }()
	bodyBytes, readErr := ReadLimitedBody(resp.Body)
	if readErr != nil {
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	return APIErrorFromBody(resp.StatusCode, bodyBytes)
}

// APIErrorFromBody builds an APIError from an already buffered response body.
func APIErrorFromBody(status int, body []byte) *APIError {
	apiErr := &APIError{
		ErrorID:    http.StatusText(status),
		StatusCode: status,
	}
	if apiErr.ErrorID == "" {
		apiErr.ErrorID = "unknown"
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Error (%d) %s: %s", e.StatusCode, e.ErrorID, e.Message)
}

// Transport reports whether the request failed before any response was received.
func (e *APIError) Transport() bool {
	return e.StatusCode == 0
}
