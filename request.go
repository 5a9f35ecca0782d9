package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/pkg/errors"

	"github.com/ssciwr/similarity-client-go/pkg/alerts"
	chhttp "github.com/ssciwr/similarity-client-go/pkg/commons/http"
	"github.com/ssciwr/similarity-client-go/pkg/logger"
)

type MessageType string

const (
	MessageTypeError MessageType = "error"
	MessageTypePush  MessageType = "push"
)

// Envelope is the part of every backend response the client looks at.
type Envelope struct {
	MessageType MessageType `json:"message_type,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// Response is the outcome of one round trip. It is never nil.
//
// OK is false when the request could not be sent, the server answered with a status of
// 400 or above, or a successful body was not JSON. Msg then describes the failure and
// Body still holds whatever the server sent.
type Response struct {
	OK        bool
	Status    int
	Msg       string
	Body      json.RawMessage
	Envelope  Envelope
	RequestID string
	err       *chhttp.APIError
}

// Err returns nil for successful responses and a *chhttp.APIError otherwise.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return &chhttp.APIError{ErrorID: "unknown", StatusCode: r.Status, Message: r.Msg}
}

// Decode unmarshals the body into out.
func (r *Response) Decode(out interface{}) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return errors.Wrap(err, "error decoding response")
	}
	return nil
}

type outboundRequest struct {
	method      string
	route       string
	query       url.Values
	apiKey      *string
	body        io.Reader
	contentType string
}

// Get issues a GET to baseURL+route. The query string is only appended when query is non-empty.
func (bc *BaseAPIClient) Get(ctx context.Context, route string, query url.Values) *Response {
	return bc.do(ctx, outboundRequest{
		method: http.MethodGet,
		route:  route,
		query:  query,
	})
}

// Post sends body as JSON together with the API-Key header. A nil body is sent as {}.
func (bc *BaseAPIClient) Post(ctx context.Context, route string, apiKey string, body interface{}) *Response {
	if body == nil {
		body = struct{}{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		resp := &Response{RequestID: bc.newRequestID()}
		return bc.fail(ctx, resp, &chhttp.APIError{ErrorID: "encode", Message: errors.Wrap(err, "error marshalling request JSON").Error()})
	}
	return bc.do(ctx, outboundRequest{
		method:      http.MethodPost,
		route:       route,
		apiKey:      &apiKey,
		body:        bytes.NewReader(payload),
		contentType: MimeJSON,
	})
}

// PostFile sends payload verbatim with the given content type and the API-Key header.
func (bc *BaseAPIClient) PostFile(ctx context.Context, route string, apiKey string, payload io.Reader, mimeType string, query url.Values) *Response {
	if payload == nil {
		payload = http.NoBody
	}
	return bc.do(ctx, outboundRequest{
		method:      http.MethodPost,
		route:       route,
		query:       query,
		apiKey:      &apiKey,
		body:        payload,
		contentType: mimeType,
	})
}

func (bc *BaseAPIClient) requestURL(route string, query url.Values) string {
	reqURL := bc.baseURL + route
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	return reqURL
}

func (bc *BaseAPIClient) do(ctx context.Context, req outboundRequest) *Response {
	if ctx == nil {
		ctx = context.Background()
	}
	resp := &Response{RequestID: bc.newRequestID()}
	ctx = logger.ContextWithRequestID(ctx, resp.RequestID)

	var body io.Reader
	if req.method != http.MethodGet {
		body = req.body
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, bc.requestURL(req.route, req.query), body)
	if err != nil {
		return bc.fail(ctx, resp, &chhttp.APIError{ErrorID: "request", Message: errors.Wrap(err, "error creating HTTP request").Error()})
	}
	httpReq.Header.Set("Accept", MimeJSON)
	for k, v := range bc.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.apiKey != nil {
		httpReq.Header.Set(APIKeyHeader, *req.apiKey)
	}
	if bc.logger.IsDebugEnabled() {
		dump, dumpErr := httputil.DumpRequestOut(httpReq, true)
		if dumpErr == nil {
			bc.logger.DebugWithContext(ctx, "HTTP Request", logger.String("request", _sanitizeRequestDump(string(dump))))
		}
	}

	httpResp, err := bc.retryStrategy.DoWithRetry(bc.httpClient, httpReq)
	if err != nil {
		apiErr := chhttp.APIErrorFromHTTPResponse(nil, err)
		if ctx.Err() == nil {
			bc.alerts.Add(apiErr.Message, alerts.Red)
		}
		return bc.fail(ctx, resp, apiErr)
	}
	defer func() { _ = httpResp.Body.Close() }()
	if bc.logger.IsDebugEnabled() {
		dump, dumpErr := httputil.DumpResponse(httpResp, true)
		if dumpErr == nil {
			bc.logger.DebugWithContext(ctx, "HTTP Response", logger.String("response", _sanitizeResponseDump(string(dump))))
		}
	}

	resp.Status = httpResp.StatusCode
	raw, err := chhttp.ReadLimitedBody(httpResp.Body)
	if err != nil {
		return bc.fail(ctx, resp, &chhttp.APIError{ErrorID: "read", StatusCode: resp.Status, Message: errors.Wrap(err, "error reading response body").Error()})
	}
	resp.Body = raw
	isJSON := bc.inspect(resp)

	if resp.Status >= http.StatusBadRequest {
		return bc.fail(ctx, resp, chhttp.APIErrorFromBody(resp.Status, raw))
	}
	if !isJSON && len(bytes.TrimSpace(raw)) > 0 {
		return bc.fail(ctx, resp, &chhttp.APIError{ErrorID: "decode", StatusCode: resp.Status, Message: "error decoding response: body is not valid JSON"})
	}
	resp.OK = true
	return resp
}

// inspect parses the message envelope and raises the matching alert. It reports
// whether the body is valid JSON.
func (bc *BaseAPIClient) inspect(resp *Response) bool {
	if !json.Valid(resp.Body) {
		return false
	}
	var raw struct {
		MessageType MessageType     `json:"message_type"`
		Message     json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		// valid JSON that is not an object carries no envelope
		return true
	}
	env := Envelope{MessageType: raw.MessageType, Message: messageText(raw.Message)}
	resp.Envelope = env
	switch env.MessageType {
	case MessageTypeError:
		bc.alerts.Add(env.Message, alerts.Red)
	case MessageTypePush:
		bc.alerts.Add(env.Message, alerts.Green)
	}
	return true
}

// messageText returns a JSON string message unquoted and any other value as compact JSON.
func messageText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

func (bc *BaseAPIClient) fail(ctx context.Context, resp *Response, apiErr *chhttp.APIError) *Response {
	resp.OK = false
	if resp.Status == 0 {
		resp.Status = apiErr.StatusCode
	}
	apiErr.StatusCode = resp.Status
	resp.Msg = apiErr.Message
	resp.err = apiErr
	bc.logger.WarnWithContext(ctx, "request failed",
		logger.Int("status", resp.Status),
		logger.String("msg", resp.Msg))
	return resp
}
