package http

import (
	"io"

	"github.com/pkg/errors"
)

// MaxResponseBodySize caps how much of a response body the client will buffer.
const MaxResponseBodySize = 32 * 1024 * 1024

func ReadRespBody(resp io.Reader) (string, error) {
	if resp == nil {
		return "", nil
	}
	body, err := ReadLimitedBody(resp)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ReadLimitedBody reads at most MaxResponseBodySize bytes and fails if the reader holds more.
func ReadLimitedBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxResponseBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxResponseBodySize {
		return nil, errors.Errorf("response body exceeds maximum size of %d bytes", MaxResponseBodySize)
	}
	return data, nil
}
