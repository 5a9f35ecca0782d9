package similarity

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/ssciwr/similarity-client-go/pkg/logger"
)

// APIClient routes each backend capability to one request. It keeps no state besides
// its configuration and the alert store.
type APIClient struct {
	*BaseAPIClient
}

// NewHTTPClient creates a client for the similarity webservice. Settings are read from
// the environment first, so explicit options take precedence.
func NewHTTPClient(opts ...ClientOption) (Client, error) {
	updatedOpts := make([]ClientOption, 0, len(opts)+1)
	updatedOpts = append(updatedOpts, WithBaseURLFromEnv()) // prepend env vars as first default
	for _, option := range opts {
		if option != nil {
			updatedOpts = append(updatedOpts, option)
		}
	}
	bc, err := newBaseAPIClient(updatedOpts...)
	if err != nil {
		return nil, err
	}
	return &APIClient{BaseAPIClient: bc}, nil
}

func collectionRoute(id string, action string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", errors.New("collection id cannot be empty")
	}
	return "/collection/" + url.PathEscape(id) + "/" + action, nil
}

func (client *APIClient) ListCollections(ctx context.Context) (*CollectionList, error) {
	resp := client.Get(ctx, "/collection/list", nil)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	list := &CollectionList{}
	if err := resp.Decode(list); err != nil {
		return nil, err
	}
	return list, nil
}

func (client *APIClient) CollectionOptions(ctx context.Context) ([]CollectionOption, error) {
	list, err := client.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	return CollectionOptionsFromList(list), nil
}

func (client *APIClient) GetCollection(ctx context.Context, id string) (*CollectionInfo, error) {
	route, err := collectionRoute(id, "info")
	if err != nil {
		return nil, err
	}
	resp := client.Get(ctx, route, nil)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	info := &CollectionInfo{}
	if err := resp.Decode(info); err != nil {
		return nil, err
	}
	return info, nil
}

type createDatasetRequest struct {
	Name        string `json:"name"`
	HeidiconTag string `json:"heidicon_tag,omitempty"`
}

func (client *APIClient) CreateDataset(ctx context.Context, name string, heidiconTag string, key string) (*CreatedCollection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("collection name cannot be empty")
	}
	resp := client.Post(ctx, "/collection/create", key, createDatasetRequest{Name: name, HeidiconTag: heidiconTag})
	if err := resp.Err(); err != nil {
		return nil, err
	}
	created := &CreatedCollection{}
	if err := resp.Decode(created); err != nil {
		return nil, err
	}
	if err := structValidator.Struct(created); err != nil {
		return nil, errors.Wrap(err, "invalid create response")
	}
	return created, nil
}

func (client *APIClient) ChangeDatasetName(ctx context.Context, id string, name string, key string) error {
	route, err := collectionRoute(id, "updatename")
	if err != nil {
		return err
	}
	return client.Post(ctx, route, key, map[string]string{"name": name}).Err()
}

func (client *APIClient) DeleteDataset(ctx context.Context, id string, key string) error {
	route, err := collectionRoute(id, "delete")
	if err != nil {
		return err
	}
	return client.Post(ctx, route, key, nil).Err()
}

func (client *APIClient) UploadCSVFile(ctx context.Context, id string, file io.Reader, key string) error {
	route, err := collectionRoute(id, "updatecontent")
	if err != nil {
		return err
	}
	if file == nil {
		return errors.New("file cannot be nil")
	}
	return client.PostFile(ctx, route, key, file, MimeCSV, nil).Err()
}

func (client *APIClient) UpdateHeidicon(ctx context.Context, id string, key string) error {
	route, err := collectionRoute(id, "updatecontent")
	if err != nil {
		return err
	}
	return client.Post(ctx, route, key, nil).Err()
}

func (client *APIClient) SimilaritySearch(ctx context.Context, id string, image []byte, key string, opts ...SearchOption) ([]SearchResult, error) {
	route, err := collectionRoute(id, "search")
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, errors.New("image cannot be empty")
	}
	so := &searchOptions{query: url.Values{}}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(so); err != nil {
			return nil, err
		}
	}
	payload := base64.StdEncoding.EncodeToString(image)
	resp := client.PostFile(ctx, route, key, strings.NewReader(payload), MimeBase64, so.query)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return decodeSearchResults(resp.Body)
}

func (client *APIClient) FinetuneModel(ctx context.Context, id string, key string) error {
	route, err := collectionRoute(id, "finetune")
	if err != nil {
		return err
	}
	return client.Post(ctx, route, key, nil).Err()
}

// VerifyAPIKey reports an unauthorized or forbidden answer as an invalid key, not as an error.
func (client *APIClient) VerifyAPIKey(ctx context.Context, key string) (*Verification, error) {
	resp := client.Post(ctx, "/verify", key, nil)
	switch {
	case resp.OK:
		return &Verification{Valid: true, Message: resp.Envelope.Message}, nil
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		msg := resp.Envelope.Message
		if msg == "" {
			msg = resp.Msg
		}
		return &Verification{Valid: false, Message: msg}, nil
	default:
		return nil, resp.Err()
	}
}

func (client *APIClient) Close() error {
	client.httpClient.CloseIdleConnections()
	if err := client.logger.Sync(); err != nil && !isIgnorableSyncError(err) {
		client.logger.Error("error syncing logger", logger.ErrorField("error", err))
		return errors.Wrap(err, "error syncing logger")
	}
	return nil
}

// isIgnorableSyncError reports errors returned when syncing a logger bound to a terminal.
func isIgnorableSyncError(err error) bool {
	cause := errors.Cause(err)
	if errors.Is(cause, syscall.EINVAL) || errors.Is(cause, syscall.ENOTTY) || errors.Is(cause, syscall.EBADF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "/dev/stderr") || strings.Contains(msg, "/dev/stdout")
}

var _ Client = (*APIClient)(nil)
