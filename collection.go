package similarity

import (
	"bytes"
	"encoding/json"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// flexibleID accepts collection ids sent either as JSON strings or as numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Errorf("invalid collection id %s", string(b))
	}
	*f = flexibleID(n.String())
	return nil
}

// CollectionList is the body of GET /collection/list.
type CollectionList struct {
	IDs []string `json:"ids"`
}

func (c *CollectionList) UnmarshalJSON(b []byte) error {
	var ids []flexibleID
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return errors.Wrap(err, "error decoding collection list")
		}
	} else {
		var wrapped struct {
			IDs []flexibleID `json:"ids"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return errors.Wrap(err, "error decoding collection list")
		}
		ids = wrapped.IDs
	}
	c.IDs = make([]string, 0, len(ids))
	for _, id := range ids {
		c.IDs = append(c.IDs, string(id))
	}
	return nil
}

// CollectionOption is a selectable entry for a collection picker.
type CollectionOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CollectionOptionsFromList names every listed collection "Collection <id>".
func CollectionOptionsFromList(list *CollectionList) []CollectionOption {
	if list == nil {
		return []CollectionOption{}
	}
	options := make([]CollectionOption, 0, len(list.IDs))
	for _, id := range list.IDs {
		options = append(options, CollectionOption{ID: id, Name: "Collection " + id})
	}
	return options
}

// CollectionInfo is the body of GET /collection/{id}/info. Attributes the client does not
// know about are kept in Extra.
type CollectionInfo struct {
	ID            string                 `json:"id" mapstructure:"id" validate:"required"`
	Name          string                 `json:"name,omitempty" mapstructure:"name"`
	HeidiconTag   string                 `json:"heidicon_tag,omitempty" mapstructure:"heidicon_tag"`
	LastModified  *time.Time             `json:"last_modified,omitempty" mapstructure:"last_modified"`
	LastFinetuned *time.Time             `json:"last_finetuned,omitempty" mapstructure:"last_finetuned"`
	Extra         map[string]interface{} `json:"-" mapstructure:",remain"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return unixFloat(secs), nil
	}
	return time.Time{}, errors.Errorf("unrecognised timestamp %q", s)
}

func unixFloat(secs float64) time.Time {
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*float64(time.Second))).UTC()
}

// timestampHook decodes strings and unix seconds into time.Time.
func timestampHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return parseTimestamp(v)
	case json.Number:
		return parseTimestamp(v.String())
	case float64:
		return unixFloat(v), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	}
	return data, nil
}

// NewCollectionInfoFromMap decodes a generic info payload.
func NewCollectionInfoFromMap(data map[string]interface{}) (*CollectionInfo, error) {
	info := &CollectionInfo{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           info,
		WeaklyTypedInput: true,
		DecodeHook:       timestampHook,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating decoder")
	}
	if err := decoder.Decode(data); err != nil {
		return nil, errors.Wrap(err, "error decoding collection info")
	}
	if err := structValidator.Struct(info); err != nil {
		return nil, errors.Wrap(err, "invalid collection info")
	}
	return info, nil
}

func (c *CollectionInfo) UnmarshalJSON(b []byte) error {
	var data map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.UseNumber()
	if err := decoder.Decode(&data); err != nil {
		return errors.Wrap(err, "error decoding collection info")
	}
	info, err := NewCollectionInfoFromMap(data)
	if err != nil {
		return err
	}
	*c = *info
	return nil
}

// CreatedCollection is the body of POST /collection/create.
type CreatedCollection struct {
	ID string `json:"id" validate:"required"`
}

func (c *CreatedCollection) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID flexibleID `json:"id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "error decoding created collection")
	}
	c.ID = string(raw.ID)
	return nil
}

// SearchResult is one hit of a similarity search.
type SearchResult struct {
	Score     float64 `json:"score"`
	ImageURL  string  `json:"image_url" validate:"required"`
	ObjectURL string  `json:"object_url,omitempty"`
}

// decodeSearchResults accepts a bare array or {"results": [...]}. Order is preserved.
func decodeSearchResults(body []byte) ([]SearchResult, error) {
	var results []SearchResult
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, errors.Wrap(err, "error decoding search results")
		}
	} else {
		var wrapped struct {
			Results []SearchResult `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, errors.Wrap(err, "error decoding search results")
		}
		results = wrapped.Results
	}
	for i := range results {
		if err := structValidator.Struct(results[i]); err != nil {
			return nil, errors.Wrapf(err, "invalid search result %d", i)
		}
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

// Verification is the outcome of VerifyAPIKey.
type Verification struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type searchOptions struct {
	query url.Values
}

type SearchOption func(*searchOptions) error

// WithSearchLimit caps the number of results the backend returns.
func WithSearchLimit(limit int) SearchOption {
	return func(o *searchOptions) error {
		if limit <= 0 {
			return errors.New("limit must be greater than 0")
		}
		o.query.Set("limit", strconv.Itoa(limit))
		return nil
	}
}

// WithSearchQuery adds an arbitrary query parameter to the search request.
func WithSearchQuery(key, value string) SearchOption {
	return func(o *searchOptions) error {
		if strings.TrimSpace(key) == "" {
			return errors.New("query key cannot be empty")
		}
		o.query.Set(key, value)
		return nil
	}
}
