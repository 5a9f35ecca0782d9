package similarity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollectionListShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{name: "bare numeric array", body: `[1, 2, 3]`, want: []string{"1", "2", "3"}},
		{name: "bare string array", body: `["a","b"]`, want: []string{"a", "b"}},
		{name: "wrapped", body: `{"ids":[4,"x"],"message_type":"push","message":"hi"}`, want: []string{"4", "x"}},
		{name: "empty", body: `[]`, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list CollectionList
			require.NoError(t, json.Unmarshal([]byte(tt.body), &list))
			require.Equal(t, tt.want, list.IDs)
		})
	}

	var list CollectionList
	require.Error(t, json.Unmarshal([]byte(`[true]`), &list))
}

func TestCollectionOptionsFromList(t *testing.T) {
	require.Equal(t, []CollectionOption{}, CollectionOptionsFromList(nil))
	require.Equal(t, []CollectionOption{{ID: "7", Name: "Collection 7"}},
		CollectionOptionsFromList(&CollectionList{IDs: []string{"7"}}))
}

func TestCollectionInfoDecoding(t *testing.T) {
	t.Run("python isoformat and null", func(t *testing.T) {
		var info CollectionInfo
		body := `{"id": 3, "name": "collection3", "last_modified": "2024-05-02T10:11:12.123456", "last_finetuned": null, "size": 12}`
		require.NoError(t, json.Unmarshal([]byte(body), &info))
		require.Equal(t, "3", info.ID)
		require.Equal(t, "collection3", info.Name)
		require.NotNil(t, info.LastModified)
		require.Equal(t, time.Date(2024, 5, 2, 10, 11, 12, 123456000, time.UTC), *info.LastModified)
		require.Nil(t, info.LastFinetuned)
		require.Contains(t, info.Extra, "size")
	})

	t.Run("rfc1123", func(t *testing.T) {
		var info CollectionInfo
		body := `{"id": "a", "last_modified": "Thu, 02 May 2024 10:11:12 GMT"}`
		require.NoError(t, json.Unmarshal([]byte(body), &info))
		require.Equal(t, 2024, info.LastModified.Year())
	})

	t.Run("unix seconds", func(t *testing.T) {
		info, err := NewCollectionInfoFromMap(map[string]interface{}{"id": "a", "last_finetuned": float64(1700000000)})
		require.NoError(t, err)
		require.Equal(t, time.Unix(1700000000, 0).UTC(), *info.LastFinetuned)
	})

	t.Run("missing id", func(t *testing.T) {
		var info CollectionInfo
		require.Error(t, json.Unmarshal([]byte(`{"name":"x"}`), &info))
	})

	t.Run("bad timestamp", func(t *testing.T) {
		var info CollectionInfo
		require.Error(t, json.Unmarshal([]byte(`{"id":"1","last_modified":"yesterday"}`), &info))
	})
}

func TestCreatedCollectionDecoding(t *testing.T) {
	var created CreatedCollection
	require.NoError(t, json.Unmarshal([]byte(`{"id":4}`), &created))
	require.Equal(t, "4", created.ID)
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc"}`), &created))
	require.Equal(t, "abc", created.ID)
}

func TestDecodeSearchResults(t *testing.T) {
	results, err := decodeSearchResults([]byte(`[{"score":0.8,"image_url":"a"},{"score":0.2,"image_url":"b","object_url":"o"}]`))
	require.NoError(t, err)
	require.Equal(t, []SearchResult{{Score: 0.8, ImageURL: "a"}, {Score: 0.2, ImageURL: "b", ObjectURL: "o"}}, results)

	results, err = decodeSearchResults([]byte(`{"results":[{"score":1,"image_url":"a"}]}`))
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = decodeSearchResults([]byte(`{"message_type":"push","message":"nothing found"}`))
	require.NoError(t, err)
	require.Empty(t, results)

	_, err = decodeSearchResults([]byte(`[{"score":0.5}]`))
	require.Error(t, err)
}
