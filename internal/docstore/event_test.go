package docstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewUpdatedEvent = `{
  "oldValue": {
    "name": "projects/cinesync/databases/(default)/documents/reviews/r1",
    "fields": {
      "uidAutor": {"stringValue": "owner"},
      "reactions": {"mapValue": {"fields": {
        "❤️": {"arrayValue": {"values": [{"stringValue": "a"}]}}
      }}}
    },
    "createTime": "2024-05-01T10:00:00Z",
    "updateTime": "2024-05-01T10:00:00Z"
  },
  "value": {
    "name": "projects/cinesync/databases/(default)/documents/reviews/r1",
    "fields": {
      "uidAutor": {"stringValue": "owner"},
      "nota": {"doubleValue": 8.5},
      "commentCount": {"integerValue": "3"},
      "timestamp": {"timestampValue": "2024-05-01T10:00:00.123456Z"},
      "deleted": {"booleanValue": false},
      "fcmToken": {"nullValue": "NULL_VALUE"},
      "reactions": {"mapValue": {"fields": {
        "❤️": {"arrayValue": {"values": [{"stringValue": "a"}, {"stringValue": "b"}]}}
      }}}
    },
    "createTime": "2024-05-01T10:00:00Z",
    "updateTime": "2024-05-01T10:05:00Z"
  },
  "updateMask": {"fieldPaths": ["reactions"]}
}`

func TestDecodeFirestoreEvent_Update(t *testing.T) {
	ev, err := DecodeFirestoreEvent([]byte(reviewUpdatedEvent))
	require.NoError(t, err)

	assert.Equal(t, Doc("reviews", "r1"), ev.Ref)
	assert.Equal(t, Updated, ev.Kind)
	assert.Equal(t, "owner", ev.After["uidAutor"])
	assert.Equal(t, 8.5, ev.After["nota"])
	assert.Equal(t, int64(3), ev.After["commentCount"])
	assert.Equal(t, false, ev.After["deleted"])
	assert.Nil(t, ev.After["fcmToken"])
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), ev.After["timestamp"])
	assert.Equal(t, map[string]any{"❤️": []any{"a", "b"}}, ev.After["reactions"])
	assert.Equal(t, map[string]any{"❤️": []any{"a"}}, ev.Before["reactions"])
}

func TestDecodeFirestoreEvent_CreateAndDelete(t *testing.T) {
	created, err := DecodeFirestoreEvent([]byte(`{
		"value": {"name": "projects/p/databases/(default)/documents/groups/g1/posts/p1",
		          "fields": {"authorId": {"stringValue": "u1"}}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, Created, created.Kind)
	assert.Equal(t, "groups/g1/posts", created.Ref.Collection)
	assert.Nil(t, created.Before)

	deleted, err := DecodeFirestoreEvent([]byte(`{
		"oldValue": {"name": "projects/p/databases/(default)/documents/reviews/r9",
		             "fields": {"uidAutor": {"stringValue": "u1"}}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, Deleted, deleted.Kind)
	assert.Nil(t, deleted.After)
	assert.Equal(t, "u1", deleted.Before["uidAutor"])
}

func TestDecodeFirestoreEvent_Invalid(t *testing.T) {
	_, err := DecodeFirestoreEvent([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = DecodeFirestoreEvent([]byte(`{"value": {"name": "reviews/r1"}}`))
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = DecodeFirestoreEvent([]byte(`{"value": {"name": "projects/p/databases/d/documents/users/u1",
		"fields": {"xp": {"integerValue": "abc"}}}}`))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
