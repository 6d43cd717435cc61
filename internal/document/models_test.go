package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFromBSON(t *testing.T) {
	s := testSchema(t, true)
	id := primitive.NewObjectID()
	now := time.Now().UTC().Truncate(time.Millisecond)
	d, err := FromBSON(s, bson.M{
		"_id":       id,
		"__v":       int32(4),
		"title":     "Dune",
		"pages":     int32(412),
		"createdAt": primitive.NewDateTimeFromTime(now),
		"updatedAt": now,
		"ignored":   true,
	})
	require.NoError(t, err)
	require.Equal(t, id, d.ID)
	require.Equal(t, int64(4), d.Version)
	require.Equal(t, now, d.CreatedAt)
	require.Equal(t, now, d.UpdatedAt)
	require.Equal(t, map[string]any{"title": "Dune", "pages": 412.0}, d.Fields())
	require.False(t, d.IsModified())
	require.False(t, d.IsNew())
}

func TestSetAndModifiedPaths(t *testing.T) {
	s := testSchema(t, true)
	d, err := FromBSON(s, bson.M{"_id": primitive.NewObjectID(), "__v": 1, "title": "Dune", "pages": 412.0})
	require.NoError(t, err)

	// same values and a different version: no domain change
	require.NoError(t, d.Set(map[string]any{"title": "Dune", "__v": 0.0}))
	require.False(t, d.IsModified())
	require.Equal(t, int64(0), d.Version)

	require.NoError(t, d.Set(map[string]any{"pages": "500", "status": "done", "unknown": 1}))
	require.Equal(t, []string{"pages", "status"}, d.ModifiedPaths())

	require.NoError(t, d.Set(map[string]any{"title": nil}))
	set, unset := d.Changes()
	require.Equal(t, bson.M{"pages": 500.0, "status": "done"}, set)
	require.Equal(t, []string{"title"}, unset)
}

func TestSet_CastFailures(t *testing.T) {
	s := testSchema(t, true)
	d := New(s)
	err := d.Set(map[string]any{"pages": "lots", "__v": "x", "title": "ok"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 2)
	v, _ := d.Get("title")
	require.Equal(t, "ok", v)
}

func TestApplyDefaultsAndValidate(t *testing.T) {
	s := testSchema(t, true)
	d := New(s)
	require.NoError(t, d.Set(map[string]any{"title": "Dune"}))
	require.Error(t, d.Validate())
	d.ApplyDefaults()
	require.NoError(t, d.Validate())
	v, _ := d.Get("status")
	require.Equal(t, "draft", v)
	require.True(t, d.IsNew())
}

func TestMarshalJSON(t *testing.T) {
	s := testSchema(t, true)
	id := primitive.NewObjectID()
	d, err := FromBSON(s, bson.M{"_id": id, "__v": 2, "title": "Dune"})
	require.NoError(t, err)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, id.Hex(), got["id"])
	require.Equal(t, 2.0, got["__v"])
	require.Equal(t, "Dune", got["title"])
	require.NotContains(t, got, "_id")
	require.NotContains(t, got, "createdAt")
}
