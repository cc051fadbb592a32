package mongodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestCollectWorkflows_SkipsUnreadableDocuments(t *testing.T) {
	documents := []interface{}{
		bson.D{
			{Key: "_id", Value: "a"},
			{Key: "user_id", Value: "user-1"},
			{Key: "is_active", Value: true},
			{Key: "nodes", Value: bson.D{{Key: "v", Value: bson.A{
				bson.D{{Key: "id", Value: "start"}, {Key: "type", Value: "trigger"}},
			}}}},
		},
		bson.D{
			{Key: "_id", Value: "bad-nodes"},
			{Key: "is_active", Value: true},
			{Key: "nodes", Value: bson.D{{Key: "v", Value: "not a node list"}}},
		},
		bson.D{
			{Key: "_id", Value: "bad-shape"},
			{Key: "is_active", Value: true},
			{Key: "nodes", Value: "not a document"},
		},
		bson.D{
			{Key: "_id", Value: "c"},
			{Key: "user_id", Value: "user-1"},
			{Key: "is_active", Value: true},
		},
	}

	cursor, err := mongo.NewCursorFromDocuments(documents, nil, nil)
	require.NoError(t, err)

	workflows, err := collectWorkflows(context.Background(), cursor)
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "a", workflows[0].ID)
	assert.Equal(t, "c", workflows[1].ID)
	require.Len(t, workflows[0].Nodes, 1)
	assert.Equal(t, "start", workflows[0].Nodes[0].ID)
}
