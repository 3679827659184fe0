package memdir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dembrane/agentic/pkg/directory"
)

func TestCreateItemAssignsID(t *testing.T) {
	s := New()
	ctx := context.Background()

	record, err := s.CreateItem(ctx, "agentic_run", directory.Item{"status": "queued"})
	require.NoError(t, err)
	assert.Equal(t, "agentic_run-1", record["id"])

	second, err := s.CreateItem(ctx, "agentic_run", directory.Item{"status": "queued"})
	require.NoError(t, err)
	assert.Equal(t, "agentic_run-2", second["id"])
}

func TestUpdateItemNotFound(t *testing.T) {
	s := New()
	_, err := s.UpdateItem(context.Background(), "agentic_run", "missing", directory.Item{"status": "running"})
	require.Error(t, err)
	var nf *directory.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestGetItemsFilterSortLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := s.CreateItem(ctx, "agentic_run_event", directory.Item{
			"run_id": "run-1",
			"seq":    i,
		})
		require.NoError(t, err)
	}
	_, err := s.CreateItem(ctx, "agentic_run_event", directory.Item{"run_id": "run-2", "seq": 1})
	require.NoError(t, err)

	rows, err := s.GetItems(ctx, "agentic_run_event", directory.Query{
		Filter: []directory.Condition{
			{Field: "run_id", Operator: directory.OpEq, Value: "run-1"},
			{Field: "seq", Operator: directory.OpGt, Value: 2},
		},
		Sort:  "seq",
		Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3, rows[0]["seq"])
	assert.Equal(t, 4, rows[1]["seq"])
}

func TestDeleteItem(t *testing.T) {
	s := New()
	ctx := context.Background()
	record, err := s.CreateItem(ctx, "agentic_run", directory.Item{})
	require.NoError(t, err)

	require.NoError(t, s.DeleteItem(ctx, "agentic_run", record["id"].(string)))

	err = s.DeleteItem(ctx, "agentic_run", record["id"].(string))
	require.Error(t, err)
}
