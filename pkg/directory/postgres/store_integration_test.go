//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dembrane/agentic/pkg/config"
	"github.com/dembrane/agentic/pkg/directory"
)

// newTestClient spins up a Postgres testcontainer, runs migrations, and
// returns a Client cleaned up at test end.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Database:        "test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}

	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestStoreCreateGetUpdateDelete(t *testing.T) {
	client := newTestClient(t)
	store := New(client)
	ctx := context.Background()

	created, err := store.CreateItem(ctx, "agentic_run", directory.Item{
		"project_id": "proj-1",
		"status":     "queued",
	})
	require.NoError(t, err)
	id := created["id"].(string)

	_, err = store.CreateItem(ctx, "agentic_run", directory.Item{"id": id})
	require.ErrorIs(t, err, directory.ErrConflict)

	updated, err := store.UpdateItem(ctx, "agentic_run", id, directory.Item{"status": "running"})
	require.NoError(t, err)
	require.Equal(t, "running", updated["status"])

	rows, err := store.GetItems(ctx, "agentic_run", directory.Query{
		Filter: []directory.Condition{{Field: "project_id", Operator: directory.OpEq, Value: "proj-1"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "running", rows[0]["status"])

	require.NoError(t, store.DeleteItem(ctx, "agentic_run", id))
	err = store.DeleteItem(ctx, "agentic_run", id)
	require.ErrorIs(t, err, directory.ErrNotFound)
}
