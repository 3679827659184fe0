package postgres

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dembrane/agentic/pkg/directory"
)

// Store is a directory.Store backed by a generic JSONB collection table.
// Filter/sort/limit is applied in Go over the collection's rows via
// directory.ApplyQuery, matching memdir's semantics exactly; collections
// in this repository are small per-run slices, so pushing the full scan to
// SQL buys little and would fork the filter grammar in two places.
type Store struct {
	client *Client
}

// New wraps client in a directory.Store.
func New(client *Client) *Store {
	return &Store{client: client}
}

// CreateItem implements directory.Store.
func (s *Store) CreateItem(ctx context.Context, collection string, item directory.Item) (directory.Item, error) {
	record := make(directory.Item, len(item))
	for k, v := range item {
		record[k] = v
	}

	id, _ := record["id"].(string)
	if id == "" {
		id = generateID(collection)
		record["id"] = id
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	_, err = s.client.DB().ExecContext(ctx,
		`INSERT INTO directory_item (collection, id, data) VALUES ($1, $2, $3)`,
		collection, id, data)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &directory.ConflictError{Collection: collection, ID: id}
		}
		return nil, fmt.Errorf("insert item: %w", err)
	}

	return record, nil
}

// UpdateItem implements directory.Store.
func (s *Store) UpdateItem(ctx context.Context, collection string, id string, fields directory.Item) (directory.Item, error) {
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.getItemForUpdate(ctx, tx, collection, id)
	if err != nil {
		return nil, err
	}

	for k, v := range fields {
		existing[k] = v
	}

	data, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE directory_item SET data = $1 WHERE collection = $2 AND id = $3`,
		data, collection, id); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return existing, nil
}

func (s *Store) getItemForUpdate(ctx context.Context, tx *stdsql.Tx, collection, id string) (directory.Item, error) {
	var raw []byte
	err := tx.QueryRowContext(ctx,
		`SELECT data FROM directory_item WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id).Scan(&raw)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, &directory.NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("select item: %w", err)
	}

	var item directory.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return item, nil
}

// GetItems implements directory.Store.
func (s *Store) GetItems(ctx context.Context, collection string, q directory.Query) ([]directory.Item, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT data FROM directory_item WHERE collection = $1`, collection)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	var all []directory.Item
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		var item directory.Item
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("unmarshal item: %w", err)
		}
		all = append(all, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return directory.ApplyQuery(all, q), nil
}

// DeleteItem implements directory.Store.
func (s *Store) DeleteItem(ctx context.Context, collection string, id string) error {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM directory_item WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &directory.NotFoundError{Collection: collection, ID: id}
	}
	return nil
}

// Ping implements directory.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.DB().PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func generateID(collection string) string {
	return fmt.Sprintf("%s-%s", collection, uuid.NewString())
}
