// ABOUTME: SQLite implementation of AssetStore
// ABOUTME: Asset rows plus an append-only chunk table with dense per-asset indexes

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateAsset inserts a new asset row.
// Returns ErrAssetExists if the category/uuid pair is already taken.
func (s *SQLiteStore) CreateAsset(ctx context.Context, asset *Asset) error {
	now := time.Now()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	if asset.UpdatedAt.IsZero() {
		asset.UpdatedAt = asset.CreatedAt
	}

	var metadata any
	if len(asset.Metadata) > 0 {
		raw, err := json.Marshal(asset.Metadata)
		if err != nil {
			return fmt.Errorf("encoding asset metadata: %w", err)
		}
		metadata = string(raw)
	}

	query := `
		INSERT INTO assets (
			category, uuid, ref_id, username, file_name, mime_type,
			streaming, finalized, size, metadata, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		asset.Category,
		asset.UUID,
		nullString(asset.RefID),
		nullString(asset.Username),
		asset.FileName,
		asset.MimeType,
		asset.Streaming,
		asset.Finalized,
		metadata,
		formatTime(asset.CreatedAt),
		formatTime(asset.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAssetExists
		}
		return fmt.Errorf("inserting asset: %w", err)
	}

	s.logger.Debug("created asset", "category", asset.Category, "uuid", asset.UUID, "streaming", asset.Streaming)
	return nil
}

// GetAsset retrieves an asset by category and uuid.
// Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) GetAsset(ctx context.Context, category, uuid string) (*Asset, error) {
	query := `
		SELECT category, uuid, ref_id, username, file_name, mime_type,
		       streaming, finalized, size, metadata, created_at, updated_at
		FROM assets
		WHERE category = ? AND uuid = ?
	`

	var (
		asset              Asset
		refID, username    sql.NullString
		metadata           sql.NullString
		createdAt, updated string
	)
	err := s.db.QueryRowContext(ctx, query, category, uuid).Scan(
		&asset.Category,
		&asset.UUID,
		&refID,
		&username,
		&asset.FileName,
		&asset.MimeType,
		&asset.Streaming,
		&asset.Finalized,
		&asset.Size,
		&metadata,
		&createdAt,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying asset: %w", err)
	}

	asset.RefID = refID.String
	asset.Username = username.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &asset.Metadata); err != nil {
			return nil, fmt.Errorf("decoding asset metadata: %w", err)
		}
	}
	if asset.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if asset.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	return &asset, nil
}

// AppendAssetChunk stores data as the next chunk of the asset.
// The finalized check, index allocation and insert share one transaction.
func (s *SQLiteStore) AppendAssetChunk(ctx context.Context, category, uuid string, data []byte) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var finalized bool
	err = tx.QueryRowContext(ctx,
		`SELECT finalized FROM assets WHERE category = ? AND uuid = ?`, category, uuid,
	).Scan(&finalized)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("checking asset state: %w", err)
	}
	if finalized {
		return 0, ErrAssetFinalized
	}

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx), -1) + 1 FROM asset_chunks WHERE category = ? AND uuid = ?`,
		category, uuid,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocating chunk index: %w", err)
	}

	now := formatTime(time.Now())
	if data == nil {
		data = []byte{}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO asset_chunks (category, uuid, idx, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		category, uuid, next, data, now,
	); err != nil {
		return 0, fmt.Errorf("inserting chunk: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE assets SET size = size + ?, updated_at = ? WHERE category = ? AND uuid = ?`,
		len(data), now, category, uuid,
	); err != nil {
		return 0, fmt.Errorf("updating asset size: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing append: %w", err)
	}

	return next, nil
}

// FinalizeAsset marks the asset as finalized. It is idempotent.
func (s *SQLiteStore) FinalizeAsset(ctx context.Context, category, uuid string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE assets SET finalized = 1, updated_at = ? WHERE category = ? AND uuid = ?`,
		formatTime(time.Now()), category, uuid,
	)
	if err != nil {
		return fmt.Errorf("finalizing asset: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("finalized asset", "category", category, "uuid", uuid)
	return nil
}

// ListAssetChunks returns the asset's chunks starting at index from.
func (s *SQLiteStore) ListAssetChunks(ctx context.Context, category, uuid string, from int) ([]*AssetChunk, error) {
	query := `
		SELECT idx, data, created_at
		FROM asset_chunks
		WHERE category = ? AND uuid = ? AND idx >= ?
		ORDER BY idx ASC
	`

	rows, err := s.db.QueryContext(ctx, query, category, uuid, from)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*AssetChunk
	for rows.Next() {
		var chunk AssetChunk
		var createdAt string
		if err := rows.Scan(&chunk.Index, &chunk.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if chunk.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	return chunks, nil
}

// DeleteAsset removes an asset and its chunks.
// Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) DeleteAsset(ctx context.Context, category, uuid string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM assets WHERE category = ? AND uuid = ?`, category, uuid,
	)
	if err != nil {
		return fmt.Errorf("deleting asset: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
