// ABOUTME: SQLite implementation of ConnectionStore
// ABOUTME: Persists third-party connections with their status and JSON configuration

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveConnection inserts the connection or replaces an existing row with the same ID.
// CreatedAt is preserved on replace.
func (s *SQLiteStore) SaveConnection(ctx context.Context, conn *Connection) error {
	now := time.Now()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	query := `
		INSERT INTO connections (
			id, user_id, name, description, base_type, connection_type_slug,
			provider_slug, status, configuration, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			description = excluded.description,
			base_type = excluded.base_type,
			connection_type_slug = excluded.connection_type_slug,
			provider_slug = excluded.provider_slug,
			status = excluded.status,
			configuration = excluded.configuration,
			updated_at = excluded.updated_at
	`

	var configuration any
	if len(conn.Configuration) > 0 {
		configuration = string(conn.Configuration)
	}

	_, err := s.db.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.Name,
		conn.Description,
		conn.BaseType,
		conn.TypeSlug,
		conn.ProviderSlug,
		conn.Status,
		configuration,
		formatTime(conn.CreatedAt),
		formatTime(conn.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving connection: %w", err)
	}

	s.logger.Debug("saved connection", "id", conn.ID, "status", conn.Status)
	return nil
}

// GetConnection retrieves a connection by ID.
// Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	query := `
		SELECT id, user_id, name, description, base_type, connection_type_slug,
		       provider_slug, status, configuration, created_at, updated_at
		FROM connections
		WHERE id = ?
	`

	conn, err := scanConnection(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ListConnections returns the user's connections, newest first.
func (s *SQLiteStore) ListConnections(ctx context.Context, userID string) ([]*Connection, error) {
	query := `
		SELECT id, user_id, name, description, base_type, connection_type_slug,
		       provider_slug, status, configuration, created_at, updated_at
		FROM connections
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection rows: %w", err)
	}

	return conns, nil
}

// UpdateConnectionStatus sets only the status column.
// Returns ErrNotFound if the connection does not exist.
func (s *SQLiteStore) UpdateConnectionStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE connections SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
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

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*Connection, error) {
	var (
		conn          Connection
		configuration sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Name,
		&conn.Description,
		&conn.BaseType,
		&conn.TypeSlug,
		&conn.ProviderSlug,
		&conn.Status,
		&configuration,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning connection row: %w", err)
	}

	if configuration.Valid {
		conn.Configuration = []byte(configuration.String)
	}
	if conn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if conn.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &conn, nil
}
