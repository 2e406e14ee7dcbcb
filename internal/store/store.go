// ABOUTME: Store interface and data types for appstream-gateway persistence
// ABOUTME: Defines Asset, AssetChunk, Connection and run usage records plus the Store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAssetExists is returned when creating an asset whose category/uuid is taken
var ErrAssetExists = errors.New("asset already exists")

// ErrAssetFinalized is returned when appending to an asset that has been finalized
var ErrAssetFinalized = errors.New("asset is finalized")

// Asset is a named binary object stored as an ordered list of chunks.
type Asset struct {
	Category  string
	UUID      string
	RefID     string // app uuid or session id that owns the asset
	Username  string // authenticated username or anonymous visitor id
	FileName  string
	MimeType  string
	Streaming bool
	Finalized bool
	Size      int64
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssetChunk is one appended piece of an asset's content.
type AssetChunk struct {
	Index     int
	Data      []byte
	CreatedAt time.Time
}

// Connection is the persisted form of a third-party connection.
// Configuration is opaque JSON owned by the connections package.
type Connection struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	BaseType      string
	TypeSlug      string
	ProviderSlug  string
	Status        string
	Configuration []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AssetStore persists assets and their chunks
type AssetStore interface {
	CreateAsset(ctx context.Context, asset *Asset) error
	GetAsset(ctx context.Context, category, uuid string) (*Asset, error)

	// AppendAssetChunk stores data as the next chunk and returns its index.
	// Returns ErrAssetFinalized once the asset has been finalized.
	AppendAssetChunk(ctx context.Context, category, uuid string, data []byte) (int, error)

	// FinalizeAsset marks the asset read-only. Finalizing twice is not an error.
	FinalizeAsset(ctx context.Context, category, uuid string) error

	// ListAssetChunks returns chunks with index >= from, in append order.
	ListAssetChunks(ctx context.Context, category, uuid string, from int) ([]*AssetChunk, error)

	DeleteAsset(ctx context.Context, category, uuid string) error
}

// ConnectionStore persists third-party connections
type ConnectionStore interface {
	// SaveConnection inserts or replaces the connection keyed by ID.
	SaveConnection(ctx context.Context, conn *Connection) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	ListConnections(ctx context.Context, userID string) ([]*Connection, error)
	UpdateConnectionStatus(ctx context.Context, id, status string) error
}

// UsageStore tracks how many runs a principal started in a period (YYYY-MM)
type UsageStore interface {
	IncrementRunUsage(ctx context.Context, principal, period string) (int, error)
	GetRunUsage(ctx context.Context, principal, period string) (int, error)
}

// Store is everything the gateway persists
type Store interface {
	AssetStore
	ConnectionStore
	UsageStore

	// Ping checks that the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
