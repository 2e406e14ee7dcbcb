// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type assetKey struct {
	category string
	uuid     string
}

type usageKey struct {
	principal string
	period    string
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	assets      map[assetKey]*Asset
	chunks      map[assetKey][]*AssetChunk
	connections map[string]*Connection
	usage       map[usageKey]int
	pingErr     error
	closed      bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		assets:      make(map[assetKey]*Asset),
		chunks:      make(map[assetKey][]*AssetChunk),
		connections: make(map[string]*Connection),
		usage:       make(map[usageKey]int),
	}
}

// SetPingError makes subsequent Ping calls return err.
func (m *MockStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

func (m *MockStore) CreateAsset(ctx context.Context, asset *Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assetKey{asset.Category, asset.UUID}
	if _, ok := m.assets[key]; ok {
		return ErrAssetExists
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	if asset.UpdatedAt.IsZero() {
		asset.UpdatedAt = asset.CreatedAt
	}

	stored := *asset
	stored.Size = 0
	m.assets[key] = &stored
	return nil
}

func (m *MockStore) GetAsset(ctx context.Context, category, uuid string) (*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	asset, ok := m.assets[assetKey{category, uuid}]
	if !ok {
		return nil, ErrNotFound
	}
	result := *asset
	return &result, nil
}

func (m *MockStore) AppendAssetChunk(ctx context.Context, category, uuid string, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assetKey{category, uuid}
	asset, ok := m.assets[key]
	if !ok {
		return 0, ErrNotFound
	}
	if asset.Finalized {
		return 0, ErrAssetFinalized
	}

	idx := len(m.chunks[key])
	m.chunks[key] = append(m.chunks[key], &AssetChunk{
		Index:     idx,
		Data:      append([]byte(nil), data...),
		CreatedAt: time.Now(),
	})
	asset.Size += int64(len(data))
	asset.UpdatedAt = time.Now()
	return idx, nil
}

func (m *MockStore) FinalizeAsset(ctx context.Context, category, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	asset, ok := m.assets[assetKey{category, uuid}]
	if !ok {
		return ErrNotFound
	}
	asset.Finalized = true
	asset.UpdatedAt = time.Now()
	return nil
}

func (m *MockStore) ListAssetChunks(ctx context.Context, category, uuid string, from int) ([]*AssetChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.chunks[assetKey{category, uuid}]
	if from < 0 {
		from = 0
	}
	if from >= len(all) {
		return nil, nil
	}

	result := make([]*AssetChunk, 0, len(all)-from)
	for _, c := range all[from:] {
		chunk := *c
		result = append(result, &chunk)
	}
	return result, nil
}

func (m *MockStore) DeleteAsset(ctx context.Context, category, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assetKey{category, uuid}
	if _, ok := m.assets[key]; !ok {
		return ErrNotFound
	}
	delete(m.assets, key)
	delete(m.chunks, key)
	return nil
}

func (m *MockStore) SaveConnection(ctx context.Context, conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.connections[conn.ID]; ok {
		conn.CreatedAt = existing.CreatedAt
	} else if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	stored := *conn
	stored.Configuration = append([]byte(nil), conn.Configuration...)
	m.connections[conn.ID] = &stored
	return nil
}

func (m *MockStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *conn
	return &result, nil
}

func (m *MockStore) ListConnections(ctx context.Context, userID string) ([]*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Connection
	for _, conn := range m.connections {
		if conn.UserID == userID {
			c := *conn
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockStore) UpdateConnectionStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[id]
	if !ok {
		return ErrNotFound
	}
	conn.Status = status
	conn.UpdatedAt = time.Now()
	return nil
}

func (m *MockStore) IncrementRunUsage(ctx context.Context, principal, period string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := usageKey{principal, period}
	m.usage[key]++
	return m.usage[key], nil
}

func (m *MockStore) GetRunUsage(ctx context.Context, principal, period string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage[usageKey{principal, period}], nil
}

func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingErr
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Verify MockStore implements Store interface at compile time.
var _ Store = (*MockStore)(nil)
