// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers store setup, asset chunk persistence, connections and run usage

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.CreateAsset(ctx, testAsset("audio", "a-1")))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetAsset(ctx, "audio", "a-1")
	require.NoError(t, err)
	assert.Equal(t, "clip.wav", got.FileName)
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestCreateAndGetAsset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	asset := testAsset("files", "u-1")
	asset.Metadata = map[string]string{"app_uuid": "app-1"}
	require.NoError(t, store.CreateAsset(ctx, asset))

	got, err := store.GetAsset(ctx, "files", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "files", got.Category)
	assert.Equal(t, "u-1", got.UUID)
	assert.Equal(t, "app-1", got.RefID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "audio/wav", got.MimeType)
	assert.True(t, got.Streaming)
	assert.False(t, got.Finalized)
	assert.Equal(t, int64(0), got.Size)
	assert.Equal(t, map[string]string{"app_uuid": "app-1"}, got.Metadata)
	assert.WithinDuration(t, asset.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestCreateAsset_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAsset(ctx, testAsset("files", "dup")))
	err := store.CreateAsset(ctx, testAsset("files", "dup"))
	assert.ErrorIs(t, err, ErrAssetExists)

	// Same uuid in a different category is a different asset
	assert.NoError(t, store.CreateAsset(ctx, testAsset("audio", "dup")))
}

func TestGetAsset_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetAsset(context.Background(), "files", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendAssetChunk_Order(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAsset(ctx, testAsset("files", "ordered")))

	for i, payload := range []string{"AAAA", "BB", "C"} {
		idx, err := store.AppendAssetChunk(ctx, "files", "ordered", []byte(payload))
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}

	chunks, err := store.ListAssetChunks(ctx, "files", "ordered", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []byte("AAAA"), chunks[0].Data)
	assert.Equal(t, []byte("BB"), chunks[1].Data)
	assert.Equal(t, []byte("C"), chunks[2].Data)

	tail, err := store.ListAssetChunks(ctx, "files", "ordered", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, 2, tail[0].Index)

	got, err := store.GetAsset(ctx, "files", "ordered")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Size)
}

func TestAppendAssetChunk_AfterFinalize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAsset(ctx, testAsset("files", "done")))

	_, err := store.AppendAssetChunk(ctx, "files", "done", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.FinalizeAsset(ctx, "files", "done"))
	require.NoError(t, store.FinalizeAsset(ctx, "files", "done"), "finalize is idempotent")

	_, err = store.AppendAssetChunk(ctx, "files", "done", []byte("y"))
	assert.ErrorIs(t, err, ErrAssetFinalized)

	chunks, err := store.ListAssetChunks(ctx, "files", "done", 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestAppendAssetChunk_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AppendAssetChunk(context.Background(), "files", "nope", []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.FinalizeAsset(context.Background(), "files", "nope"), ErrNotFound)
}

func TestAppendAssetChunk_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAsset(ctx, testAsset("files", "busy")))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.AppendAssetChunk(ctx, "files", "busy", []byte(fmt.Sprintf("%d", n)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	chunks, err := store.ListAssetChunks(ctx, "files", "busy", 0)
	require.NoError(t, err)
	require.Len(t, chunks, writers)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestDeleteAsset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAsset(ctx, testAsset("files", "gone")))
	_, err := store.AppendAssetChunk(ctx, "files", "gone", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteAsset(ctx, "files", "gone"))

	_, err = store.GetAsset(ctx, "files", "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	chunks, err := store.ListAssetChunks(ctx, "files", "gone", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	assert.ErrorIs(t, store.DeleteAsset(ctx, "files", "gone"), ErrNotFound)
}

func TestSaveAndGetConnection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conn := &Connection{
		ID:            "conn-1",
		UserID:        "user-1",
		Name:          "Work mail",
		BaseType:      "oauth2",
		TypeSlug:      "oauth2_authentication",
		ProviderSlug:  "google",
		Status:        "Created",
		Configuration: []byte(`{"client_id":"abc"}`),
	}
	require.NoError(t, store.SaveConnection(ctx, conn))

	got, err := store.GetConnection(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "oauth2_authentication", got.TypeSlug)
	assert.Equal(t, "Created", got.Status)
	assert.JSONEq(t, `{"client_id":"abc"}`, string(got.Configuration))
	created := got.CreatedAt

	conn.Status = "Active"
	conn.Configuration = []byte(`{"client_id":"abc","access_token":"tok"}`)
	require.NoError(t, store.SaveConnection(ctx, conn))

	got, err = store.GetConnection(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "Active", got.Status)
	assert.JSONEq(t, `{"client_id":"abc","access_token":"tok"}`, string(got.Configuration))
	assert.True(t, got.CreatedAt.Equal(created), "created_at survives replace")
}

func TestSaveConnection_RejectsUnknownStatus(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveConnection(context.Background(), &Connection{
		ID: "c", UserID: "u", BaseType: "oauth2", TypeSlug: "x", Status: "Bogus",
	})
	assert.Error(t, err)
}

func TestListConnectionsAndUpdateStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.SaveConnection(ctx, &Connection{
			ID: id, UserID: "user-1", BaseType: "credentials", TypeSlug: "basic_authentication", Status: "Created",
		}))
	}
	require.NoError(t, store.SaveConnection(ctx, &Connection{
		ID: "other", UserID: "user-2", BaseType: "credentials", TypeSlug: "basic_authentication", Status: "Created",
	}))

	conns, err := store.ListConnections(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, conns, 2)

	require.NoError(t, store.UpdateConnectionStatus(ctx, "a", "Failed"))
	got, err := store.GetConnection(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Failed", got.Status)

	assert.ErrorIs(t, store.UpdateConnectionStatus(ctx, "missing", "Active"), ErrNotFound)
	_, err = store.GetConnection(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runs, err := store.GetRunUsage(ctx, "user-1", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 0, runs)

	for want := 1; want <= 3; want++ {
		runs, err = store.IncrementRunUsage(ctx, "user-1", "2026-10")
		require.NoError(t, err)
		assert.Equal(t, want, runs)
	}

	runs, err = store.IncrementRunUsage(ctx, "user-1", "2026-11")
	require.NoError(t, err)
	assert.Equal(t, 1, runs, "periods are counted separately")

	runs, err = store.GetRunUsage(ctx, "user-1", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 3, runs)
}

func TestUsagePeriod(t *testing.T) {
	ts := time.Date(2026, time.February, 3, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-02", UsagePeriod(ts))
}

func testAsset(category, uuid string) *Asset {
	return &Asset{
		Category:  category,
		UUID:      uuid,
		RefID:     "app-1",
		Username:  "alice",
		FileName:  "clip.wav",
		MimeType:  "audio/wav",
		Streaming: true,
		CreatedAt: time.Now().UTC(),
	}
}

// newTestStore creates a SQLiteStore backed by a temp file, closed on cleanup.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}
