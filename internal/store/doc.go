// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package is split into small interfaces that consumers depend on
// individually:
//
//   - AssetStore: asset rows and their append-only chunk log
//   - ConnectionStore: third-party connections committed after activation
//   - UsageStore: per-principal monthly run counters for quota checks
//
// Store combines them with Ping and Close. SQLiteStore implements all of
// them in a single struct; MockStore is the in-memory equivalent for tests.
//
// # Data Models
//
//   - Asset: identified by (category, uuid); carries file name, mime type,
//     owner reference, a streaming flag and the finalized bit
//   - AssetChunk: one appended payload, indexed densely from 0
//   - Connection: status (Created, Connecting, Active, Failed) plus opaque
//     JSON configuration
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads. Write transactions
// begin immediately and wait on busy_timeout, so appends from different
// connections serialize instead of failing:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Production: /var/lib/appstream-gateway/gateway.db
//   - Development: ~/.local/share/appstream/gateway.db
//   - Testing: a file under t.TempDir()
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrAssetExists: asset category/uuid already taken
//   - ErrAssetFinalized: append attempted after finalize
//
// All methods accept context.Context for cancellation support.
package store
