// Package repositories implements SQLite persistence for the song cache and the query history.
//
// Each repository handles CRUD operations with sequence generation for stable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [SongRepository] : Song cache keyed by catalog song id, with upserts from finished queries
//   - [QueryRunRepository] : One row per engine query with its outcome
//   - [SongCacheAdapter] : Plugs the song cache into the engine
//   - [RunRecorderAdapter] : Plugs the query history into the engine
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function draws them from dedicated AUTOINCREMENT sequence tables.
package repositories
