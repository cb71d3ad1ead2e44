// Package tasks collects songs from the Qobuz catalog with real-time progress reporting.
//
// # Queries
//
// A query is either a favorites listing or a text search, of artists, albums or songs.
// Whatever the entry point, the result is a flat set of songs:
//
//  1. Artists : favorite or matching artists, then every album of each artist, then every track of each album
//  2. Albums : favorite or matching albums, then every track of each album
//  3. Songs : favorite or matching tracks directly
//
// # Request Pipeline
//
// [Request] owns one query. Work is queued per [Stage] and released by a periodic flush that
// drains the highest priority non-empty stage up to its concurrency cap. Paginated replies
// schedule the next page through [Cursor.Next].
//
// Child work is never queued while its parent stage is still running. Artists found on any
// page land in a claim-once [Registry] and are released to the artist-albums stage in one batch
// once the artists stage is exhausted; albums are handled the same way for the album-songs stage.
// Identical artist ids and album ids are therefore fetched once per query.
//
// After the songs are in, album covers are downloaded once per distinct URL ([CoverRegistry])
// and every song waiting on a URL is pointed at the saved file.
//
// # Completion
//
// After every reply the state machine advances through [Phase] values. When it reaches
// finalizing with nothing queued, in flight or pending, [Results] are emitted exactly once.
// Canceling the context or calling [Request.Close] aborts every in-flight request and
// suppresses all later events.
//
// # Progress Reporting
//
// Events go to a [Listener]. [ChannelListener] turns them into [ProgressUpdate] values on a
// channel without ever blocking the query.
//
// # Engine
//
// [Engine] hands out query ids, checks credentials, replaces a running query of the same slot,
// and optionally hands the songs to a [SongCacher] and a [RunRecorder].
package tasks
