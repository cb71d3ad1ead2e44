// Package models defines catalog entities and persistence interfaces for the qbx query engine.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs produced by catalog queries
//   - [Artist] : Catalog artist identity
//   - [Album] : Catalog album identity with its cover URL
//   - [Song] : Song record assembled from track items and album context
//   - [SongMap] : Query result set keyed by song id
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [PersistedSong] : Cached songs keyed by catalog song id
//   - [QueryRun] : One recorded engine query with its outcome
//
// All persistent entities implement the Model interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
