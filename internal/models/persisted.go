package models

import (
	"errors"
	"time"
)

// PersistedSong is a cached [Song] row.
type PersistedSong struct {
	base
	song      Song
	artManual string
	cachedAt  *time.Time
}

// NewPersistedSong wraps a song for storage.
func NewPersistedSong(sequence int, song Song) *PersistedSong {
	return &PersistedSong{base: newBase(sequence), song: song}
}

func (p *PersistedSong) Song() Song { return p.song }
func (p *PersistedSong) SetSong(s Song) { p.song = s }
func (p *PersistedSong) SongID() string { return p.song.SongID }
func (p *PersistedSong) ArtManual() string { return p.artManual }
func (p *PersistedSong) SetArtManual(s string) { p.artManual = s }
func (p *PersistedSong) CachedAt() *time.Time { return p.cachedAt }
func (p *PersistedSong) SetCachedAt(t *time.Time) { p.cachedAt = t }

// Validate checks the song id, title and url are present.
func (p *PersistedSong) Validate() error {
	if p.song.SongID == "" {
		return errors.New("song_id is required")
	}
	if p.song.Title == "" {
		return errors.New("title is required")
	}
	if p.song.URL == "" {
		return errors.New("url is required")
	}
	return nil
}

// QueryRun records one engine query and its outcome.
type QueryRun struct {
	base
	queryID    int
	kind       string
	searchText string
	songs      int
	noResults  bool
	errorText  string
	startedAt  time.Time
	finishedAt *time.Time
}

// NewQueryRun creates a run record for a query that started now.
func NewQueryRun(sequence, queryID int, kind, searchText string) *QueryRun {
	return &QueryRun{
		base:       newBase(sequence),
		queryID:    queryID,
		kind:       kind,
		searchText: searchText,
		startedAt:  time.Now(),
	}
}

func (q *QueryRun) QueryID() int { return q.queryID }
func (q *QueryRun) Kind() string { return q.kind }
func (q *QueryRun) SearchText() string { return q.searchText }
func (q *QueryRun) Songs() int { return q.songs }
func (q *QueryRun) SetSongs(n int) { q.songs = n }
func (q *QueryRun) NoResults() bool { return q.noResults }
func (q *QueryRun) SetNoResults(v bool) { q.noResults = v }
func (q *QueryRun) ErrorText() string { return q.errorText }
func (q *QueryRun) SetErrorText(s string) { q.errorText = s }
func (q *QueryRun) StartedAt() time.Time { return q.startedAt }
func (q *QueryRun) SetStartedAt(t time.Time) { q.startedAt = t }
func (q *QueryRun) FinishedAt() *time.Time { return q.finishedAt }
func (q *QueryRun) SetFinishedAt(t *time.Time) { q.finishedAt = t }

// Duration returns how long the run took, or zero while it is still running.
func (q *QueryRun) Duration() time.Duration {
	if q.finishedAt == nil {
		return 0
	}
	return q.finishedAt.Sub(q.startedAt)
}

// Validate checks the run kind and query id.
func (q *QueryRun) Validate() error {
	if q.kind == "" {
		return errors.New("kind is required")
	}
	if q.queryID <= 0 {
		return errors.New("query_id must be positive")
	}
	if q.songs < 0 {
		return errors.New("songs cannot be negative")
	}
	return nil
}
