package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/qbx/internal/models"
)

// SongCacheAdapter implements tasks.SongCacher using SongRepository.
//
// Every song of a finished query is upserted by catalog id, so repeated queries refresh rows
// instead of duplicating them.
type SongCacheAdapter struct {
	repo *SongRepository
	now  func() time.Time
}

// NewSongCacheAdapter creates a new SongCacheAdapter with the given repository
func NewSongCacheAdapter(repo *SongRepository) *SongCacheAdapter {
	return &SongCacheAdapter{repo: repo, now: time.Now}
}

// CacheSongs stores every valid song. Invalid songs are skipped; write failures are joined
// into the returned error after all songs were attempted.
func (a *SongCacheAdapter) CacheSongs(songs []models.Song) error {
	cachedAt := a.now()

	var errs []error
	for _, s := range songs {
		if !s.IsValid() {
			continue
		}
		if err := a.repo.Upsert(s, cachedAt); err != nil {
			errs = append(errs, fmt.Errorf("song %s: %w", s.SongID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to cache %d of %d songs: %w", len(errs), len(songs), errors.Join(errs...))
	}
	return nil
}
