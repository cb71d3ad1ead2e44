package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/shared"
)

const songColumns = `id, sequence, song_id, album_id, artist_id, title, album, artist, albumartist,
	composer, performer, copyright, track, disc, length_ns, url, art_automatic, art_manual, source,
	cached_at, created_at, updated_at, deleted_at`

// SongRepository implements models.Repository[*models.PersistedSong] for the song cache.
//
// Rows are unique by catalog song id. [SongRepository.Upsert] refreshes an existing row in place
// and revives it if it was soft-deleted.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Create inserts a new [models.PersistedSong] with generated ID and sequence
func (r *SongRepository) Create(song *models.PersistedSong) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "songs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	song.SetSequence(sequence)
	song.SetID(shared.GenerateID())

	s := song.Song()
	query := `
		INSERT INTO songs (id, sequence, song_id, album_id, artist_id, title, album, artist, albumartist,
			composer, performer, copyright, track, disc, length_ns, url, art_automatic, source,
			cached_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		song.ID(), sequence, s.SongID, s.AlbumID, s.ArtistID, s.Title, s.Album, s.Artist, s.AlbumArtist,
		s.Composer, s.Performer, s.Copyright, s.Track, s.Disc, int64(s.Length), s.URL, s.ArtAutomatic, source(s),
		nullTime(song.CachedAt()), song.CreatedAt(), song.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}

	return nil
}

// Upsert inserts the song or refreshes the row with the same song id. cachedAt is stored on both paths.
func (r *SongRepository) Upsert(s models.Song, cachedAt time.Time) error {
	song := models.NewPersistedSong(0, s)
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "songs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	query := `
		INSERT INTO songs (id, sequence, song_id, album_id, artist_id, title, album, artist, albumartist,
			composer, performer, copyright, track, disc, length_ns, url, art_automatic, source,
			cached_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(song_id) DO UPDATE SET
			album_id = excluded.album_id,
			artist_id = excluded.artist_id,
			title = excluded.title,
			album = excluded.album,
			artist = excluded.artist,
			albumartist = excluded.albumartist,
			composer = excluded.composer,
			performer = excluded.performer,
			copyright = excluded.copyright,
			track = excluded.track,
			disc = excluded.disc,
			length_ns = excluded.length_ns,
			url = excluded.url,
			art_automatic = excluded.art_automatic,
			cached_at = excluded.cached_at,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`

	_, err = r.db.Exec(query,
		shared.GenerateID(), sequence, s.SongID, s.AlbumID, s.ArtistID, s.Title, s.Album, s.Artist, s.AlbumArtist,
		s.Composer, s.Performer, s.Copyright, s.Track, s.Disc, int64(s.Length), s.URL, s.ArtAutomatic, source(s),
		cachedAt, song.CreatedAt(), cachedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert song: %w", err)
	}
	return nil
}

// Get retrieves a song by ID, excluding soft-deleted songs
func (r *SongRepository) Get(id string) (*models.PersistedSong, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ? AND deleted_at IS NULL`
	return scanSong(r.db.QueryRow(query, id))
}

// GetBySongID retrieves a song by its catalog id
func (r *SongRepository) GetBySongID(songID string) (*models.PersistedSong, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE song_id = ? AND deleted_at IS NULL`
	return scanSong(r.db.QueryRow(query, songID))
}

// Update modifies an existing song, including its manually chosen art
func (r *SongRepository) Update(song *models.PersistedSong) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	song.SetUpdatedAt(now)

	s := song.Song()
	query := `
		UPDATE songs
		SET album_id = ?, artist_id = ?, title = ?, album = ?, artist = ?, albumartist = ?,
			composer = ?, performer = ?, copyright = ?, track = ?, disc = ?, length_ns = ?,
			url = ?, art_automatic = ?, art_manual = ?, cached_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		s.AlbumID, s.ArtistID, s.Title, s.Album, s.Artist, s.AlbumArtist,
		s.Composer, s.Performer, s.Copyright, s.Track, s.Disc, int64(s.Length),
		s.URL, s.ArtAutomatic, song.ArtManual(), nullTime(song.CachedAt()), now,
		song.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update song: %w", err)
	}

	return affected(result, fmt.Errorf("%w: %s", shared.ErrSongNotFound, song.ID()))
}

// Delete soft-deletes a song by ID
func (r *SongRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE songs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete song: %w", err)
	}

	return affected(result, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id))
}

// List retrieves songs matching the given criteria, excluding soft-deleted songs.
//
// Supported criteria: "album_id", "artist_id", "source" (exact) and "search" (substring of
// title, artist or album). Results are ordered like a library view.
func (r *SongRepository) List(criteria map[string]any) ([]*models.PersistedSong, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE deleted_at IS NULL`
	args := []any{}

	for _, key := range []string{"album_id", "artist_id", "source"} {
		if v, ok := criteria[key].(string); ok && v != "" {
			query += " AND " + key + " = ?"
			args = append(args, v)
		}
	}

	if search, ok := criteria["search"].(string); ok && search != "" {
		like := "%" + search + "%"
		query += " AND (title LIKE ? OR artist LIKE ? OR album LIKE ?)"
		args = append(args, like, like, like)
	}

	query += " ORDER BY albumartist, artist, album, disc, track, title, song_id"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []*models.PersistedSong
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return songs, nil
}

// Count returns the number of cached songs
func (r *SongRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM songs WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return n, nil
}

// Purge soft-deletes songs not cached since before. It returns the number of rows removed.
func (r *SongRepository) Purge(before time.Time) (int, error) {
	result, err := r.db.Exec(
		`UPDATE songs SET deleted_at = ? WHERE deleted_at IS NULL AND (cached_at IS NULL OR cached_at < ?)`,
		time.Now(), before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge songs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

func source(s models.Song) string {
	if s.Source == "" {
		return models.SourceQobuz
	}
	return s.Source
}

func scanSong(row scanner) (*models.PersistedSong, error) {
	var (
		id, songID, albumID, artistID, title, album, artist, albumArtist string
		composer, performer, copyright, url, artAutomatic, artManual, src string
		sequence, track, disc                                             int
		length                                                            int64
		cachedAt, deletedAt                                               sql.NullTime
		createdAt, updatedAt                                              time.Time
	)

	err := row.Scan(&id, &sequence, &songID, &albumID, &artistID, &title, &album, &artist, &albumArtist,
		&composer, &performer, &copyright, &track, &disc, &length, &url, &artAutomatic, &artManual, &src,
		&cachedAt, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrSongNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan song: %w", err)
	}

	song := models.NewPersistedSong(sequence, models.Song{
		Source:       src,
		SongID:       songID,
		AlbumID:      albumID,
		ArtistID:     artistID,
		Title:        title,
		Album:        album,
		Artist:       artist,
		AlbumArtist:  albumArtist,
		Composer:     composer,
		Performer:    performer,
		Copyright:    copyright,
		Track:        track,
		Disc:         disc,
		Length:       time.Duration(length),
		URL:          url,
		ArtAutomatic: artAutomatic,
	})
	song.SetID(id)
	song.SetArtManual(artManual)
	song.SetCachedAt(timePtr(cachedAt))
	song.SetCreatedAt(createdAt)
	song.SetUpdatedAt(updatedAt)
	song.SetDeletedAt(timePtr(deletedAt))

	return song, nil
}
