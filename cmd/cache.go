package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/urfave/cli/v3"
)

// CacheSongsList lists songs stored by finished queries.
func (r *Runner) CacheSongsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.database(); err != nil {
		return err
	}

	stored, err := r.songs.List(map[string]any{
		"album_id":  cmd.String("album-id"),
		"artist_id": cmd.String("artist-id"),
		"search":    cmd.String("search"),
		"limit":     cmd.Int("limit"),
	})
	if err != nil {
		return err
	}

	songs := make([]models.Song, len(stored))
	for i, s := range stored {
		songs[i] = s.Song()
	}

	if cmd.Bool("json") {
		return r.writeJSON(songs, true)
	}

	total, err := r.songs.Count()
	if err != nil {
		return err
	}

	for _, song := range songs {
		r.writePlain("%s  %s - %s (%s) [%s]\n",
			song.SongID, song.Artist, song.Title, song.Album, shared.FormatDuration(song.Length))
	}
	r.writePlainln("Showing %s of %s cached songs", humanize.Comma(int64(len(songs))), humanize.Comma(int64(total)))
	return nil
}

// CacheSongsPurge removes cached songs that no query has returned within --older-than.
func (r *Runner) CacheSongsPurge(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("%w: --older-than must be positive", shared.ErrInvalidFlag)
	}

	if err := r.database(); err != nil {
		return err
	}

	before := time.Now().Add(-age)
	n, err := r.songs.Purge(before)
	if err != nil {
		return err
	}

	r.logger.Info("purged cached songs", "count", n, "before", before.Format(time.RFC3339))
	return r.writePlain("✓ Purged %s last cached before %s\n", english.Plural(n, "song", ""), humanize.Time(before))
}
