package models

import (
	"sort"
	"strings"
	"time"
)

// SourceQobuz tags songs produced by the Qobuz catalog.
const SourceQobuz = "qobuz"

// Artist identifies a catalog artist. Ids are opaque strings even when the API sends numbers.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album identifies a catalog album. CoverURL is empty when the catalog has no large image.
type Album struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	CoverURL string `json:"cover_url,omitempty"`
}

// Song is one playable track assembled from a track item and its album context.
type Song struct {
	Source      string        `json:"source"`
	SongID      string        `json:"song_id"`
	AlbumID     string        `json:"album_id"`
	ArtistID    string        `json:"artist_id"`
	Title       string        `json:"title"`
	Album       string        `json:"album"`
	Artist      string        `json:"artist"`
	AlbumArtist string        `json:"albumartist,omitempty"`
	Composer    string        `json:"composer,omitempty"`
	Performer   string        `json:"performer,omitempty"`
	Copyright   string        `json:"copyright,omitempty"`
	Track       int           `json:"track"`
	Disc        int           `json:"disc"`
	Length      time.Duration `json:"length"`
	URL         string        `json:"url"`
	// ArtAutomatic is the remote cover URL until a download succeeds, then the local file URL.
	ArtAutomatic string `json:"art_automatic,omitempty"`
	Streamable   bool   `json:"streamable"`
}

// EffectiveAlbumArtist returns the album artist, falling back to the song artist.
func (s Song) EffectiveAlbumArtist() string {
	if s.AlbumArtist != "" {
		return s.AlbumArtist
	}
	return s.Artist
}

// IsValid reports whether the song carries the fields needed to play it.
func (s Song) IsValid() bool {
	return s.SongID != "" && s.URL != ""
}

// HasLocalArt reports whether the cover has been saved to disk.
func (s Song) HasLocalArt() bool {
	return strings.HasPrefix(s.ArtAutomatic, "file://")
}

// SongMap is a query result set keyed by song id. Later writes for the same id win.
type SongMap map[string]Song

// IDs returns the song ids in ascending order.
func (m SongMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns the songs ordered by artist, album, disc, track then title.
func (m SongMap) Sorted() []Song {
	songs := make([]Song, 0, len(m))
	for _, s := range m {
		songs = append(songs, s)
	}
	sort.SliceStable(songs, func(i, j int) bool {
		a, b := songs[i], songs[j]
		if a.EffectiveAlbumArtist() != b.EffectiveAlbumArtist() {
			return a.EffectiveAlbumArtist() < b.EffectiveAlbumArtist()
		}
		if a.Album != b.Album {
			return a.Album < b.Album
		}
		if a.Disc != b.Disc {
			return a.Disc < b.Disc
		}
		if a.Track != b.Track {
			return a.Track < b.Track
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.SongID < b.SongID
	})
	return songs
}
