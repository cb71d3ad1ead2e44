package tasks

import (
	"fmt"

	"github.com/desertthunder/qbx/internal/shared"
)

// QueryKind selects what a query collects and where the pipeline starts.
type QueryKind int

const (
	QueryArtists QueryKind = iota + 1
	QueryAlbums
	QuerySongs
	QuerySearchArtists
	QuerySearchAlbums
	QuerySearchSongs
)

func (k QueryKind) String() string {
	switch k {
	case QueryArtists:
		return "artists"
	case QueryAlbums:
		return "albums"
	case QuerySongs:
		return "songs"
	case QuerySearchArtists:
		return "search_artists"
	case QuerySearchAlbums:
		return "search_albums"
	case QuerySearchSongs:
		return "search_songs"
	default:
		return ""
	}
}

// MarshalText encodes the kind by name.
func (k QueryKind) MarshalText() ([]byte, error) {
	if k.String() == "" {
		return nil, fmt.Errorf("%w: query kind %d", shared.ErrInvalidQuery, int(k))
	}
	return []byte(k.String()), nil
}

// ParseQueryKind parses the name returned by [QueryKind.String].
func ParseQueryKind(s string) (QueryKind, error) {
	for _, k := range []QueryKind{QueryArtists, QueryAlbums, QuerySongs, QuerySearchArtists, QuerySearchAlbums, QuerySearchSongs} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown query kind %q", shared.ErrInvalidQuery, s)
}

// IsSearch reports whether the kind is a text search rather than a favorites listing.
func (k QueryKind) IsSearch() bool {
	return k == QuerySearchArtists || k == QuerySearchAlbums || k == QuerySearchSongs
}

// Search returns the search variant of a favorites kind.
func (k QueryKind) Search() QueryKind {
	switch k {
	case QueryArtists:
		return QuerySearchArtists
	case QueryAlbums:
		return QuerySearchAlbums
	case QuerySongs:
		return QuerySearchSongs
	default:
		return k
	}
}

// entry is the first phase and stage the kind needs.
func (k QueryKind) entry() (Phase, Stage) {
	switch k {
	case QueryArtists, QuerySearchArtists:
		return PhaseCollectArtists, StageArtists
	case QueryAlbums, QuerySearchAlbums:
		return PhaseCollectAlbums, StageAlbums
	default:
		return PhaseCollectSongs, StageSongs
	}
}

// favoritesType is the "type" parameter of the favorites listing.
func (k QueryKind) favoritesType() string {
	switch k {
	case QueryArtists:
		return "artists"
	case QueryAlbums:
		return "albums"
	default:
		return "tracks"
	}
}

// searchPath is the catalog search endpoint for the kind.
func (k QueryKind) searchPath() string {
	switch k {
	case QuerySearchArtists:
		return "artist/search"
	case QuerySearchAlbums:
		return "album/search"
	default:
		return "track/search"
	}
}

// searchLimit is the page size for search kinds. Favorites listings leave it to the server.
func (k QueryKind) searchLimit(cfg shared.EngineConfig) int {
	switch k {
	case QuerySearchArtists:
		return cfg.ArtistsSearchLimit
	case QuerySearchAlbums:
		return cfg.AlbumsSearchLimit
	case QuerySearchSongs:
		return cfg.SongsSearchLimit
	default:
		return 0
	}
}
