package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/shared"
	"github.com/desertthunder/qbx/internal/tasks"
)

var (
	_ list.Item = kindItem{}
	_ list.Item = songItem{}
)

// menuKinds is the order of entries in [MenuView].
var menuKinds = []tasks.QueryKind{
	tasks.QueryArtists,
	tasks.QueryAlbums,
	tasks.QuerySongs,
	tasks.QuerySearchArtists,
	tasks.QuerySearchAlbums,
	tasks.QuerySearchSongs,
}

// kindItem wraps [tasks.QueryKind] to implement [list.Item].
type kindItem struct {
	kind tasks.QueryKind
}

func (i kindItem) noun() string {
	return strings.TrimPrefix(i.kind.String(), "search_")
}

func (i kindItem) FilterValue() string { return i.Title() }
func (i kindItem) Title() string {
	if i.kind.IsSearch() {
		return "Search " + i.noun()
	}
	return "Favorite " + i.noun()
}
func (i kindItem) Description() string {
	switch i.kind {
	case tasks.QueryArtists:
		return "Every song on every album of your favorite artists"
	case tasks.QueryAlbums:
		return "Every song on your favorite albums"
	case tasks.QuerySongs:
		return "Your favorite songs"
	default:
		return fmt.Sprintf("Songs from the %s matching a search", i.noun())
	}
}

// songItem wraps [models.Song] to implement [list.Item].
type songItem struct {
	song models.Song
}

func (i songItem) FilterValue() string { return i.song.Artist + " " + i.song.Title }
func (i songItem) Title() string       { return i.song.Title }
func (i songItem) Description() string {
	desc := i.song.Artist
	if i.song.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.song.Album)
	}
	return fmt.Sprintf("%s • %s", desc, shared.FormatDuration(i.song.Length))
}

func kindItems() []list.Item {
	items := make([]list.Item, len(menuKinds))
	for i, k := range menuKinds {
		items[i] = kindItem{kind: k}
	}
	return items
}

func songItems(songs []models.Song) []list.Item {
	items := make([]list.Item, len(songs))
	for i, s := range songs {
		items[i] = songItem{song: s}
	}
	return items
}
