// package formatter renders query results and query history (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/shared"
	"github.com/desertthunder/qbx/internal/tasks"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// Format names an output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// ParseFormat accepts a format name or a common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return "." + string(f)
}

// Title describes a query for headings, e.g. "Favorite albums" or `Songs matching "bird"`.
func Title(res *tasks.Results) string {
	switch res.Kind {
	case tasks.QueryArtists, tasks.QueryAlbums, tasks.QuerySongs:
		return "Favorite " + res.Kind.String()
	default:
		noun := strings.TrimPrefix(res.Kind.String(), "search_")
		if noun == "" {
			return "Query " + strconv.Itoa(res.QueryID)
		}
		return fmt.Sprintf("%s%s matching %q", strings.ToUpper(noun[:1]), noun[1:], res.SearchText)
	}
}

// Summary is the one-line description printed after a query.
func Summary(res *tasks.Results) string {
	switch res.Outcome {
	case tasks.OutcomeNoMatch:
		if res.Summary != "" {
			return res.Summary
		}
		return "Nothing found."
	case tasks.OutcomeUnknownError, tasks.OutcomeRejected:
		return res.Summary
	}

	albums := make(map[string]struct{})
	var length time.Duration
	for _, s := range res.Songs {
		if s.AlbumID != "" {
			albums[s.AlbumID] = struct{}{}
		}
		length += s.Length
	}

	line := fmt.Sprintf("%s songs", humanize.Comma(int64(len(res.Songs))))
	if len(albums) > 0 {
		line += " from " + english.Plural(len(albums), "album", "")
	}
	line += fmt.Sprintf(" (%s)", shared.FormatDuration(length))
	if len(res.Errors) > 0 {
		line += ", " + english.Plural(len(res.Errors), "error", "")
	}
	return line
}

// ExportToCSV converts songs to CSV with columns: ID, Title, Artist, Album Artist, Album, Disc, Track, Duration, URL, Cover
func ExportToCSV(songs []models.Song) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album Artist", "Album", "Disc", "Track", "Duration", "URL", "Cover"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, song := range songs {
		record := []string{
			song.SongID,
			song.Title,
			song.Artist,
			song.AlbumArtist,
			song.Album,
			strconv.Itoa(song.Disc),
			strconv.Itoa(song.Track),
			shared.FormatDuration(song.Length),
			song.URL,
			song.ArtAutomatic,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts songs to Markdown, grouped by album, with an optional cover image
func ExportToMarkdown(title string, songs []models.Song, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))

	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	var total time.Duration
	for _, s := range songs {
		total += s.Length
	}
	buf.WriteString(fmt.Sprintf("**Songs**: %s\n", humanize.Comma(int64(len(songs)))))
	buf.WriteString(fmt.Sprintf("**Length**: %s\n", shared.FormatDuration(total)))

	album := "\x00"
	for _, song := range songs {
		if song.Album != album {
			album = song.Album
			heading := song.Album
			if heading == "" {
				heading = "Singles"
			}
			if artist := song.EffectiveAlbumArtist(); artist != "" {
				heading = fmt.Sprintf("%s - %s", artist, heading)
			}
			buf.WriteString(fmt.Sprintf("\n## %s\n\n", heading))
		}

		number := strconv.Itoa(song.Track)
		if song.Disc > 0 {
			number = fmt.Sprintf("%d.%02d", song.Disc, song.Track)
		}
		buf.WriteString(fmt.Sprintf("%s. %s - %s [%s]\n", number, song.Artist, song.Title, shared.FormatDuration(song.Length)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts songs to plain text
func ExportToText(title string, songs []models.Song) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("%s\n", title))
	buf.WriteString(fmt.Sprintf("Songs: %d\n\n", len(songs)))

	for i, song := range songs {
		albumPart := ""
		if song.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", song.Album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, song.Artist, song.Title, albumPart, shared.FormatDuration(song.Length)))
	}

	return buf.Bytes(), nil
}

// ToJSON renders results with songs as a sorted array instead of a map.
func ToJSON(res *tasks.Results) ([]byte, error) {
	out := struct {
		QueryID    int           `json:"query_id"`
		Kind       string        `json:"kind"`
		SearchText string        `json:"search_text,omitempty"`
		Outcome    string        `json:"outcome"`
		Summary    string        `json:"summary,omitempty"`
		Errors     []string      `json:"errors,omitempty"`
		Songs      []models.Song `json:"songs"`
	}{
		QueryID:    res.QueryID,
		Kind:       res.Kind.String(),
		SearchText: res.SearchText,
		Outcome:    res.Outcome.String(),
		Summary:    res.Summary,
		Errors:     res.Errors,
		Songs:      res.Songs.Sorted(),
	}
	if out.Songs == nil {
		out.Songs = []models.Song{}
	}
	return shared.MarshalJSON(out, true)
}

// Render produces the results in the given format.
func Render(format Format, res *tasks.Results) ([]byte, error) {
	songs := res.Songs.Sorted()
	switch format {
	case FormatJSON:
		return ToJSON(res)
	case FormatCSV:
		return ExportToCSV(songs)
	case FormatMarkdown:
		return ExportToMarkdown(Title(res), songs, localCover(songs))
	case FormatText:
		return ExportToText(Title(res), songs)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// DefaultFilename names an export of res as {kind}_{query id}{ext}.
func DefaultFilename(format Format, res *tasks.Results) string {
	return fmt.Sprintf("%s_%d%s", res.Kind.String(), res.QueryID, format.Ext())
}

// WriteExport renders results to path, defaulting to [DefaultFilename]. It returns the path written.
func WriteExport(format Format, res *tasks.Results, path string) (string, error) {
	if path == "" {
		path = DefaultFilename(format, res)
	}

	data, err := Render(format, res)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

// RunsToText renders the query history, newest first, with relative start times.
func RunsToText(runs []*models.QueryRun) []byte {
	var buf bytes.Buffer
	for _, run := range runs {
		what := run.Kind()
		if run.SearchText() != "" {
			what += fmt.Sprintf(" %q", run.SearchText())
		}

		status := english.Plural(run.Songs(), "song", "")
		switch {
		case run.NoResults():
			status = "no match"
		case run.ErrorText() != "":
			status += ", " + firstLine(run.ErrorText())
		}

		buf.WriteString(fmt.Sprintf("#%d %s: %s (%s, %s)\n",
			run.QueryID(), what, status, humanize.Time(run.StartedAt()), run.Duration().Round(time.Millisecond)))
	}
	return buf.Bytes()
}

// localCover returns the file path of the first saved cover among songs, if any.
func localCover(songs []models.Song) string {
	for _, s := range songs {
		if !s.HasLocalArt() {
			continue
		}
		if u, err := url.Parse(s.ArtAutomatic); err == nil {
			return u.Path
		}
	}
	return ""
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
