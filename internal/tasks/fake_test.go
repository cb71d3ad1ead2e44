package tasks

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qbx/internal/services"
	"github.com/desertthunder/qbx/internal/shared"
	tu "github.com/desertthunder/qbx/internal/testing"
)

// route is a scripted catalog reply.
type route struct {
	status      int
	body        []byte
	contentType string
	err         error
	block       bool
}

// fakeCatalog answers requests from a table keyed by path and ordered params, or by URL for fetches.
type fakeCatalog struct {
	mu     sync.Mutex
	routes map[string]route
	calls  map[string]int
	order  []string
	active int
	peak   int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{routes: make(map[string]route), calls: make(map[string]int)}
}

func callKey(path string, params []services.Param) string {
	var b strings.Builder
	b.WriteString(path)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.Key + "=" + p.Value)
	}
	return b.String()
}

func (f *fakeCatalog) set(key string, r route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key] = r
}

// on scripts a 200 JSON reply built from v.
func (f *fakeCatalog) on(t *testing.T, key string, v any) {
	t.Helper()
	f.set(key, route{status: http.StatusOK, body: []byte(tu.MustJSON(t, v)), contentType: "application/json"})
}

func (f *fakeCatalog) onRaw(key string, status int, body string) {
	f.set(key, route{status: status, body: []byte(body), contentType: "application/json"})
}

func (f *fakeCatalog) onErr(key string, err error) {
	f.set(key, route{err: err})
}

// onBlock makes key hang until its context is canceled.
func (f *fakeCatalog) onBlock(key string) {
	f.set(key, route{block: true})
}

func (f *fakeCatalog) onImage(url, contentType string, data []byte) {
	f.set(url, route{status: http.StatusOK, body: data, contentType: contentType})
}

func (f *fakeCatalog) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeCatalog) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *fakeCatalog) maxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func (f *fakeCatalog) CreateRequest(ctx context.Context, path string, params []services.Param) (*services.APIResponse, error) {
	return f.serve(ctx, callKey(path, params))
}

func (f *fakeCatalog) Fetch(ctx context.Context, rawURL string) (*services.APIResponse, error) {
	return f.serve(ctx, rawURL)
}

func (f *fakeCatalog) serve(ctx context.Context, key string) (*services.APIResponse, error) {
	f.mu.Lock()
	f.calls[key]++
	f.order = append(f.order, key)
	f.active++
	f.peak = max(f.peak, f.active)
	r, ok := f.routes[key]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if !ok {
		return &services.APIResponse{
			StatusCode: http.StatusNotFound,
			Headers:    http.Header{"Content-Type": {"application/json"}},
			Body:       []byte(`{"status":"error","code":404,"message":"No route for ` + key + `"}`),
			IsJSON:     true,
		}, nil
	}
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	// A short pause lets concurrent requests overlap so the caps are observable.
	select {
	case <-time.After(time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &services.APIResponse{
		StatusCode: r.status,
		Headers:    http.Header{"Content-Type": {r.contentType}},
		Body:       r.body,
		IsJSON:     r.contentType == "application/json",
	}, nil
}

// recorder is a Listener that keeps every event.
type recorder struct {
	mu       sync.Mutex
	statuses []string
	progress []int
	phases   []Phase
	results  []*Results
}

func (r *recorder) StatusChanged(_ int, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
}

func (r *recorder) ProgressChanged(_ int, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, percent)
}

func (r *recorder) PhaseChanged(_ int, phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phase)
}

func (r *recorder) ResultsReady(_ int, results *Results) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, results)
}

func (r *recorder) events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses) + len(r.progress) + len(r.results)
}

func (r *recorder) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recorder) hasStatus(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s == text {
			return true
		}
	}
	return false
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func testConfig() shared.EngineConfig {
	return shared.EngineConfig{
		Concurrency: shared.ConcurrencyConfig{
			Artists: 3, Albums: 3, Songs: 3, ArtistAlbums: 3, AlbumSongs: 3, AlbumCovers: 1,
		},
		FlushIntervalMS:    1,
		ArtistsSearchLimit: 4,
		AlbumsSearchLimit:  10,
		SongsSearchLimit:   10,
		URLScheme:          "qobuz",
	}
}

// runQuery processes one query to completion and fails the test if it was torn down.
func runQuery(t *testing.T, cat services.Catalog, kind QueryKind, text string, cfg shared.EngineConfig, images ImageStore) (*Results, *recorder) {
	t.Helper()
	rec := &recorder{}
	req := NewRequest(RequestOpts{
		QueryID:    1,
		Kind:       kind,
		SearchText: text,
		Config:     cfg,
		Catalog:    cat,
		Images:     images,
		Listener:   rec,
		Logger:     quietLogger(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := req.Process(ctx)
	if res == nil {
		t.Fatalf("query %v did not finish", kind)
	}
	return res, rec
}

type jm = map[string]any

func listing(key string, offset, limit, total int, items ...any) jm {
	if items == nil {
		items = []any{}
	}
	return jm{key: jm{"offset": offset, "limit": limit, "total": total, "items": items}}
}

func artistItem(id, name string) jm {
	return jm{"id": id, "name": name}
}

func albumItem(id, title, artistID, artistName string) jm {
	return jm{"id": id, "title": title, "artist": artistItem(artistID, artistName)}
}

func trackItem(id, title string, track, disc int) jm {
	return jm{
		"id":           id,
		"title":        title,
		"track_number": track,
		"media_number": disc,
		"duration":     180,
		"copyright":    "(P) Label",
		"streamable":   true,
	}
}

// artistReply is an artist/get reply with an albums container.
func artistReply(id, name string, offset, limit, total int, albums ...any) jm {
	r := listing("albums", offset, limit, total, albums...)
	r["id"] = id
	r["name"] = name
	return r
}

// albumReply is an album/get reply with a tracks container.
func albumReply(id, title, artistID, artistName, cover string, offset, limit, total int, tracks ...any) jm {
	r := listing("tracks", offset, limit, total, tracks...)
	r["id"] = id
	r["title"] = title
	r["artist"] = artistItem(artistID, artistName)
	if cover != "" {
		r["image"] = jm{"large": cover}
	}
	return r
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}
