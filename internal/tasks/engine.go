package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/services"
	"github.com/desertthunder/qbx/internal/shared"
	"golang.org/x/sync/errgroup"
)

// SongCacher persists the songs of finished queries.
type SongCacher interface {
	CacheSongs(songs []models.Song) error
}

// RunRecorder stores a record of every query the engine ran.
type RunRecorder interface {
	RecordRun(run RunRecord) error
}

// RunRecord summarizes one query for [RunRecorder].
type RunRecord struct {
	QueryID    int
	Kind       QueryKind
	SearchText string
	Outcome    Outcome
	Songs      int
	Summary    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Session exposes the credentials the engine checks before starting a query.
type Session interface {
	AppID() string
	Authenticated() bool
}

// EngineOpts holds the engine's collaborators. Cache and Recorder are optional.
type EngineOpts struct {
	Config   shared.EngineConfig
	Catalog  services.Catalog
	Session  Session
	Images   ImageStore
	Listener Listener
	Logger   *log.Logger
	Cache    SongCacher
	Recorder RunRecorder
}

// Engine starts queries with increasing ids.
//
// There is one slot per favorites kind and a single slot shared by all searches. Starting a
// query in an occupied slot tears down the query that held it.
type Engine struct {
	opts   EngineOpts
	logger *log.Logger

	mu      sync.Mutex
	nextID  int
	running map[string]*Request
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	opts.Logger = logger
	return &Engine{
		opts:    opts,
		logger:  logger,
		running: make(map[string]*Request),
	}
}

// Favorites collects the user's favorite artists, albums or songs as songs.
func (e *Engine) Favorites(ctx context.Context, kind QueryKind) (*Results, error) {
	if kind.IsSearch() || kind.String() == "" {
		return nil, fmt.Errorf("%w: %v is not a favorites query", shared.ErrInvalidQuery, kind)
	}
	return e.run(ctx, kind, "")
}

// Search collects songs for artists, albums or songs matching text. A favorites kind is
// converted to its search variant.
func (e *Engine) Search(ctx context.Context, kind QueryKind, text string) (*Results, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty search text", shared.ErrInvalidQuery)
	}
	kind = kind.Search()
	if !kind.IsSearch() {
		return nil, fmt.Errorf("%w: %v is not a search query", shared.ErrInvalidQuery, kind)
	}
	return e.run(ctx, kind, text)
}

// FavoritesAll runs the three favorites queries concurrently. The first error cancels the others.
func (e *Engine) FavoritesAll(ctx context.Context) (map[QueryKind]*Results, error) {
	var mu sync.Mutex
	all := make(map[QueryKind]*Results, 3)

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range []QueryKind{QueryArtists, QueryAlbums, QuerySongs} {
		g.Go(func() error {
			res, err := e.Favorites(gctx, kind)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			mu.Lock()
			all[kind] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return all, err
	}
	return all, nil
}

// Running returns the number of queries currently in progress.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// CancelAll tears down every running query.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for slot, req := range e.running {
		req.Close()
		delete(e.running, slot)
	}
}

func slotFor(kind QueryKind) string {
	if kind.IsSearch() {
		return "search"
	}
	return kind.String()
}

func (e *Engine) nextQueryID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	return e.nextID
}

// claim puts req in its slot and tears down the previous occupant.
func (e *Engine) claim(slot string, req *Request) {
	e.mu.Lock()
	prev := e.running[slot]
	e.running[slot] = req
	e.mu.Unlock()
	if prev != nil {
		e.logger.Debug("replacing running query", "slot", slot, "previous", prev.ID(), "query", req.ID())
		prev.Close()
	}
}

func (e *Engine) release(slot string, req *Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[slot] == req {
		delete(e.running, slot)
	}
}

func (e *Engine) run(ctx context.Context, kind QueryKind, text string) (*Results, error) {
	id := e.nextQueryID()
	started := time.Now()

	if err := e.preflight(kind); err != nil {
		res := &Results{QueryID: id, Kind: kind, SearchText: text, Outcome: OutcomeRejected, Songs: models.SongMap{}}
		switch {
		case errors.Is(err, shared.ErrMissingAppID):
			res.Summary = "Missing app ID."
		default:
			res.Summary = "Not authenticated."
		}
		if e.opts.Listener != nil {
			e.opts.Listener.ResultsReady(id, res)
		}
		e.record(res, started)
		return res, err
	}

	req := NewRequest(RequestOpts{
		QueryID:    id,
		Kind:       kind,
		SearchText: text,
		Config:     e.opts.Config,
		Catalog:    e.opts.Catalog,
		Images:     e.opts.Images,
		Listener:   e.opts.Listener,
		Logger:     e.logger,
	})

	slot := slotFor(kind)
	e.claim(slot, req)
	res := req.Process(ctx)
	e.release(slot, req)

	if res == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("query %d: %w", id, err)
		}
		return nil, fmt.Errorf("query %d: %w", id, context.Canceled)
	}

	e.cache(res)
	e.record(res, started)
	return res, nil
}

func (e *Engine) preflight(kind QueryKind) error {
	if e.opts.Session == nil {
		return nil
	}
	if e.opts.Session.AppID() == "" {
		return shared.ErrMissingAppID
	}
	if !kind.IsSearch() && !e.opts.Session.Authenticated() {
		return shared.ErrNotAuthenticated
	}
	return nil
}

// cache stores the songs silently; failures are logged and ignored.
func (e *Engine) cache(res *Results) {
	if e.opts.Cache == nil || len(res.Songs) == 0 {
		return
	}
	if err := e.opts.Cache.CacheSongs(res.Songs.Sorted()); err != nil {
		e.logger.Warn("failed to cache songs", "query", res.QueryID, "err", err)
	}
}

func (e *Engine) record(res *Results, started time.Time) {
	if e.opts.Recorder == nil {
		return
	}
	run := RunRecord{
		QueryID:    res.QueryID,
		Kind:       res.Kind,
		SearchText: res.SearchText,
		Outcome:    res.Outcome,
		Songs:      len(res.Songs),
		Summary:    res.Summary,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err := e.opts.Recorder.RecordRun(run); err != nil {
		e.logger.Warn("failed to record query run", "query", res.QueryID, "err", err)
	}
}
