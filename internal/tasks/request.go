package tasks

import (
	"context"
	"image"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/services"
	"github.com/desertthunder/qbx/internal/shared"
)

// ImageStore decodes and saves cover images and decides where they go.
type ImageStore interface {
	// CoverFilePath returns where a cover should be saved, or "" to skip it.
	CoverFilePath(source, albumArtist, album, albumID, coverURL string) string
	Supports(mimetype string) bool
	Decode(data []byte) (image.Image, error)
	Save(img image.Image, path string) error
}

// RequestOpts configures a single query.
type RequestOpts struct {
	QueryID    int
	Kind       QueryKind
	SearchText string
	Config     shared.EngineConfig
	Catalog    services.Catalog
	Images     ImageStore // nil disables covers
	Listener   Listener
	Logger     *log.Logger
}

// reply carries a settled request back to the control goroutine.
type reply struct {
	id     uint64
	resp   *services.APIResponse
	err    error
	handle func(*services.APIResponse, error)
}

// Request owns the whole state of one query.
//
// All state is touched only by the goroutine running [Request.Process]. Transport calls run in
// their own goroutines and hand their results back as replies.
type Request struct {
	id      int
	kind    QueryKind
	search  string
	cfg     shared.EngineConfig
	catalog services.Catalog
	images  ImageStore
	events  Listener
	logger  *log.Logger

	queues       [numStages]*stageQueue
	pager        *pager
	artistAlbums *Registry[string, models.Artist]
	albumSongs   *Registry[string, work]
	covers       *CoverRegistry
	songs        models.SongMap
	errors       []string
	noResults    bool
	phase        Phase
	finished     bool
	results      *Results

	ctx      context.Context
	ticker   *time.Ticker
	inflight map[uint64]context.CancelFunc
	nextID   uint64
	replies  chan reply
	done     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// NewRequest creates a query. Nothing is sent until [Request.Process] runs.
func NewRequest(opts RequestOpts) *Request {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	events := opts.Listener
	if events == nil {
		events = nopListener{}
	}

	r := &Request{
		id:           opts.QueryID,
		kind:         opts.Kind,
		search:       opts.SearchText,
		cfg:          opts.Config,
		catalog:      opts.Catalog,
		images:       opts.Images,
		events:       events,
		logger:       shared.WithLogger(logger, "query", opts.QueryID, "kind", opts.Kind.String()),
		pager:        newPager(),
		artistAlbums: NewRegistry[string, models.Artist](),
		albumSongs:   NewRegistry[string, work](),
		covers:       NewCoverRegistry(),
		songs:        make(models.SongMap),
		inflight:     make(map[uint64]context.CancelFunc),
		replies:      make(chan reply),
		done:         make(chan struct{}),
		quit:         make(chan struct{}),
	}
	for _, s := range Stages {
		r.queues[s] = newStageQueue(s, stageCap(opts.Config.Concurrency, s))
	}
	return r
}

// ID returns the query id.
func (r *Request) ID() int { return r.id }

// Kind returns the query kind.
func (r *Request) Kind() QueryKind { return r.kind }

// Process runs the query until it finishes, ctx is canceled or [Request.Close] is called.
// It returns the results, or nil when the query was torn down first.
func (r *Request) Process(ctx context.Context) *Results {
	r.ctx = ctx
	defer r.teardown()

	r.start()

	for !r.finished {
		select {
		case <-ctx.Done():
			r.logger.Debug("query canceled", "err", ctx.Err())
			return nil
		case <-r.quit:
			r.logger.Debug("query closed")
			return nil
		case <-r.tick():
			r.flush()
		case rep := <-r.replies:
			if r.silent() {
				return nil
			}
			r.deliver(rep)
		}
	}
	return r.results
}

// Close tears the query down from any goroutine. No event is emitted afterwards.
func (r *Request) Close() {
	r.quitOnce.Do(func() { close(r.quit) })
}

// start seeds the entry stage of the query kind.
func (r *Request) start() {
	phase, stage := r.kind.entry()
	r.setPhase(phase)

	switch {
	case r.kind.IsSearch():
		r.status("Searching...")
	case stage == StageArtists:
		r.status("Receiving artists...")
	case stage == StageAlbums:
		r.status("Receiving albums...")
	default:
		r.status("Receiving songs...")
	}
	r.emitProgress(0)

	r.enqueue(stage, work{cursor: Cursor{Limit: r.kind.searchLimit(r.cfg)}})
}

func (r *Request) enqueue(stage Stage, w work) {
	r.queues[stage].push(w)
	r.startTicker()
}

func (r *Request) startTicker() {
	if r.ticker == nil {
		interval := r.cfg.FlushInterval()
		if interval <= 0 {
			interval = 200 * time.Millisecond
		}
		r.ticker = time.NewTicker(interval)
	}
}

func (r *Request) stopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}

// tick returns the ticker channel, or nil while the ticker is stopped.
func (r *Request) tick() <-chan time.Time {
	if r.ticker == nil {
		return nil
	}
	return r.ticker.C
}

// flush drains the first non-empty stage up to its cap. With nothing queued the ticker stops.
func (r *Request) flush() {
	for _, s := range Stages {
		q := r.queues[s]
		if q.empty() {
			continue
		}
		for {
			w, ok := q.take()
			if !ok {
				break
			}
			r.issue(s, w)
		}
		return
	}
	r.stopTicker()
}

// issue starts the transport call for one work item.
func (r *Request) issue(s Stage, w work) {
	switch s {
	case StageArtists:
		r.send(r.listingCall(w.cursor), func(resp *services.APIResponse, err error) { r.handleArtists(w, resp, err) })
	case StageAlbums:
		r.send(r.listingCall(w.cursor), func(resp *services.APIResponse, err error) { r.handleAlbums(StageAlbums, w, resp, err) })
	case StageSongs:
		r.send(r.listingCall(w.cursor), func(resp *services.APIResponse, err error) { r.handleSongs(StageSongs, w, resp, err) })
	case StageArtistAlbums:
		params := []services.Param{services.P("artist_id", w.artist.ID), services.P("extra", "albums")}
		params = appendCursor(params, Cursor{Offset: w.cursor.Offset})
		r.send(r.catalogCall("artist/get", params), func(resp *services.APIResponse, err error) {
			r.handleAlbums(StageArtistAlbums, w, resp, err)
		})
	case StageAlbumSongs:
		params := []services.Param{services.P("album_id", w.album.ID)}
		params = appendCursor(params, Cursor{Offset: w.cursor.Offset})
		r.send(r.catalogCall("album/get", params), func(resp *services.APIResponse, err error) {
			r.handleSongs(StageAlbumSongs, w, resp, err)
		})
	case StageCovers:
		job := w.cover
		r.send(func(ctx context.Context) (*services.APIResponse, error) {
			return r.catalog.Fetch(ctx, job.url)
		}, func(resp *services.APIResponse, err error) { r.handleCover(job, resp, err) })
	}
}

// listingCall builds the favorites or search request for a direct stage.
func (r *Request) listingCall(c Cursor) func(context.Context) (*services.APIResponse, error) {
	if r.kind.IsSearch() {
		params := appendCursor([]services.Param{services.P("query", r.search)}, c)
		return r.catalogCall(r.kind.searchPath(), params)
	}
	params := appendCursor([]services.Param{services.P("type", r.kind.favoritesType())}, c)
	return r.catalogCall("favorite/getUserFavorites", params)
}

func (r *Request) catalogCall(path string, params []services.Param) func(context.Context) (*services.APIResponse, error) {
	return func(ctx context.Context) (*services.APIResponse, error) {
		return r.catalog.CreateRequest(ctx, path, params)
	}
}

func appendCursor(params []services.Param, c Cursor) []services.Param {
	if c.Limit > 0 {
		params = append(params, services.P("limit", strconv.Itoa(c.Limit)))
	}
	if c.Offset > 0 {
		params = append(params, services.P("offset", strconv.Itoa(c.Offset)))
	}
	return params
}

// send runs call in its own goroutine with a child context and routes the result back as a reply.
func (r *Request) send(call func(context.Context) (*services.APIResponse, error), handle func(*services.APIResponse, error)) {
	r.nextID++
	id := r.nextID
	ctx, cancel := context.WithCancel(r.ctx)
	r.inflight[id] = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		resp, err := call(ctx)
		select {
		case r.replies <- reply{id: id, resp: resp, err: err, handle: handle}:
		case <-r.done:
		}
	}()
}

// deliver runs the continuation of a reply unless it was detached.
func (r *Request) deliver(rep reply) {
	cancel, ok := r.inflight[rep.id]
	if !ok {
		return
	}
	delete(r.inflight, rep.id)
	cancel()
	rep.handle(rep.resp, rep.err)
}

// teardown aborts and detaches every in-flight request and waits for their goroutines.
func (r *Request) teardown() {
	r.stopTicker()
	for id, cancel := range r.inflight {
		cancel()
		delete(r.inflight, id)
	}
	close(r.done)
	r.wg.Wait()
}

// silent reports whether events must be suppressed because teardown has begun.
func (r *Request) silent() bool {
	if r.ctx != nil && r.ctx.Err() != nil {
		return true
	}
	select {
	case <-r.quit:
		return true
	default:
		return false
	}
}

func (r *Request) setPhase(p Phase) {
	r.phase = p
	r.logger.Debug("phase", "phase", p.String())
	if pl, ok := r.events.(PhaseListener); ok && !r.silent() {
		pl.PhaseChanged(r.id, p)
	}
}

func (r *Request) status(text string) {
	if r.silent() {
		return
	}
	r.events.StatusChanged(r.id, text)
}

func (r *Request) emitProgress(percent int) {
	if r.silent() {
		return
	}
	r.events.ProgressChanged(r.id, percent)
}

// progress emits round(received/total*100) when total is known.
func (r *Request) progress(received, total int) {
	if total <= 0 {
		return
	}
	r.emitProgress(percentOf(received, total))
}

func percentOf(received, total int) int {
	p := int(math.Round(float64(received) / float64(total) * 100))
	return max(0, min(100, p))
}

// fail appends a human-readable error to the query's error log.
func (r *Request) fail(msg string, kv ...any) {
	r.errors = append(r.errors, msg)
	r.logger.Error(msg, kv...)
}
