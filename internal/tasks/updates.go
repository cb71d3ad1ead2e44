package tasks

import (
	"sync"

	"github.com/desertthunder/qbx/internal/models"
)

// Phase is the state of a query's collection state machine.
type Phase int

const (
	PhaseCollectArtists Phase = iota
	PhaseCollectAlbums
	PhaseCollectSongs
	PhaseCollectCovers
	PhaseFinalizing
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseCollectArtists:
		return "collect_artists"
	case PhaseCollectAlbums:
		return "collect_albums"
	case PhaseCollectSongs:
		return "collect_songs"
	case PhaseCollectCovers:
		return "collect_covers"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseFinished:
		return "finished"
	default:
		return ""
	}
}

// Listener receives the events of running queries, keyed by query id.
//
// Calls happen on the query's control goroutine and must not block for long.
type Listener interface {
	StatusChanged(queryID int, text string)
	ProgressChanged(queryID int, percent int)
	// ResultsReady fires exactly once per query and is always the last event.
	ResultsReady(queryID int, results *Results)
}

// PhaseListener is optionally implemented by a [Listener] that wants state machine transitions.
type PhaseListener interface {
	PhaseChanged(queryID int, phase Phase)
}

// Outcome classifies how a query ended.
type Outcome int

const (
	// OutcomeSongs carries collected songs, possibly with an error summary.
	OutcomeSongs Outcome = iota
	// OutcomeNoMatch means the server legitimately returned nothing.
	OutcomeNoMatch
	// OutcomeUnknownError means nothing was collected and nothing was logged.
	OutcomeUnknownError
	// OutcomeRejected means the query never started (missing credentials).
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSongs:
		return "songs"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeUnknownError:
		return "unknown_error"
	case OutcomeRejected:
		return "rejected"
	default:
		return ""
	}
}

// Results is the single consolidated result of a query.
type Results struct {
	QueryID    int                     `json:"query_id"`
	Kind       QueryKind               `json:"kind"`
	SearchText string                  `json:"search_text,omitempty"`
	Outcome    Outcome                 `json:"outcome"`
	Songs      models.SongMap          `json:"songs"`
	Errors     []string                `json:"errors,omitempty"`
	Summary    string                  `json:"summary,omitempty"`
	Counters   map[Stage]StageCounters `json:"-"`
}

// ProgressUpdate represents a progress event during a running query.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	QueryID int    // Query the event belongs to
	Phase   Phase  // State machine phase when the event fired
	Step    int    // Percent complete within the phase
	Total   int    // Always 100 for progress events, 0 otherwise
	Message string // Human-readable status text
	Data    any    // *Results on the final update
}

// Done reports whether this is the final update of its query.
func (u ProgressUpdate) Done() bool {
	_, ok := u.Data.(*Results)
	return ok
}

// ChannelListener forwards events to a channel without blocking.
//
// Status and phase changes are remembered per query so every update carries the latest of both.
// Updates are dropped when the channel is full. It is safe to share between concurrent queries.
type ChannelListener struct {
	ch      chan<- ProgressUpdate
	mu      sync.Mutex
	phase   map[int]Phase
	message map[int]string
}

// NewChannelListener creates a listener sending to ch. A nil ch discards everything.
func NewChannelListener(ch chan<- ProgressUpdate) *ChannelListener {
	return &ChannelListener{ch: ch, phase: make(map[int]Phase), message: make(map[int]string)}
}

func (c *ChannelListener) PhaseChanged(queryID int, phase Phase) {
	c.mu.Lock()
	c.phase[queryID] = phase
	c.mu.Unlock()
}

func (c *ChannelListener) StatusChanged(queryID int, text string) {
	c.mu.Lock()
	c.message[queryID] = text
	update := ProgressUpdate{QueryID: queryID, Phase: c.phase[queryID], Message: text}
	c.mu.Unlock()
	c.send(update)
}

func (c *ChannelListener) ProgressChanged(queryID int, percent int) {
	c.mu.Lock()
	update := ProgressUpdate{QueryID: queryID, Phase: c.phase[queryID], Step: percent, Total: 100, Message: c.message[queryID]}
	c.mu.Unlock()
	c.send(update)
}

func (c *ChannelListener) ResultsReady(queryID int, results *Results) {
	c.mu.Lock()
	delete(c.phase, queryID)
	delete(c.message, queryID)
	c.mu.Unlock()
	c.send(ProgressUpdate{QueryID: queryID, Phase: PhaseFinished, Step: 100, Total: 100, Message: results.Summary, Data: results})
}

// send delivers update through the channel without blocking.
func (c *ChannelListener) send(update ProgressUpdate) {
	if c.ch == nil {
		return
	}
	select {
	case c.ch <- update:
	default:
	}
}

// Listeners fans events out to several listeners in order.
type Listeners []Listener

func (ls Listeners) PhaseChanged(queryID int, phase Phase) {
	for _, l := range ls {
		if pl, ok := l.(PhaseListener); ok {
			pl.PhaseChanged(queryID, phase)
		}
	}
}

func (ls Listeners) StatusChanged(queryID int, text string) {
	for _, l := range ls {
		l.StatusChanged(queryID, text)
	}
}

func (ls Listeners) ProgressChanged(queryID int, percent int) {
	for _, l := range ls {
		l.ProgressChanged(queryID, percent)
	}
}

func (ls Listeners) ResultsReady(queryID int, results *Results) {
	for _, l := range ls {
		l.ResultsReady(queryID, results)
	}
}

// nopListener discards every event.
type nopListener struct{}

func (nopListener) StatusChanged(int, string)  {}
func (nopListener) ProgressChanged(int, int)   {}
func (nopListener) ResultsReady(int, *Results) {}
