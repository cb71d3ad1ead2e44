package tasks

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize/english"
)

// finishCheck runs after every settled request. It advances the state machine and, the first
// time the whole query is quiescent, emits the results.
func (r *Request) finishCheck() {
	if r.finished {
		return
	}
	r.advance()
	if r.phase == PhaseFinalizing && r.quiescent() {
		r.finish()
	}
}

// idle reports whether every listed stage has nothing queued or in flight.
func (r *Request) idle(stages ...Stage) bool {
	for _, s := range stages {
		if !r.queues[s].idle() {
			return false
		}
	}
	return true
}

// quiescent is the completion predicate: no queued work, no active requests and no pending child work.
func (r *Request) quiescent() bool {
	return r.idle(Stages...) &&
		r.artistAlbums.Len() == 0 &&
		r.albumSongs.Len() == 0 &&
		r.covers.Len() == 0
}

// advance moves through every phase whose guard holds. Child work is released here and only here,
// in one batch, once the stages that produce it are exhausted.
func (r *Request) advance() {
	for {
		switch r.phase {
		case PhaseCollectArtists:
			if !r.idle(StageArtists) {
				return
			}
			r.setPhase(PhaseCollectAlbums)
			for _, artist := range r.artistAlbums.Drain() {
				r.enqueue(StageArtistAlbums, work{artist: artist})
			}
			if n := r.queues[StageArtistAlbums].RequestsTotal; n > 0 {
				r.status(fmt.Sprintf("Receiving albums for %s...", english.Plural(n, "artist", "")))
				r.emitProgress(0)
			}

		case PhaseCollectAlbums:
			if !r.idle(StageArtists, StageAlbums, StageArtistAlbums) {
				return
			}
			r.setPhase(PhaseCollectSongs)
			for _, w := range r.albumSongs.Drain() {
				r.enqueue(StageAlbumSongs, w)
			}
			if n := r.queues[StageAlbumSongs].RequestsTotal; n > 0 {
				r.status(fmt.Sprintf("Receiving songs for %s...", english.Plural(n, "album", "")))
				r.emitProgress(0)
			}

		case PhaseCollectSongs:
			if !r.idle(StageArtists, StageAlbums, StageArtistAlbums, StageAlbumSongs, StageSongs) {
				return
			}
			r.setPhase(PhaseCollectCovers)
			if r.wantCovers() {
				r.queueCovers()
			}

		case PhaseCollectCovers:
			if !r.idle(StageCovers) || r.covers.Len() > 0 {
				return
			}
			r.setPhase(PhaseFinalizing)

		default:
			return
		}
	}
}

// wantCovers reports whether this query downloads album covers.
func (r *Request) wantCovers() bool {
	return r.cfg.DownloadAlbumCovers && !r.kind.IsSearch() && r.images != nil
}

// finish freezes the query and emits the results exactly once.
func (r *Request) finish() {
	if r.finished {
		return
	}
	r.stopTicker()
	r.finished = true

	res := &Results{
		QueryID:    r.id,
		Kind:       r.kind,
		SearchText: r.search,
		Songs:      r.songs,
		Errors:     append([]string(nil), r.errors...),
		Counters:   make(map[Stage]StageCounters, len(Stages)),
	}
	for _, s := range Stages {
		res.Counters[s] = r.queues[s].StageCounters
	}

	switch {
	case r.noResults && len(r.songs) == 0:
		res.Outcome = OutcomeNoMatch
		if r.kind.IsSearch() {
			res.Summary = "No match."
		}
	case len(r.songs) == 0 && len(r.errors) == 0:
		res.Outcome = OutcomeUnknownError
		res.Summary = "Unknown error"
	default:
		res.Outcome = OutcomeSongs
		res.Summary = renderErrors(r.errors)
	}

	r.results = res
	r.setPhase(PhaseFinished)
	r.logger.Info("query finished", "outcome", res.Outcome.String(), "songs", len(res.Songs), "errors", len(res.Errors))
	if !r.silent() {
		r.events.ResultsReady(r.id, res)
	}
}

// renderErrors joins the error log into the user-visible summary.
func renderErrors(errs []string) string {
	return strings.Join(errs, "\n")
}
