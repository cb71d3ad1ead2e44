package tasks

import (
	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/shared"
)

// Stage is one tier of the request pipeline. The declaration order is the flush priority.
type Stage int

const (
	StageArtists Stage = iota
	StageAlbums
	StageArtistAlbums
	StageAlbumSongs
	StageSongs
	StageCovers
	numStages
)

// Stages lists every stage in flush priority order.
var Stages = []Stage{StageArtists, StageAlbums, StageArtistAlbums, StageAlbumSongs, StageSongs, StageCovers}

func (s Stage) String() string {
	switch s {
	case StageArtists:
		return "artists"
	case StageAlbums:
		return "albums"
	case StageArtistAlbums:
		return "artist_albums"
	case StageAlbumSongs:
		return "album_songs"
	case StageSongs:
		return "songs"
	case StageCovers:
		return "covers"
	default:
		return ""
	}
}

// StageCounters is the per-stage bookkeeping. ItemsTotal is the latest server-reported total.
type StageCounters struct {
	RequestsTotal    int `json:"requests_total"`
	RequestsActive   int `json:"requests_active"`
	RequestsReceived int `json:"requests_received"`
	ItemsTotal       int `json:"items_total"`
	ItemsReceived    int `json:"items_received"`
}

// work is one queued request with the parent context it was derived from.
type work struct {
	cursor Cursor
	artist models.Artist
	album  models.Album
	cover  coverJob
}

type coverJob struct {
	url  string
	path string
}

// stageQueue is a FIFO of pending work bounded by a concurrency cap.
type stageQueue struct {
	stage   Stage
	cap     int
	pending []work
	StageCounters
}

func newStageQueue(stage Stage, n int) *stageQueue {
	if n < 1 {
		n = 1
	}
	return &stageQueue{stage: stage, cap: n}
}

func (q *stageQueue) push(w work) {
	q.pending = append(q.pending, w)
	q.RequestsTotal++
}

// take pops the next work item if the cap allows another request and marks it active.
func (q *stageQueue) take() (work, bool) {
	if len(q.pending) == 0 || q.RequestsActive >= q.cap {
		return work{}, false
	}
	w := q.pending[0]
	q.pending[0] = work{}
	q.pending = q.pending[1:]
	q.RequestsActive++
	return w, true
}

// settle records a reply for an issued request. It runs exactly once per request.
func (q *stageQueue) settle() {
	q.RequestsActive--
	q.RequestsReceived++
}

func (q *stageQueue) empty() bool { return len(q.pending) == 0 }

// idle reports whether nothing is queued or in flight.
func (q *stageQueue) idle() bool { return len(q.pending) == 0 && q.RequestsActive <= 0 }

func stageCap(cfg shared.ConcurrencyConfig, s Stage) int {
	switch s {
	case StageArtists:
		return cfg.Artists
	case StageAlbums:
		return cfg.Albums
	case StageArtistAlbums:
		return cfg.ArtistAlbums
	case StageAlbumSongs:
		return cfg.AlbumSongs
	case StageSongs:
		return cfg.Songs
	case StageCovers:
		return cfg.AlbumCovers
	default:
		return 1
	}
}
