package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/qbx/internal/covers"
	"github.com/desertthunder/qbx/internal/services"
	tu "github.com/desertthunder/qbx/internal/testing"
)

const (
	favTracks  = "favorite/getUserFavorites?type=tracks"
	favAlbums  = "favorite/getUserFavorites?type=albums"
	favArtists = "favorite/getUserFavorites?type=artists"
)

func tracks(ids ...string) []any {
	items := make([]any, 0, len(ids))
	for i, id := range ids {
		items = append(items, trackItem(id, "Track "+id, i+1, 1))
	}
	return items
}

func TestRequestDirectSongs(t *testing.T) {
	t.Run("Empty First Page Is No Match", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.on(t, favTracks, listing("tracks", 0, 0, 0))

		res, rec := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if res.Outcome != OutcomeNoMatch {
			t.Errorf("expected no match, got %v", res.Outcome)
		}
		if len(res.Songs) != 0 || len(res.Errors) != 0 || res.Summary != "" {
			t.Errorf("expected empty results, got %+v", res)
		}
		if rec.resultCount() != 1 {
			t.Errorf("expected exactly one result event, got %d", rec.resultCount())
		}
	})

	t.Run("Malformed Item Is Skipped", func(t *testing.T) {
		items := tracks("1", "2", "3", "4")
		broken := trackItem("5", "Broken", 5, 1)
		delete(broken, "id")
		items = append(items, broken)

		cat := newFakeCatalog()
		cat.on(t, favTracks, listing("tracks", 0, 0, 5, items...))

		res, _ := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if len(res.Songs) != 4 {
			t.Errorf("expected 4 songs, got %d", len(res.Songs))
		}
		if len(res.Errors) != 1 || res.Errors[0] != "Invalid Json reply, track is missing one or more values." {
			t.Errorf("expected one item error, got %v", res.Errors)
		}
		if res.Outcome != OutcomeSongs || res.Summary != res.Errors[0] {
			t.Errorf("unexpected outcome %v with summary %q", res.Outcome, res.Summary)
		}
		if cat.total() != 1 {
			t.Errorf("expected a single page request, got %d", cat.total())
		}
	})

	t.Run("Two Pages", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.on(t, favTracks, listing("tracks", 0, 0, 10, tracks("1", "2", "3", "4", "5")...))
		cat.on(t, favTracks+"&offset=5", listing("tracks", 5, 0, 10, tracks("6", "7", "8", "9", "10")...))

		res, rec := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if len(res.Songs) != 10 {
			t.Errorf("expected 10 songs, got %d", len(res.Songs))
		}
		if cat.total() != 2 {
			t.Errorf("expected exactly two page requests, got %d", cat.total())
		}
		if cat.count(favTracks+"&offset=10") != 0 {
			t.Error("expected no request past total")
		}
		if len(res.Errors) != 0 {
			t.Errorf("unexpected errors %v", res.Errors)
		}
		if last := rec.progress[len(rec.progress)-1]; last != 100 {
			t.Errorf("expected final progress 100, got %d", last)
		}
		if got := res.Counters[StageSongs]; got.RequestsTotal != 2 || got.ItemsReceived != 10 || got.ItemsTotal != 10 {
			t.Errorf("unexpected counters %+v", got)
		}
	})

	t.Run("Offset Mismatch Stops Paging", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.on(t, favTracks, listing("tracks", 5, 0, 10, tracks("1", "2", "3", "4", "5")...))

		res, _ := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if cat.total() != 1 {
			t.Errorf("expected no follow-up page, got %d requests", cat.total())
		}
		if len(res.Songs) != 0 {
			t.Errorf("expected the mismatched page dropped, got %d songs", len(res.Songs))
		}
		if !strings.HasPrefix(res.Summary, "Offset returned does not match offset requested!") {
			t.Errorf("unexpected summary %q", res.Summary)
		}
		if c := res.Counters[StageSongs]; c.RequestsActive != 0 || c.RequestsReceived != 1 {
			t.Errorf("expected the request settled, got %+v", c)
		}
	})

	t.Run("Total Mismatch Drops Page", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.on(t, favTracks, listing("tracks", 0, 0, 10, tracks("1", "2", "3", "4", "5")...))
		cat.on(t, favTracks+"&offset=5", listing("tracks", 5, 0, 12, tracks("6", "7", "8", "9", "10")...))

		res, _ := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if len(res.Songs) != 5 {
			t.Errorf("expected only the first page, got %d songs", len(res.Songs))
		}
		if res.Summary != "Total returned does not match previous total! 12 != 10" {
			t.Errorf("unexpected summary %q", res.Summary)
		}
	})

	t.Run("Transport Error", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.onErr(favTracks, errors.New("connection reset"))

		res, _ := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if res.Summary != "connection reset" {
			t.Errorf("unexpected summary %q", res.Summary)
		}
	})

	t.Run("HTTP Error", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.onRaw(favTracks, 401, `{"status":"error","code":401,"message":"User authentication is required."}`)

		res, _ := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if res.Summary != "User authentication is required. (401)" {
			t.Errorf("unexpected summary %q", res.Summary)
		}
	})

	t.Run("Empty Body Is Unknown Error", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.onRaw(favTracks, 200, "")

		res, _ := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if res.Outcome != OutcomeUnknownError || res.Summary != "Unknown error" {
			t.Errorf("unexpected outcome %v %q", res.Outcome, res.Summary)
		}
	})

	t.Run("Duplicate Song Is Stored Once", func(t *testing.T) {
		first := trackItem("1", "Old Title", 1, 1)
		second := trackItem("1", "New Title", 1, 1)
		cat := newFakeCatalog()
		cat.on(t, favTracks, listing("tracks", 0, 0, 2, first, second))

		res, _ := runQuery(t, cat, QuerySongs, "", testConfig(), nil)

		if len(res.Songs) != 1 || res.Songs["1"].Title != "New Title" {
			t.Errorf("expected last write to win, got %+v", res.Songs)
		}
	})
}

func TestRequestSearch(t *testing.T) {
	t.Run("No Match", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.on(t, "track/search?query=zzz&limit=10", listing("tracks", 0, 10, 0))

		res, rec := runQuery(t, cat, QuerySearchSongs, "zzz", testConfig(), nil)

		if res.Outcome != OutcomeNoMatch || res.Summary != "No match." {
			t.Errorf("unexpected outcome %v %q", res.Outcome, res.Summary)
		}
		if !rec.hasStatus("Searching...") {
			t.Errorf("expected searching status, got %v", rec.statuses)
		}
	})

	t.Run("Single Page Without Covers", func(t *testing.T) {
		item := trackItem("77", "Bird", 3, 1)
		item["album"] = jm{"id": "a7", "title": "Birds", "image": jm{"large": "https://static.example.com/a7.jpg"}}

		cat := newFakeCatalog()
		cat.on(t, "track/search?query=bird&limit=10", listing("tracks", 0, 10, 1, item))

		cfg := testConfig()
		cfg.DownloadAlbumCovers = true
		res, _ := runQuery(t, cat, QuerySearchSongs, "bird", cfg, covers.NewCache(t.TempDir(), quietLogger()))

		if cat.total() != 1 {
			t.Errorf("expected one request and no cover fetch, got %d", cat.total())
		}
		song := res.Songs["77"]
		if song.AlbumID != "a7" || song.Album != "Birds" || song.ArtAutomatic != "https://static.example.com/a7.jpg" {
			t.Errorf("unexpected song %+v", song)
		}
	})

	t.Run("Artists Search Page Size", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.on(t, "artist/search?query=nina&limit=4", listing("artists", 0, 4, 1, artistItem("r1", "Nina")))
		cat.on(t, "artist/get?artist_id=r1&extra=albums", artistReply("r1", "Nina", 0, 0, 1, albumItem("a1", "Live", "r1", "Nina")))
		cat.on(t, "album/get?album_id=a1", albumReply("a1", "Live", "r1", "Nina", "", 0, 0, 1, trackItem("t1", "Intro", 1, 1)))

		res, _ := runQuery(t, cat, QuerySearchArtists, "nina", testConfig(), nil)

		if len(res.Songs) != 1 || len(res.Errors) != 0 {
			t.Errorf("unexpected results %+v", res)
		}
	})
}

func TestRequestArtists(t *testing.T) {
	cat := newFakeCatalog()
	cat.on(t, favArtists, listing("artists", 0, 0, 3,
		artistItem("r1", "One"),
		jm{"item": artistItem("r2", "Two")},
		artistItem("r1", "One"),
	))
	cat.on(t, "artist/get?artist_id=r1&extra=albums", artistReply("r1", "One", 0, 0, 2,
		albumItem("a1", "First", "r1", "One"),
		albumItem("a9", "Compilation", "r99", "Various"),
	))
	cat.on(t, "artist/get?artist_id=r2&extra=albums", artistReply("r2", "Two", 0, 0, 1,
		albumItem("a2", "Second", "r2", "Two"),
	))
	cat.on(t, "album/get?album_id=a1", albumReply("a1", "First", "r1", "One", "", 0, 0, 2,
		trackItem("t1", "Side A", 1, 1),
		trackItem("t2", "Side B", 1, 2),
	))
	cat.on(t, "album/get?album_id=a2", albumReply("a2", "Second", "r2", "Two", "", 0, 0, 1,
		trackItem("t3", "Only", 1, 1),
	))

	res, rec := runQuery(t, cat, QueryArtists, "", testConfig(), nil)

	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if ids := res.Songs.IDs(); !reflect.DeepEqual(ids, []string{"t1", "t2", "t3"}) {
		t.Errorf("unexpected songs %v", ids)
	}
	if cat.count("artist/get?artist_id=r1&extra=albums") != 1 {
		t.Error("expected each artist fetched once")
	}
	if cat.count("album/get?album_id=a9") != 0 {
		t.Error("expected album by another artist skipped")
	}

	t1, t2, t3 := res.Songs["t1"], res.Songs["t2"], res.Songs["t3"]
	if t1.Disc != 1 || t2.Disc != 2 {
		t.Errorf("expected multi-disc numbers kept, got %d and %d", t1.Disc, t2.Disc)
	}
	if t3.Disc != 0 {
		t.Errorf("expected single-disc number cleared, got %d", t3.Disc)
	}
	if t1.Artist != "One" || t1.Album != "First" || t1.AlbumID != "a1" || t1.ArtistID != "r1" {
		t.Errorf("unexpected song %+v", t1)
	}
	if t1.URL != "qobuz:t1" || t1.Length != 180*time.Second || t1.Track != 1 {
		t.Errorf("unexpected song %+v", t1)
	}

	for _, want := range []string{"Receiving artists...", "Receiving albums for 2 artists...", "Receiving songs for 2 albums..."} {
		if !rec.hasStatus(want) {
			t.Errorf("missing status %q in %v", want, rec.statuses)
		}
	}
	wantPhases := []Phase{PhaseCollectArtists, PhaseCollectAlbums, PhaseCollectSongs, PhaseCollectCovers, PhaseFinalizing, PhaseFinished}
	if !reflect.DeepEqual(rec.phases, wantPhases) {
		t.Errorf("expected phases %v, got %v", wantPhases, rec.phases)
	}
}

func TestRequestArtistMismatch(t *testing.T) {
	cat := newFakeCatalog()
	cat.on(t, favArtists, listing("artists", 0, 0, 1, artistItem("r1", "One")))
	cat.on(t, "artist/get?artist_id=r1&extra=albums", artistReply("r5", "Five", 0, 0, 1, albumItem("a5", "Five", "r5", "Five")))

	res, _ := runQuery(t, cat, QueryArtists, "", testConfig(), nil)

	if res.Summary != "Artist ID returned does not match artist ID requested." {
		t.Errorf("unexpected summary %q", res.Summary)
	}
	if cat.count("album/get?album_id=a5") != 0 {
		t.Error("expected no album requests from a mismatched reply")
	}
}

func TestRequestAlbums(t *testing.T) {
	t.Run("Album Ids Deduplicated Across Pages", func(t *testing.T) {
		cat := newFakeCatalog()
		cat.on(t, favAlbums, listing("albums", 0, 0, 3,
			albumItem("a1", "First", "r1", "One"),
			albumItem("a2", "Second", "r1", "One"),
		))
		cat.on(t, favAlbums+"&offset=2", listing("albums", 2, 0, 3, albumItem("a1", "First", "r1", "One")))
		cat.on(t, "album/get?album_id=a1", albumReply("a1", "First", "r1", "One", "", 0, 0, 1, trackItem("t1", "One", 1, 1)))
		cat.on(t, "album/get?album_id=a2", albumReply("a2", "Second", "r1", "One", "", 0, 0, 1, trackItem("t2", "Two", 1, 1)))

		res, _ := runQuery(t, cat, QueryAlbums, "", testConfig(), nil)

		if cat.count("album/get?album_id=a1") != 1 {
			t.Errorf("expected album fetched once, got %d", cat.count("album/get?album_id=a1"))
		}
		if len(res.Songs) != 2 || len(res.Errors) != 0 {
			t.Errorf("unexpected results %+v", res)
		}
	})

	t.Run("Concurrency Cap", func(t *testing.T) {
		cat := newFakeCatalog()
		var albums []any
		for _, id := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
			albums = append(albums, albumItem(id, "Album "+id, "r1", "One"))
			cat.on(t, "album/get?album_id="+id, albumReply(id, "Album "+id, "r1", "One", "", 0, 0, 1, trackItem("t"+id, "Track", 1, 1)))
		}
		cat.on(t, favAlbums, listing("albums", 0, 0, 6, albums...))

		cfg := testConfig()
		cfg.Concurrency.AlbumSongs = 2
		res, _ := runQuery(t, cat, QueryAlbums, "", cfg, nil)

		if len(res.Songs) != 6 {
			t.Errorf("expected 6 songs, got %d", len(res.Songs))
		}
		if peak := cat.maxActive(); peak > 2 {
			t.Errorf("expected at most 2 requests in flight, got %d", peak)
		}
	})

	t.Run("Album Artist Differs From Track Artist", func(t *testing.T) {
		item := trackItem("t1", "Duet", 1, 1)
		item["album"] = jm{"artist": artistItem("r2", "Solo")}
		item["composer"] = artistItem("c1", "Writer")

		cat := newFakeCatalog()
		cat.on(t, favAlbums, listing("albums", 0, 0, 1, albumItem("a1", "Hits", "r1", "Various Artists")))
		cat.on(t, "album/get?album_id=a1", albumReply("a1", "Hits", "r1", "Various Artists", "", 0, 0, 1, item))

		res, _ := runQuery(t, cat, QueryAlbums, "", testConfig(), nil)

		song := res.Songs["t1"]
		if song.Artist != "Solo" || song.AlbumArtist != "Various Artists" || song.Composer != "Writer" {
			t.Errorf("unexpected song %+v", song)
		}
	})
}

func TestRequestCovers(t *testing.T) {
	const artURL = "https://static.example.com/covers/a1.jpg"

	setup := func(t *testing.T) *fakeCatalog {
		cat := newFakeCatalog()
		cat.on(t, favAlbums, listing("albums", 0, 0, 1, albumItem("a1", "First", "r1", "One")))
		cat.on(t, "album/get?album_id=a1", albumReply("a1", "First", "r1", "One", artURL, 0, 0, 2,
			trackItem("t1", "Side A", 1, 1),
			trackItem("t2", "Side B", 2, 1),
		))
		return cat
	}

	cfg := testConfig()
	cfg.DownloadAlbumCovers = true

	t.Run("Shared Cover Fetched Once", func(t *testing.T) {
		cat := setup(t)
		cat.onImage(artURL, "image/png", pngBytes(t))
		dir := t.TempDir()

		res, rec := runQuery(t, cat, QueryAlbums, "", cfg, covers.NewCache(dir, quietLogger()))

		if cat.count(artURL) != 1 {
			t.Errorf("expected one cover fetch, got %d", cat.count(artURL))
		}
		path := filepath.Join(dir, "qobuz", "a1.jpg")
		tu.AssertFileExists(t, path)

		want := covers.FileURL(path)
		for _, id := range []string{"t1", "t2"} {
			if got := res.Songs[id].ArtAutomatic; got != want {
				t.Errorf("expected %s to point at %q, got %q", id, want, got)
			}
		}
		if !rec.hasStatus("Receiving album cover for 1 album...") {
			t.Errorf("missing cover status in %v", rec.statuses)
		}
		if len(res.Errors) != 0 {
			t.Errorf("unexpected errors %v", res.Errors)
		}
	})

	t.Run("Unsupported Mimetype", func(t *testing.T) {
		cat := setup(t)
		cat.onImage(artURL, "text/html", []byte("<html></html>"))

		res, _ := runQuery(t, cat, QueryAlbums, "", cfg, covers.NewCache(t.TempDir(), quietLogger()))

		want := "Unsupported mimetype for image reader text/html for " + artURL
		if res.Summary != want {
			t.Errorf("expected %q, got %q", want, res.Summary)
		}
		if res.Songs["t1"].ArtAutomatic != artURL {
			t.Error("expected remote cover kept after a failed download")
		}
	})

	t.Run("HTTP Error", func(t *testing.T) {
		cat := setup(t)

		res, _ := runQuery(t, cat, QueryAlbums, "", cfg, covers.NewCache(t.TempDir(), quietLogger()))

		want := "Received HTTP code 404 for " + artURL + "."
		if res.Summary != want {
			t.Errorf("expected %q, got %q", want, res.Summary)
		}
	})

	t.Run("Undecodable Data", func(t *testing.T) {
		cat := setup(t)
		cat.onImage(artURL, "image/jpeg", []byte("not a jpeg"))

		res, _ := runQuery(t, cat, QueryAlbums, "", cfg, covers.NewCache(t.TempDir(), quietLogger()))

		want := "Error decoding image data from " + artURL
		if res.Summary != want {
			t.Errorf("expected %q, got %q", want, res.Summary)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		cat := setup(t)

		res, _ := runQuery(t, cat, QueryAlbums, "", testConfig(), covers.NewCache(t.TempDir(), quietLogger()))

		if cat.count(artURL) != 0 || len(res.Errors) != 0 {
			t.Errorf("expected no cover fetch, got %d (%v)", cat.count(artURL), res.Errors)
		}
	})
}

func TestRequestTeardown(t *testing.T) {
	newBlocked := func(t *testing.T) (*fakeCatalog, *recorder, *Request) {
		cat := newFakeCatalog()
		cat.onBlock(favTracks)
		rec := &recorder{}
		req := NewRequest(RequestOpts{
			QueryID:  9,
			Kind:     QuerySongs,
			Config:   testConfig(),
			Catalog:  cat,
			Listener: rec,
			Logger:   quietLogger(),
		})
		return cat, rec, req
	}

	t.Run("Context Canceled", func(t *testing.T) {
		cat, rec, req := newBlocked(t)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan *Results, 1)
		go func() { done <- req.Process(ctx) }()

		tu.Eventually(t, time.Second, func() bool { return cat.count(favTracks) == 1 }, "request never issued")
		before := rec.events()
		cancel()

		select {
		case res := <-done:
			if res != nil {
				t.Errorf("expected no results, got %+v", res)
			}
		case <-time.After(time.Second):
			t.Fatal("Process did not return after cancel")
		}

		time.Sleep(10 * time.Millisecond)
		if rec.events() != before || rec.resultCount() != 0 {
			t.Errorf("expected no events after cancel, got %d more", rec.events()-before)
		}
	})

	t.Run("Close", func(t *testing.T) {
		cat, rec, req := newBlocked(t)

		done := make(chan *Results, 1)
		go func() { done <- req.Process(context.Background()) }()

		tu.Eventually(t, time.Second, func() bool { return cat.count(favTracks) == 1 }, "request never issued")
		req.Close()
		req.Close()

		select {
		case res := <-done:
			if res != nil {
				t.Errorf("expected no results, got %+v", res)
			}
		case <-time.After(time.Second):
			t.Fatal("Process did not return after Close")
		}
		if rec.resultCount() != 0 {
			t.Error("expected no results event after Close")
		}
	})
}

func TestRequestFinishOnce(t *testing.T) {
	cat := newFakeCatalog()
	cat.on(t, favTracks, listing("tracks", 0, 0, 1, tracks("1")...))
	rec := &recorder{}
	req := NewRequest(RequestOpts{QueryID: 4, Kind: QuerySongs, Config: testConfig(), Catalog: cat, Listener: rec, Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := req.Process(ctx)
	if res == nil || res.QueryID != 4 {
		t.Fatalf("unexpected results %+v", res)
	}

	req.finishCheck()
	req.finish()
	if rec.resultCount() != 1 {
		t.Errorf("expected exactly one results event, got %d", rec.resultCount())
	}
}

func TestRequestRepliesAfterFinish(t *testing.T) {
	cat := newFakeCatalog()
	cat.on(t, favTracks, listing("tracks", 0, 0, 1, tracks("1")...))
	rec := &recorder{}
	req := NewRequest(RequestOpts{QueryID: 5, Kind: QuerySongs, Config: testConfig(), Catalog: cat, Listener: rec, Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if res := req.Process(ctx); res == nil {
		t.Fatal("query did not finish")
	}

	var before [numStages]StageCounters
	for i, q := range req.queues {
		before[i] = q.StageCounters
	}
	events := rec.events()

	late := errors.New("late reply")
	req.handleArtists(work{}, nil, late)
	req.handleAlbums(StageAlbums, work{}, nil, late)
	req.handleAlbums(StageArtistAlbums, work{}, nil, late)
	req.handleSongs(StageSongs, work{}, nil, late)
	req.handleSongs(StageAlbumSongs, work{}, nil, late)
	req.handleCover(coverJob{url: "https://img.example/late.jpg"}, nil, late)

	for i, q := range req.queues {
		if q.StageCounters != before[i] {
			t.Errorf("stage %v counters changed after finish: %+v != %+v", Stage(i), q.StageCounters, before[i])
		}
	}
	if rec.events() != events {
		t.Errorf("expected no events after finish, got %d more", rec.events()-events)
	}
	if len(req.errors) != 0 {
		t.Errorf("expected no errors recorded after finish, got %v", req.errors)
	}
}

func TestRequestDetachedReply(t *testing.T) {
	req := NewRequest(RequestOpts{QueryID: 1, Kind: QuerySongs, Config: testConfig(), Catalog: newFakeCatalog(), Logger: quietLogger()})

	called := false
	req.deliver(reply{id: 42, handle: func(*services.APIResponse, error) { called = true }})
	if called {
		t.Error("expected reply without an in-flight entry to be ignored")
	}
}
