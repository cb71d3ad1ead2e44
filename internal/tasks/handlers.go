package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/qbx/internal/covers"
	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/services"
)

// body returns the payload of a settled catalog reply. Transport failures and error
// statuses are logged; an empty payload yields nothing without an error.
func (r *Request) body(resp *services.APIResponse, err error) ([]byte, bool) {
	if err != nil {
		r.fail(err.Error())
		return nil, false
	}
	if resp == nil {
		return nil, false
	}
	if msg := resp.ErrorMessage(); msg != "" {
		r.fail(msg)
		return nil, false
	}
	if len(resp.Body) == 0 {
		return nil, false
	}
	return resp.Body, true
}

// settle finishes a catalog reply: it schedules the next page when the page was accepted and
// then runs the finish-check.
func (r *Request) settle(stage Stage, w work, page Page, accepted bool) {
	if r.finished {
		return
	}
	if accepted {
		if next, more := w.cursor.Next(page.Received, page.Total); more {
			nw := w
			nw.cursor = next
			r.enqueue(stage, nw)
		}
	}
	r.finishCheck()
}

func (r *Request) handleArtists(w work, resp *services.APIResponse, err error) {
	if r.finished {
		return
	}
	q := r.queues[StageArtists]
	q.settle()
	page, ok := r.parseArtists(w, resp, err)
	r.settle(StageArtists, w, page, ok)
}

func (r *Request) parseArtists(w work, resp *services.APIResponse, err error) (Page, bool) {
	data, ok := r.body(resp, err)
	if !ok {
		return Page{}, false
	}
	obj, perr := parseObject(data)
	if perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}
	c, perr := obj.envelope("artists")
	if perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}
	if perr := r.pager.check(StageArtists.String(), w.cursor, c.Page); perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}

	q := r.queues[StageArtists]
	q.ItemsTotal = c.Total
	if w.cursor.Offset == 0 {
		r.progress(q.ItemsReceived, q.ItemsTotal)
	}

	if len(c.items) == 0 {
		if w.cursor.Offset == 0 {
			r.noResults = true
		}
		return c.Page, true
	}

	for _, raw := range c.items {
		item, ok := asObject(raw)
		if !ok {
			r.fail("Invalid Json reply, item not a object.")
			continue
		}
		if wrapped, has := item["item"]; has {
			if item, ok = asObject(wrapped); !ok {
				r.fail("Invalid Json reply, item not a object.")
				continue
			}
		}
		id, name, ok := artistObject(item)
		if !ok {
			r.fail("Invalid Json reply, item missing id or name.")
			continue
		}
		r.artistAlbums.TryReserve(id, models.Artist{ID: id, Name: name})
	}

	q.ItemsReceived += c.Received
	if w.cursor.Offset != 0 {
		r.progress(q.ItemsReceived, q.ItemsTotal)
	}
	return c.Page, true
}

// handleAlbums serves the albums listing and the per-artist album listing.
func (r *Request) handleAlbums(stage Stage, w work, resp *services.APIResponse, err error) {
	if r.finished {
		return
	}
	q := r.queues[stage]
	q.settle()
	if stage == StageArtistAlbums {
		r.progress(q.RequestsReceived, q.RequestsTotal)
	}
	page, ok := r.parseAlbums(stage, w, resp, err)
	r.settle(stage, w, page, ok)
}

func (r *Request) parseAlbums(stage Stage, w work, resp *services.APIResponse, err error) (Page, bool) {
	data, ok := r.body(resp, err)
	if !ok {
		return Page{}, false
	}
	obj, perr := parseObject(data)
	if perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}

	key := StageAlbums.String()
	if stage == StageArtistAlbums {
		key = artistKey(w.artist.ID)
		returned := w.artist.ID
		if obj.has("id", "name") {
			returned = obj.id("id")
		}
		if returned != w.artist.ID {
			r.fail("Artist ID returned does not match artist ID requested.", "requested", w.artist.ID, "returned", returned)
			return Page{}, false
		}
	}

	c, perr := obj.envelope("albums")
	if perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}
	if perr := r.pager.check(key, w.cursor, c.Page); perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}

	if len(c.items) == 0 {
		if stage == StageAlbums && w.cursor.Offset == 0 {
			r.noResults = true
		}
		return c.Page, true
	}

	for _, raw := range c.items {
		item, ok := asObject(raw)
		if !ok {
			r.fail("Invalid Json reply, item in array is not a object.")
			continue
		}
		if !item.has("artist", "title", "id") {
			r.fail("Invalid Json reply, item missing artist, title or id.")
			continue
		}
		album := models.Album{ID: item.id("id"), Title: item.str("title")}
		if r.albumSongs.Seen(album.ID) {
			continue
		}

		artistObj, ok := item.child("artist")
		if !ok {
			r.fail("Invalid Json reply, item artist is not a object.")
			continue
		}
		artistID, artistName, ok := artistObject(artistObj)
		if !ok {
			r.fail("Invalid Json reply, item artist missing id or name.")
			continue
		}
		albumArtist := models.Artist{ID: artistID, Name: artistName}

		if stage == StageArtistAlbums && albumArtist.ID != w.artist.ID {
			r.logger.Debug("skipping album by another artist", "album", album.Title, "album_artist", albumArtist.ID, "artist", w.artist.ID)
			continue
		}

		r.albumSongs.TryReserve(album.ID, work{artist: albumArtist, album: album})
	}

	if stage == StageAlbums {
		q := r.queues[StageAlbums]
		q.ItemsTotal = c.Total
		q.ItemsReceived += c.Received
		r.progress(q.ItemsReceived, q.ItemsTotal)
	}
	return c.Page, true
}

// handleSongs serves the songs listing and the per-album track listing.
func (r *Request) handleSongs(stage Stage, w work, resp *services.APIResponse, err error) {
	if r.finished {
		return
	}
	q := r.queues[stage]
	q.settle()
	if stage == StageAlbumSongs && w.cursor.Offset == 0 {
		r.progress(q.RequestsReceived, q.RequestsTotal)
	}
	page, ok := r.parseSongs(stage, w, resp, err)
	r.settle(stage, w, page, ok)
}

func (r *Request) parseSongs(stage Stage, w work, resp *services.APIResponse, err error) (Page, bool) {
	data, ok := r.body(resp, err)
	if !ok {
		return Page{}, false
	}
	obj, perr := parseObject(data)
	if perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}
	if !obj.has("tracks") {
		r.fail("Json object is missing tracks.")
		return Page{}, false
	}

	albumArtist := w.artist
	album := w.album

	if obj.has("id", "title") {
		album.ID = obj.id("id")
		album.Title = obj.str("title")
	}
	if obj.has("artist") {
		a, ok := obj.child("artist")
		if !ok {
			r.fail("Invalid Json reply, album artist is not a object.")
			return Page{}, false
		}
		id, name, ok := artistObject(a)
		if !ok {
			r.fail("Invalid Json reply, album artist is missing id or name.")
			return Page{}, false
		}
		albumArtist = models.Artist{ID: id, Name: name}
	}
	if obj.has("image") {
		cover, err := coverURL(obj)
		if err != nil {
			r.fail(err.Error())
			return Page{}, false
		}
		if cover != "" {
			album.CoverURL = cover
		}
	}

	c, perr := obj.envelope("tracks")
	if perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}

	key := StageSongs.String()
	if stage == StageAlbumSongs {
		key = albumKey(w.album.ID)
	}
	if perr := r.pager.check(key, w.cursor, c.Page); perr != nil {
		r.fail(perr.Error())
		return Page{}, false
	}

	if len(c.items) == 0 {
		if stage == StageSongs && w.cursor.Offset == 0 {
			r.noResults = true
		}
		return c.Page, true
	}

	multidisc := false
	songs := make([]models.Song, 0, len(c.items))
	for _, raw := range c.items {
		item, ok := asObject(raw)
		if !ok {
			r.fail("Invalid Json reply, track is not a object.")
			continue
		}
		song, perr := r.parseSong(item, albumArtist, album)
		if perr != nil {
			r.fail(perr.Error())
			continue
		}
		if song.Disc >= 2 {
			multidisc = true
		}
		songs = append(songs, song)
	}

	for _, song := range songs {
		if !multidisc {
			song.Disc = 0
		}
		r.songs[song.SongID] = song
	}

	if stage == StageSongs {
		q := r.queues[StageSongs]
		q.ItemsTotal = c.Total
		q.ItemsReceived += c.Received
		r.progress(q.ItemsReceived, q.ItemsTotal)
	}
	return c.Page, true
}

// coverURL reads image.large of an album object.
func coverURL(obj object) (string, error) {
	img, ok := obj.child("image")
	if !ok {
		return "", fmt.Errorf("Invalid Json reply, album image is not a object.")
	}
	if !img.has("large") {
		return "", fmt.Errorf("Invalid Json reply, album image is missing large.")
	}
	return img.str("large"), nil
}

// parseSong builds a song from a track item. The album context comes from the reply header
// or the parent request and may be overridden by the item's own album object.
func (r *Request) parseSong(item object, albumArtist models.Artist, album models.Album) (models.Song, error) {
	if !item.has("id", "title", "track_number", "duration", "copyright", "streamable") {
		return models.Song{}, fmt.Errorf("Invalid Json reply, track is missing one or more values.")
	}

	songArtist := albumArtist
	songAlbum := album

	if item.has("album") {
		a, ok := item.child("album")
		if !ok {
			return models.Song{}, fmt.Errorf("Invalid Json reply, album is not an object.")
		}
		if a.has("id") {
			songAlbum.ID = a.id("id")
		}
		if a.has("title") {
			songAlbum.Title = a.str("title")
		}
		if a.has("artist") {
			ao, ok := a.child("artist")
			if !ok {
				return models.Song{}, fmt.Errorf("Invalid Json reply, album artist is not a object.")
			}
			id, name, ok := artistObject(ao)
			if !ok {
				return models.Song{}, fmt.Errorf("Invalid Json reply, album artist is missing id or name.")
			}
			songArtist = models.Artist{ID: id, Name: name}
		}
		if a.has("image") {
			cover, err := coverURL(a)
			if err != nil {
				return models.Song{}, err
			}
			if cover != "" {
				songAlbum.CoverURL = cover
			}
		}
	}

	var composer, performer string
	for _, role := range []struct {
		key  string
		dest *string
	}{{"composer", &composer}, {"performer", &performer}} {
		if !item.has(role.key) {
			continue
		}
		o, ok := item.child(role.key)
		if !ok {
			return models.Song{}, fmt.Errorf("Invalid Json reply, track %s is not a object.", role.key)
		}
		_, name, ok := artistObject(o)
		if !ok {
			return models.Song{}, fmt.Errorf("Invalid Json reply, track %s is missing id or name.", role.key)
		}
		*role.dest = name
	}

	id := item.id("id")
	scheme := r.cfg.URLScheme
	if scheme == "" {
		scheme = models.SourceQobuz
	}

	song := models.Song{
		Source:       models.SourceQobuz,
		SongID:       id,
		AlbumID:      songAlbum.ID,
		ArtistID:     songArtist.ID,
		Title:        strings.TrimSpace(item.str("title")),
		Album:        songAlbum.Title,
		Artist:       songArtist.Name,
		Composer:     composer,
		Performer:    performer,
		Copyright:    item.str("copyright"),
		Track:        item.num("track_number"),
		Disc:         item.num("media_number"),
		Length:       time.Duration(item.num("duration")) * time.Second,
		URL:          scheme + ":" + id,
		ArtAutomatic: songAlbum.CoverURL,
		Streamable:   item.flag("streamable"),
	}
	if albumArtist.Name != "" && albumArtist.Name != songArtist.Name {
		song.AlbumArtist = albumArtist.Name
	}
	if !song.IsValid() {
		return models.Song{}, fmt.Errorf("Invalid Json reply, track id is empty.")
	}
	return song, nil
}

// queueCovers registers the cover of every collected song and enqueues one download per URL.
func (r *Request) queueCovers() {
	for _, id := range r.songs.IDs() {
		song := r.songs[id]
		u := song.ArtAutomatic
		if u == "" || song.HasLocalArt() {
			continue
		}
		if !r.covers.TryReserve(u, song.SongID) {
			continue
		}
		dest := r.images.CoverFilePath(song.Source, song.EffectiveAlbumArtist(), song.Album, song.AlbumID, u)
		if dest == "" {
			r.covers.Drop(u)
			continue
		}
		r.enqueue(StageCovers, work{cover: coverJob{url: u, path: dest}})
	}

	if n := r.queues[StageCovers].RequestsTotal; n > 0 {
		if n == 1 {
			r.status("Receiving album cover for 1 album...")
		} else {
			r.status(fmt.Sprintf("Receiving album covers for %d albums...", n))
		}
		r.emitProgress(0)
	}
}

func (r *Request) handleCover(job coverJob, resp *services.APIResponse, err error) {
	if r.finished {
		return
	}
	q := r.queues[StageCovers]
	q.settle()
	r.progress(q.RequestsReceived, q.RequestsTotal)

	if r.covers.Has(job.url) {
		if msg := r.saveCover(job, resp, err); msg != "" {
			r.covers.Drop(job.url)
			r.fail(msg, "url", job.url)
		} else {
			local := covers.FileURL(job.path)
			for _, id := range r.covers.ReleaseAll(job.url) {
				if song, ok := r.songs[id]; ok {
					song.ArtAutomatic = local
					r.songs[id] = song
				}
			}
		}
	}
	r.finishCheck()
}

// saveCover validates, decodes and writes a downloaded cover. It returns an error message on failure.
func (r *Request) saveCover(job coverJob, resp *services.APIResponse, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case resp == nil:
		return fmt.Sprintf("Received no reply for %s.", job.url)
	case resp.StatusCode != 200:
		return fmt.Sprintf("Received HTTP code %d for %s.", resp.StatusCode, job.url)
	}

	mimetype := resp.MimeType()
	if !r.images.Supports(mimetype) {
		return fmt.Sprintf("Unsupported mimetype for image reader %s for %s", mimetype, job.url)
	}
	if len(resp.Body) == 0 {
		return fmt.Sprintf("Received empty image data for %s", job.url)
	}

	img, derr := r.images.Decode(resp.Body)
	if derr != nil {
		return fmt.Sprintf("Error decoding image data from %s", job.url)
	}
	if serr := r.images.Save(img, job.path); serr != nil {
		return fmt.Sprintf("Error saving image data to %s", job.path)
	}
	return ""
}
