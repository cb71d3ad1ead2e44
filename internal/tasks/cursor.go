package tasks

import "fmt"

// Cursor asks for Limit items starting at Offset. A zero Limit lets the server choose.
type Cursor struct {
	Offset int
	Limit  int
}

// Next returns the cursor for the page after one that yielded received items out of total.
//
// There is no next page when nothing was received, when the next offset reaches total,
// or when the requested limit did not exceed what came back.
func (c Cursor) Next(received, total int) (Cursor, bool) {
	if received <= 0 {
		return Cursor{}, false
	}
	next := c.Offset + received
	if next <= 0 || next >= total {
		return Cursor{}, false
	}
	if c.Limit != 0 && c.Limit <= received {
		return Cursor{}, false
	}
	return Cursor{Offset: next, Limit: c.Limit}, true
}

// Page is what a container reply reports about itself. Received counts every array element.
type Page struct {
	Offset   int
	Limit    int
	Total    int
	Received int
}

// pager remembers the first-page total of each logical query.
type pager struct {
	totals map[string]int
}

func newPager() *pager {
	return &pager{totals: make(map[string]int)}
}

// check validates a page against the cursor that requested it.
func (p *pager) check(key string, c Cursor, page Page) error {
	if page.Offset != c.Offset {
		return fmt.Errorf("Offset returned does not match offset requested! %d != %d", page.Offset, c.Offset)
	}

	stored, seen := p.totals[key]
	switch {
	case c.Offset == 0 || !seen:
		p.totals[key] = page.Total
	case stored != page.Total:
		return fmt.Errorf("Total returned does not match previous total! %d != %d", page.Total, stored)
	}
	return nil
}

// Total returns the stored total for key.
func (p *pager) Total(key string) (int, bool) {
	t, ok := p.totals[key]
	return t, ok
}

func artistKey(id string) string { return "artist:" + id }
func albumKey(id string) string  { return "album:" + id }
