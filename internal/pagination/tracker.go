// Package pagination walks the CRM search API cursor and re-bases the query
// window when the API's pagination depth limit is reached.
package pagination

import (
	"time"

	"crm_syncer/internal/domain"
)

const (
	// PageSize is the number of records requested per search page.
	PageSize = 100
	// CursorCeiling is the deepest offset the search API will page to.
	CursorCeiling = 9900
)

// Tracker holds the cursor and lower-bound filter for one object type's loop.
type Tracker struct {
	Cursor     int
	LowerBound time.Time
	// Rebases counts how many times the window moved past the ceiling.
	Rebases int
	// Stalled is set when a re-base could not move the lower bound, which
	// happens once a full window shares a single modification time.
	Stalled bool
}

// New starts a tracker at the object type's watermark.
func New(watermark time.Time) *Tracker {
	return &Tracker{LowerBound: watermark}
}

// Query builds the next page request. upper is the run-start time.
func (t *Tracker) Query(properties []string, filterProperty string, upper time.Time) domain.SearchQuery {
	return domain.SearchQuery{
		Properties:     properties,
		FilterProperty: filterProperty,
		From:           t.LowerBound,
		To:             upper,
		Limit:          PageSize,
		After:          t.Cursor,
	}
}

// Advance consumes a fetched page and reports whether another page should be fetched.
func (t *Tracker) Advance(page *domain.SearchPage) bool {
	if page == nil || page.NextCursor <= 0 {
		return false
	}

	empty := len(page.Results) == 0

	// An empty page echoing a cursor we already hold would loop forever.
	if empty && page.NextCursor <= t.Cursor {
		return false
	}

	t.Cursor = page.NextCursor

	if t.Cursor >= CursorCeiling {
		last, ok := page.Last()
		if !ok {
			return false
		}
		if !last.UpdatedAt.After(t.LowerBound) {
			t.Stalled = true
			return false
		}
		t.Cursor = 0
		t.LowerBound = last.UpdatedAt
		t.Rebases++
	}

	return true
}
