package domain

import "time"

// Record is one object returned by the remote search API.
type Record struct {
	ID         string
	Properties map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SearchQuery describes a single search page request.
type SearchQuery struct {
	Properties []string
	// FilterProperty is the last-modified property the date range applies to.
	FilterProperty string
	From           time.Time
	To             time.Time
	Limit          int
	// After is the pagination cursor; zero means first page.
	After int
}

type SearchPage struct {
	Results    []Record
	NextCursor int
}

// Last returns the final record of the page.
func (p *SearchPage) Last() (Record, bool) {
	if p == nil || len(p.Results) == 0 {
		return Record{}, false
	}
	return p.Results[len(p.Results)-1], true
}
