package domain

import "time"

// TenantStats holds statistics about one tenant's sync.
type TenantStats struct {
	HubID          string
	Enqueued       int
	TypesCompleted int
	TypesFailed    int
	Err            error
	Duration       time.Duration
}

// RunStats aggregates a whole sync run over all tenants.
type RunStats struct {
	Tenants  []TenantStats
	Duration time.Duration
}

// AuthFailures counts tenants that could not authenticate at all.
func (r *RunStats) AuthFailures() int {
	n := 0
	for _, t := range r.Tenants {
		if IsAuthError(t.Err) {
			n++
		}
	}
	return n
}
