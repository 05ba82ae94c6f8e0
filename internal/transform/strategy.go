// Package transform maps CRM records into analytics action events. Each
// object type is a Strategy driven by the same pagination loop.
package transform

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"crm_syncer/internal/domain"
	"crm_syncer/internal/metrics"
)

// Lookups resolves cross references that a page of records needs.
type Lookups interface {
	// ContactCompanies maps contact ids to their first associated company id.
	// Contacts without an association are absent.
	ContactCompanies(ctx context.Context, contactIDs []string) (map[string]string, error)
	MeetingContacts(ctx context.Context, meetingID string) ([]string, error)
	ContactEmail(ctx context.Context, contactID string) (string, error)
}

// Emitter accepts finished action events.
type Emitter interface {
	Push(ctx context.Context, ev domain.ActionEvent)
}

// Page is one fetched page plus what is needed to classify and enrich it.
type Page struct {
	HubID     string
	Records   []domain.Record
	Watermark time.Time
	Lookups   Lookups
	Emit      Emitter
}

// Strategy is the per-object-type part of a sync.
type Strategy interface {
	ObjectType() domain.ObjectType
	// Properties lists the CRM properties requested for each record.
	Properties() []string
	// FilterProperty is the last-modified property the date range applies to.
	FilterProperty() string
	// TransformPage emits events for a page and returns how many it emitted.
	// Lookup failures are logged and skipped, never returned.
	TransformPage(ctx context.Context, page Page) int
}

func emit(ctx context.Context, page Page, ev domain.ActionEvent) {
	action := ActionUpdated
	if strings.HasSuffix(ev.ActionName, ActionCreated) {
		action = ActionCreated
	}
	metrics.RecordEvent(string(ev.ObjectType), action)
	page.Emit.Push(ctx, ev)
}

func logLookupFailure(logger *slog.Logger, hubID string, err *domain.LookupError) {
	metrics.RecordLookupFailure(err.Op)
	logger.Warn("lookup failed, skipping",
		"hub_id", hubID,
		"op", err.Op,
		"id", err.ID,
		"error", err.Err,
	)
}

// Default returns the strategies in canonical sync order.
func Default(lookupConcurrency int, logger *slog.Logger) []Strategy {
	return []Strategy{
		NewContacts(logger),
		NewCompanies(logger),
		NewMeetings(lookupConcurrency, logger),
	}
}
