package transform

import (
	"time"

	"crm_syncer/internal/domain"
)

// ActionSkew is subtracted from every action timestamp so events never
// land on the exact instant the sink already holds.
const ActionSkew = 2 * time.Second

const (
	ActionCreated = "Created"
	ActionUpdated = "Updated"
)

// NewAction classifies the record against the pre-run watermark and fills in
// the action name and date. Records created after the watermark are
// "Created" and dated by creation time, the rest "Updated" and dated by
// last modification.
func NewAction(hubID string, rec domain.Record, objectType domain.ObjectType, label string, watermark time.Time) domain.ActionEvent {
	ev := domain.ActionEvent{
		HubID:              hubID,
		ObjectType:         objectType,
		IncludeInAnalytics: 0,
	}

	if rec.CreatedAt.After(watermark) {
		ev.ActionName = label + " " + ActionCreated
		ev.ActionDate = rec.CreatedAt.Add(-ActionSkew)
	} else {
		ev.ActionName = label + " " + ActionUpdated
		ev.ActionDate = rec.UpdatedAt.Add(-ActionSkew)
	}

	return ev
}
