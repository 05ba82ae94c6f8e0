package domain

import "time"

// ActionEvent is one normalized unit delivered to the analytics sink.
type ActionEvent struct {
	HubID              string         `json:"hub_id"`
	ObjectType         ObjectType     `json:"object_type"`
	ActionName         string         `json:"action_name"`
	ActionDate         time.Time      `json:"action_date"`
	IncludeInAnalytics int            `json:"include_in_analytics"`
	Identity           string         `json:"identity,omitempty"`
	CompanyProperties  map[string]any `json:"company_properties,omitempty"`
	UserProperties     map[string]any `json:"user_properties,omitempty"`
	MeetingProperties  map[string]any `json:"meeting_properties,omitempty"`
}
