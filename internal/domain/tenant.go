package domain

import "time"

// ObjectType names a remote CRM object collection as used in API paths.
type ObjectType string

const (
	ObjectContacts  ObjectType = "contacts"
	ObjectCompanies ObjectType = "companies"
	ObjectMeetings  ObjectType = "meetings"
)

// TenantAccount is one CRM-connected tenant. The sync run mutates it in place
// (credential cache, watermarks) and persists it through the tenant store.
type TenantAccount struct {
	HubID          string
	RefreshToken   string
	AccessToken    string
	TokenExpiresAt time.Time
	// LastPulled holds the last successful sync boundary per object type.
	// A missing entry means "beginning of time".
	LastPulled map[ObjectType]time.Time
}

func (t *TenantAccount) Watermark(objectType ObjectType) time.Time {
	if t.LastPulled == nil {
		return time.Time{}
	}
	return t.LastPulled[objectType]
}

func (t *TenantAccount) SetWatermark(objectType ObjectType, at time.Time) {
	if t.LastPulled == nil {
		t.LastPulled = make(map[ObjectType]time.Time)
	}
	t.LastPulled[objectType] = at
}

// Credential is a short-lived access token and the moment it stops being usable.
type Credential struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (c Credential) Expired(now time.Time) bool {
	return c.AccessToken == "" || !now.Before(c.ExpiresAt)
}
