package service

import (
	"context"
	"errors"
	"sync"

	"crm_syncer/internal/domain"
)

// tenantLookups resolves cross references for one tenant. Every call asks the
// credential provider for a token first and retries once with a fresh token
// when the CRM rejects it.
type tenantLookups struct {
	crm         CRMClient
	credentials CredentialProvider
	tenant      *domain.TenantAccount

	// mu guards the tenant's token fields against concurrent meeting lookups.
	mu sync.Mutex
}

func (l *tenantLookups) ContactCompanies(ctx context.Context, contactIDs []string) (map[string]string, error) {
	assoc, err := withToken(ctx, l, func(token string) (map[string][]string, error) {
		return l.crm.BatchAssociations(ctx, token, domain.ObjectContacts, domain.ObjectCompanies, contactIDs)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(assoc))
	for contactID, companies := range assoc {
		if len(companies) > 0 {
			out[contactID] = companies[0]
		}
	}
	return out, nil
}

func (l *tenantLookups) MeetingContacts(ctx context.Context, meetingID string) ([]string, error) {
	assoc, err := withToken(ctx, l, func(token string) (map[string][]string, error) {
		return l.crm.BatchAssociations(ctx, token, domain.ObjectMeetings, domain.ObjectContacts, []string{meetingID})
	})
	if err != nil {
		return nil, err
	}
	return assoc[meetingID], nil
}

func (l *tenantLookups) ContactEmail(ctx context.Context, contactID string) (string, error) {
	return withToken(ctx, l, func(token string) (string, error) {
		return l.crm.ContactEmail(ctx, token, contactID)
	})
}

func (l *tenantLookups) token(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cred, err := l.credentials.Ensure(ctx, l.tenant)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// renew drops the rejected token unless another lookup already replaced it.
func (l *tenantLookups) renew(ctx context.Context, rejected string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tenant.AccessToken == rejected {
		l.credentials.Invalidate(ctx, l.tenant)
	}
	cred, err := l.credentials.Ensure(ctx, l.tenant)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

func withToken[T any](ctx context.Context, l *tenantLookups, call func(token string) (T, error)) (T, error) {
	var zero T

	token, err := l.token(ctx)
	if err != nil {
		return zero, err
	}

	out, err := call(token)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return out, err
	}

	token, err = l.renew(ctx, token)
	if err != nil {
		return zero, err
	}
	return call(token)
}
