package credential

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"crm_syncer/internal/domain"
	"crm_syncer/internal/metrics"
)

// TokenRefresher exchanges a refresh token for a short-lived access token.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (accessToken string, expiresIn time.Duration, err error)
}

// Manager hands out access credentials per tenant, refreshing them through
// the CRM auth endpoint when the cache has nothing usable.
type Manager struct {
	refresher TokenRefresher
	cache     Cache
	margin    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewManager creates a credential manager. margin is subtracted from the
// provider's stated lifetime so cached tokens expire before the remote side does.
func NewManager(refresher TokenRefresher, cache Cache, margin time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		refresher: refresher,
		cache:     cache,
		margin:    margin,
		now:       time.Now,
		logger:    logger.With("component", "credential"),
	}
}

func cacheKey(hubID string) string {
	return "accessToken_" + hubID
}

// Ensure returns a usable access credential for the tenant and stores it on
// the tenant record.
func (m *Manager) Ensure(ctx context.Context, tenant *domain.TenantAccount) (domain.Credential, error) {
	key := cacheKey(tenant.HubID)

	cred, found, err := m.cache.Get(ctx, key)
	if err != nil {
		m.logger.Warn("token cache read failed", "hub_id", tenant.HubID, "error", err)
	}
	if found && !cred.Expired(m.now()) {
		m.logger.Debug("using cached access token", "hub_id", tenant.HubID)
		metrics.RecordTokenRefresh("cache")
		m.apply(tenant, cred)
		return cred, nil
	}

	// A token saved by an earlier run is still good after a cache restart.
	stored := domain.Credential{AccessToken: tenant.AccessToken, ExpiresAt: tenant.TokenExpiresAt}
	if !stored.Expired(m.now()) {
		m.logger.Debug("using stored access token", "hub_id", tenant.HubID)
		if err := m.cache.Set(ctx, key, stored, stored.ExpiresAt.Sub(m.now())); err != nil {
			m.logger.Warn("token cache write failed", "hub_id", tenant.HubID, "error", err)
		}
		metrics.RecordTokenRefresh("store")
		return stored, nil
	}

	return m.refresh(ctx, tenant)
}

// Invalidate drops the cached credential so the next Ensure hits the auth endpoint.
func (m *Manager) Invalidate(ctx context.Context, tenant *domain.TenantAccount) {
	if err := m.cache.Delete(ctx, cacheKey(tenant.HubID)); err != nil {
		m.logger.Warn("token cache delete failed", "hub_id", tenant.HubID, "error", err)
	}
	tenant.AccessToken = ""
	tenant.TokenExpiresAt = time.Time{}
}

func (m *Manager) refresh(ctx context.Context, tenant *domain.TenantAccount) (domain.Credential, error) {
	if tenant.RefreshToken == "" {
		metrics.RecordTokenRefresh("error")
		return domain.Credential{}, &domain.AuthError{HubID: tenant.HubID, Err: errors.New("no refresh token")}
	}

	m.logger.Info("refreshing access token", "hub_id", tenant.HubID)

	accessToken, expiresIn, err := m.refresher.RefreshToken(ctx, tenant.RefreshToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Credential{}, ctxErr
		}
		metrics.RecordTokenRefresh("error")
		return domain.Credential{}, &domain.AuthError{HubID: tenant.HubID, Err: err}
	}

	ttl := expiresIn - m.margin
	if ttl <= 0 {
		ttl = expiresIn
	}

	cred := domain.Credential{
		AccessToken: accessToken,
		ExpiresAt:   m.now().Add(ttl),
	}

	if err := m.cache.Set(ctx, cacheKey(tenant.HubID), cred, ttl); err != nil {
		m.logger.Warn("token cache write failed", "hub_id", tenant.HubID, "error", err)
	}

	metrics.RecordTokenRefresh("remote")
	m.apply(tenant, cred)
	return cred, nil
}

func (m *Manager) apply(tenant *domain.TenantAccount, cred domain.Credential) {
	tenant.AccessToken = cred.AccessToken
	tenant.TokenExpiresAt = cred.ExpiresAt
}
