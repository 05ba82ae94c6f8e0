package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"crm_syncer/internal/domain"
	"crm_syncer/internal/metrics"
)

// SearchClient executes a single search request against the CRM.
type SearchClient interface {
	Search(ctx context.Context, accessToken string, objectType domain.ObjectType, query domain.SearchQuery) (*domain.SearchPage, error)
}

// Credentials refreshes tenant access tokens between attempts.
type Credentials interface {
	Ensure(ctx context.Context, tenant *domain.TenantAccount) (domain.Credential, error)
	Invalidate(ctx context.Context, tenant *domain.TenantAccount)
}

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Fetcher runs search requests with retry, exponential backoff and
// credential refresh. Search is read-only so every attempt is safe to repeat.
type Fetcher struct {
	client      SearchClient
	credentials Credentials
	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

func New(client SearchClient, credentials Credentials, cfg Config, logger *slog.Logger) *Fetcher {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Fetcher{
		client:      client,
		credentials: credentials,
		maxAttempts: maxAttempts,
		baseDelay:   cfg.BaseDelay,
		now:         time.Now,
		sleep:       sleepContext,
		logger:      logger.With("component", "fetcher"),
	}
}

// Search fetches one page. expiry is the current access token's expiry; once
// it has passed, the token is refreshed before the next attempt.
func (f *Fetcher) Search(ctx context.Context, tenant *domain.TenantAccount, objectType domain.ObjectType, query domain.SearchQuery, expiry time.Time) (*domain.SearchPage, error) {
	attempts := 0

	for {
		page, err := f.client.Search(ctx, tenant.AccessToken, objectType, query)
		metrics.RecordSearch(string(objectType), err)
		if err == nil {
			if attempts > 0 {
				f.logger.Info("search succeeded after retry",
					"hub_id", tenant.HubID,
					"object_type", objectType,
					"attempt", attempts+1,
				)
			}
			return page, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		attempts++
		if attempts >= f.maxAttempts {
			return nil, &domain.FetchExhaustedError{ObjectType: objectType, Attempts: attempts, Err: err}
		}

		backoff := f.backoff(attempts)
		metrics.RecordRetry(string(objectType))
		f.logger.Warn("search failed, retrying",
			"hub_id", tenant.HubID,
			"object_type", objectType,
			"attempt", attempts,
			"backoff", backoff,
			"error", err,
		)

		unauthorized := errors.Is(err, domain.ErrUnauthorized)
		if unauthorized || !f.now().Before(expiry) {
			if unauthorized {
				f.credentials.Invalidate(ctx, tenant)
			}
			cred, refreshErr := f.credentials.Ensure(ctx, tenant)
			if refreshErr != nil {
				return nil, refreshErr
			}
			expiry = cred.ExpiresAt
		}

		if err := f.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

// backoff returns baseDelay * 2^attempt.
func (f *Fetcher) backoff(attempt int) time.Duration {
	return f.baseDelay << attempt
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
