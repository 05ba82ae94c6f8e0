package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crm_syncer/internal/config"
	"crm_syncer/internal/domain"
	"crm_syncer/internal/metrics"
	"crm_syncer/internal/pagination"
	"crm_syncer/internal/queue"
	"crm_syncer/internal/transform"
)

// SyncService runs one incremental pull for every tenant: each object type is
// paged from its watermark up to the run start, transformed into action
// events and pushed through a batch queue to the sink.
type SyncService struct {
	tenants     TenantStore
	credentials CredentialProvider
	searcher    Searcher
	crm         CRMClient
	sink        Sink
	strategies  []transform.Strategy
	logger      *slog.Logger
	config      config.SyncConfig
	now         func() time.Time
}

func NewSyncService(
	tenants TenantStore,
	credentials CredentialProvider,
	searcher Searcher,
	crm CRMClient,
	sink Sink,
	strategies []transform.Strategy,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		tenants:     tenants,
		credentials: credentials,
		searcher:    searcher,
		crm:         crm,
		sink:        sink,
		strategies:  strategies,
		logger:      logger.With("component", "sync"),
		config:      cfg,
		now:         time.Now,
	}
}

// Sync processes all tenants sequentially. A failing tenant or object type is
// recorded in the returned stats and never stops the others; only a failure
// to load tenants is returned as an error.
func (s *SyncService) Sync(ctx context.Context) (*domain.RunStats, error) {
	runStart := s.now()

	tenants, err := s.tenants.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}

	s.logger.Info("starting sync",
		"tenants", len(tenants),
		"run_start", runStart,
		"persist", s.config.PersistEnabled(),
	)

	stats := &domain.RunStats{}
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			s.logger.Warn("sync interrupted", "error", ctx.Err())
			break
		}
		stats.Tenants = append(stats.Tenants, s.syncTenant(ctx, tenant, runStart))
	}

	stats.Duration = s.now().Sub(runStart)

	s.logger.Info("sync completed",
		"tenants", len(stats.Tenants),
		"auth_failures", stats.AuthFailures(),
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) syncTenant(ctx context.Context, tenant *domain.TenantAccount, runStart time.Time) domain.TenantStats {
	start := s.now()
	logger := s.logger.With("hub_id", tenant.HubID)
	ts := domain.TenantStats{HubID: tenant.HubID}

	if _, err := s.credentials.Ensure(ctx, tenant); err != nil {
		logger.Error("failed to authenticate tenant", "error", err)
		ts.Err = err
		ts.Duration = s.now().Sub(start)
		return ts
	}

	q := queue.New(s.sink, s.config.FlushThreshold, logger)
	lookups := &tenantLookups{crm: s.crm, credentials: s.credentials, tenant: tenant}

	// unsaved is set while the tenant holds state the store has not seen yet.
	unsaved := true
	for _, strategy := range s.strategies {
		n, err := s.syncObjectType(ctx, tenant, strategy, lookups, q, runStart)
		ts.Enqueued += n
		if err == nil {
			ts.TypesCompleted++
			if err := s.checkpoint(ctx, tenant, q); err != nil {
				logger.Error("checkpoint failed", "object_type", strategy.ObjectType(), "error", err)
				ts.Err = errors.Join(ts.Err, err)
				if errors.Is(err, errDelivery) {
					ts.Duration = s.now().Sub(start)
					return ts
				}
				unsaved = true
				continue
			}
			unsaved = false
			continue
		}

		ts.TypesFailed++
		unsaved = true
		logger.Error("object type sync failed",
			"object_type", strategy.ObjectType(),
			"enqueued", n,
			"error", err,
		)

		// Neither of these will get better for the next type.
		if ctx.Err() != nil || domain.IsAuthError(err) {
			ts.Err = errors.Join(ts.Err, err)
			break
		}
	}

	// Partial output of a failed type is still delivered; its watermark did not move.
	if err := q.Drain(ctx); err != nil {
		logger.Error("failed to deliver events", "error", err)
		ts.Err = errors.Join(ts.Err, err)
		ts.Duration = s.now().Sub(start)
		return ts
	}

	// Completed types were saved at their checkpoints.
	if unsaved && ctx.Err() == nil {
		if err := s.save(ctx, tenant); err != nil {
			logger.Error("failed to save tenant", "error", err)
			ts.Err = errors.Join(ts.Err, err)
		}
	}

	ts.Duration = s.now().Sub(start)

	logger.Info("tenant synced",
		"enqueued", ts.Enqueued,
		"types_completed", ts.TypesCompleted,
		"types_failed", ts.TypesFailed,
		"duration", ts.Duration,
	)

	return ts
}

// syncObjectType pages one object type from its watermark to runStart. The
// watermark only moves when the loop ran to completion.
func (s *SyncService) syncObjectType(
	ctx context.Context,
	tenant *domain.TenantAccount,
	strategy transform.Strategy,
	lookups transform.Lookups,
	q *queue.Queue,
	runStart time.Time,
) (int, error) {
	start := s.now()
	objectType := strategy.ObjectType()
	watermark := tenant.Watermark(objectType)
	tracker := pagination.New(watermark)

	enqueued := 0
	pages := 0
	for {
		query := tracker.Query(strategy.Properties(), strategy.FilterProperty(), runStart)

		page, err := s.searcher.Search(ctx, tenant, objectType, query, tenant.TokenExpiresAt)
		if err != nil {
			return enqueued, fmt.Errorf("search %s: %w", objectType, err)
		}
		pages++

		enqueued += strategy.TransformPage(ctx, transform.Page{
			HubID:     tenant.HubID,
			Records:   page.Results,
			Watermark: watermark,
			Lookups:   lookups,
			Emit:      q,
		})

		if !tracker.Advance(page) {
			break
		}
	}

	if tracker.Stalled {
		s.logger.Warn("pagination window cannot advance, keeping watermark",
			"hub_id", tenant.HubID,
			"object_type", objectType,
			"lower_bound", tracker.LowerBound,
		)
		return enqueued, fmt.Errorf("%w: %s at %s", ErrPaginationStalled, objectType, tracker.LowerBound.Format(time.RFC3339Nano))
	}

	tenant.SetWatermark(objectType, runStart)
	metrics.RecordObjectType(string(objectType), s.now().Sub(start))

	s.logger.Debug("object type synced",
		"hub_id", tenant.HubID,
		"object_type", objectType,
		"pages", pages,
		"rebases", tracker.Rebases,
		"enqueued", enqueued,
	)

	return enqueued, nil
}

var errDelivery = errors.New("deliver events")

// ErrPaginationStalled is reported for an object type whose records sharing one
// modification time outnumber the search API's pagination depth.
var ErrPaginationStalled = errors.New("pagination stalled")

// checkpoint delivers everything queued so far and then saves the tenant, so
// a stored watermark never runs ahead of delivered events.
func (s *SyncService) checkpoint(ctx context.Context, tenant *domain.TenantAccount, q *queue.Queue) error {
	if err := q.Drain(ctx); err != nil {
		return fmt.Errorf("%w: %w", errDelivery, err)
	}
	if err := s.save(ctx, tenant); err != nil {
		return fmt.Errorf("save tenant: %w", err)
	}
	return nil
}

func (s *SyncService) save(ctx context.Context, tenant *domain.TenantAccount) error {
	if !s.config.PersistEnabled() {
		s.logger.Info("persistence disabled, skipping save", "hub_id", tenant.HubID)
		return nil
	}
	return s.tenants.Save(ctx, tenant)
}
