package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"crm_syncer/internal/domain"
)

type TenantStore struct {
	db        *sqlx.DB
	txManager *TransactionManager
}

func NewTenantStore(db *sqlx.DB, txManager *TransactionManager) *TenantStore {
	return &TenantStore{db: db, txManager: txManager}
}

type accountRow struct {
	HubID          string       `db:"hub_id"`
	RefreshToken   string       `db:"refresh_token"`
	AccessToken    string       `db:"access_token"`
	TokenExpiresAt sql.NullTime `db:"token_expires_at"`
}

type watermarkRow struct {
	HubID        string    `db:"hub_id"`
	ObjectType   string    `db:"object_type"`
	LastPulledAt time.Time `db:"last_pulled_at"`
}

// Load returns every enabled tenant with its watermarks.
func (s *TenantStore) Load(ctx context.Context) ([]*domain.TenantAccount, error) {
	exec := GetExecutor(ctx, s.db)

	var accounts []accountRow
	query := `
		SELECT hub_id, refresh_token, access_token, token_expires_at
		FROM crm_accounts
		WHERE enabled
		ORDER BY hub_id`
	if err := sqlx.SelectContext(ctx, exec, &accounts, query); err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}

	tenants := make([]*domain.TenantAccount, len(accounts))
	byHub := make(map[string]*domain.TenantAccount, len(accounts))
	hubIDs := make([]string, len(accounts))
	for i, a := range accounts {
		t := &domain.TenantAccount{
			HubID:        a.HubID,
			RefreshToken: a.RefreshToken,
			AccessToken:  a.AccessToken,
		}
		if a.TokenExpiresAt.Valid {
			t.TokenExpiresAt = a.TokenExpiresAt.Time
		}
		tenants[i] = t
		byHub[a.HubID] = t
		hubIDs[i] = a.HubID
	}

	var marks []watermarkRow
	query = `
		SELECT hub_id, object_type, last_pulled_at
		FROM sync_watermarks
		WHERE hub_id = ANY($1)`
	if err := sqlx.SelectContext(ctx, exec, &marks, query, pq.Array(hubIDs)); err != nil {
		return nil, fmt.Errorf("select watermarks: %w", err)
	}

	for _, m := range marks {
		if t, ok := byHub[m.HubID]; ok {
			t.SetWatermark(domain.ObjectType(m.ObjectType), m.LastPulledAt)
		}
	}

	return tenants, nil
}

// Save writes the tenant's cached credential and watermarks in one
// transaction. Watermarks never move backwards.
func (s *TenantStore) Save(ctx context.Context, tenant *domain.TenantAccount) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)

		expiresAt := sql.NullTime{Time: tenant.TokenExpiresAt, Valid: !tenant.TokenExpiresAt.IsZero()}
		res, err := exec.ExecContext(txCtx, `
			UPDATE crm_accounts
			SET access_token = $2, token_expires_at = $3, updated_at = NOW()
			WHERE hub_id = $1`,
			tenant.HubID,
			tenant.AccessToken,
			expiresAt,
		)
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("account %s not found", tenant.HubID)
		}

		for objectType, at := range tenant.LastPulled {
			_, err := exec.ExecContext(txCtx, `
				INSERT INTO sync_watermarks (hub_id, object_type, last_pulled_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (hub_id, object_type) DO UPDATE SET
					last_pulled_at = EXCLUDED.last_pulled_at
				WHERE sync_watermarks.last_pulled_at < EXCLUDED.last_pulled_at`,
				tenant.HubID,
				string(objectType),
				at,
			)
			if err != nil {
				return fmt.Errorf("upsert watermark %s: %w", objectType, err)
			}
		}

		return nil
	})
}
