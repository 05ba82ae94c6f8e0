package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"crm_syncer/internal/domain"
)

type TenantStore interface {
	Load(ctx context.Context) ([]*domain.TenantAccount, error)
	Save(ctx context.Context, tenant *domain.TenantAccount) error
}

type CredentialProvider interface {
	Ensure(ctx context.Context, tenant *domain.TenantAccount) (domain.Credential, error)
	Invalidate(ctx context.Context, tenant *domain.TenantAccount)
}

type Searcher interface {
	Search(ctx context.Context, tenant *domain.TenantAccount, objectType domain.ObjectType, query domain.SearchQuery, expiry time.Time) (*domain.SearchPage, error)
}

type CRMClient interface {
	BatchAssociations(ctx context.Context, accessToken string, from, to domain.ObjectType, ids []string) (map[string][]string, error)
	ContactEmail(ctx context.Context, accessToken, contactID string) (string, error)
}

type Sink interface {
	Accept(ctx context.Context, batch []domain.ActionEvent) error
}
