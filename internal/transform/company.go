package transform

import (
	"context"
	"log/slog"

	"crm_syncer/internal/domain"
)

type Companies struct {
	logger *slog.Logger
}

func NewCompanies(logger *slog.Logger) *Companies {
	return &Companies{logger: logger.With("object_type", domain.ObjectCompanies)}
}

func (s *Companies) ObjectType() domain.ObjectType { return domain.ObjectCompanies }

func (s *Companies) Properties() []string {
	return []string{"name", "domain", "country", "industry", "description", "annualrevenue", "numberofemployees", "hs_lead_status"}
}

func (s *Companies) FilterProperty() string { return "hs_lastmodifieddate" }

func (s *Companies) TransformPage(ctx context.Context, page Page) int {
	emitted := 0
	for _, rec := range page.Records {
		if len(rec.Properties) == 0 {
			continue
		}

		ev := NewAction(page.HubID, rec, domain.ObjectCompanies, "Company", page.Watermark)
		ev.Identity = rec.ID
		ev.CompanyProperties = normalizeKeys(map[string]any{
			"company_id":       rec.ID,
			"company_domain":   rec.Properties["domain"],
			"company_industry": rec.Properties["industry"],
		})

		emit(ctx, page, ev)
		emitted++
	}
	return emitted
}
