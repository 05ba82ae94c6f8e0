package transform

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"crm_syncer/internal/domain"
)

type Contacts struct {
	logger *slog.Logger
}

func NewContacts(logger *slog.Logger) *Contacts {
	return &Contacts{logger: logger.With("object_type", domain.ObjectContacts)}
}

func (s *Contacts) ObjectType() domain.ObjectType { return domain.ObjectContacts }

func (s *Contacts) Properties() []string {
	return []string{"firstname", "lastname", "jobtitle", "email", "hubspotscore", "hs_lead_status", "hs_analytics_source", "hs_latest_source"}
}

func (s *Contacts) FilterProperty() string { return "lastmodifieddate" }

// TransformPage resolves company associations for the whole page with one
// batched call, then emits one event per contact.
func (s *Contacts) TransformPage(ctx context.Context, page Page) int {
	ids := make([]string, 0, len(page.Records))
	for _, rec := range page.Records {
		if usableContact(rec) {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return 0
	}

	companies, err := page.Lookups.ContactCompanies(ctx, ids)
	if err != nil {
		logLookupFailure(s.logger, page.HubID, &domain.LookupError{Op: "contact_companies", ID: strings.Join(ids, ","), Err: err})
		companies = map[string]string{}
	}

	emitted := 0
	for _, rec := range page.Records {
		if !usableContact(rec) {
			continue
		}

		ev := NewAction(page.HubID, rec, domain.ObjectContacts, "Contact", page.Watermark)
		ev.Identity = rec.Properties["email"]

		props := map[string]any{
			"company_id":     companies[rec.ID],
			"contact_name":   contactName(rec.Properties),
			"contact_title":  rec.Properties["jobtitle"],
			"contact_source": rec.Properties["hs_analytics_source"],
			"contact_status": rec.Properties["hs_lead_status"],
			"contact_score":  parseScore(rec.Properties["hubspotscore"]),
		}
		ev.UserProperties = normalizeKeys(FilterProperties(props))

		emit(ctx, page, ev)
		emitted++
	}
	return emitted
}

func usableContact(rec domain.Record) bool {
	email := rec.Properties["email"]
	return email != "" && !isPlaceholder(email)
}

func contactName(props map[string]string) string {
	return strings.TrimSpace(props["firstname"] + " " + props["lastname"])
}

// parseScore reads the integer part of a score. Anything unparsable is 0.
func parseScore(v string) int {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return 0
}
