package transform

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"crm_syncer/internal/domain"
)

type Meetings struct {
	concurrency int
	logger      *slog.Logger
}

// NewMeetings creates the meeting strategy. concurrency caps in-flight
// lookups per page.
func NewMeetings(concurrency int, logger *slog.Logger) *Meetings {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Meetings{
		concurrency: concurrency,
		logger:      logger.With("object_type", domain.ObjectMeetings),
	}
}

func (s *Meetings) ObjectType() domain.ObjectType { return domain.ObjectMeetings }

func (s *Meetings) Properties() []string {
	return []string{"hs_meeting_title", "hs_createdate", "hs_lastmodifieddate"}
}

func (s *Meetings) FilterProperty() string { return "hs_lastmodifieddate" }

type attendee struct {
	meeting int
	contact string
	email   string
}

// TransformPage emits one event per (meeting, associated contact) pair.
// Associations and emails are resolved concurrently; events are pushed in
// page order once all lookups finish.
func (s *Meetings) TransformPage(ctx context.Context, page Page) int {
	contacts := make([][]string, len(page.Records))

	var assoc errgroup.Group
	assoc.SetLimit(s.concurrency)
	for i, rec := range page.Records {
		if len(rec.Properties) == 0 {
			continue
		}
		assoc.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ids, err := page.Lookups.MeetingContacts(ctx, rec.ID)
			if err != nil {
				logLookupFailure(s.logger, page.HubID, &domain.LookupError{Op: "meeting_contacts", ID: rec.ID, Err: err})
				return nil
			}
			contacts[i] = ids
			return nil
		})
	}
	_ = assoc.Wait()

	var attendees []attendee
	for i, ids := range contacts {
		for _, id := range ids {
			attendees = append(attendees, attendee{meeting: i, contact: id})
		}
	}

	var lookups errgroup.Group
	lookups.SetLimit(s.concurrency)
	for i := range attendees {
		a := &attendees[i]
		lookups.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			email, err := page.Lookups.ContactEmail(ctx, a.contact)
			if err != nil {
				logLookupFailure(s.logger, page.HubID, &domain.LookupError{Op: "contact_email", ID: a.contact, Err: err})
				return nil
			}
			a.email = email
			return nil
		})
	}
	_ = lookups.Wait()

	emitted := 0
	for _, a := range attendees {
		if a.email == "" {
			s.logger.Debug("contact without email, skipping", "hub_id", page.HubID, "contact_id", a.contact)
			continue
		}
		rec := page.Records[a.meeting]

		ev := NewAction(page.HubID, rec, domain.ObjectMeetings, "Meeting", page.Watermark)
		ev.Identity = a.email
		ev.MeetingProperties = normalizeKeys(FilterProperties(map[string]any{
			"meeting_id":    rec.ID,
			"meeting_title": rec.Properties["hs_meeting_title"],
			"contact_email": a.email,
		}))

		emit(ctx, page, ev)
		emitted++
	}
	return emitted
}
