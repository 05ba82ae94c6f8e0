package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"crm_syncer/internal/domain"
)

const SourceID = "hubspot"

// Config holds HubSpot client configuration.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client talks to the HubSpot OAuth and CRM v3 endpoints. Every call is a
// single attempt; retries belong to the caller.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	logger       *slog.Logger
}

// New creates a new HubSpot client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		logger:       logger.With("source", SourceID),
	}
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (string, time.Duration, error) {
	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + "/oauth/v1/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", 0, fmt.Errorf("refresh token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", 0, fmt.Errorf("token response without access token")
	}
	if tok.Expiry.IsZero() {
		return "", 0, fmt.Errorf("token response without expiry")
	}

	return tok.AccessToken, time.Until(tok.Expiry).Round(time.Second), nil
}

// Search runs one page of a CRM object search.
func (c *Client) Search(ctx context.Context, accessToken string, objectType domain.ObjectType, query domain.SearchQuery) (*domain.SearchPage, error) {
	body := searchRequest{
		FilterGroups: []filterGroup{{
			Filters: []filter{
				{PropertyName: query.FilterProperty, Operator: "GTE", Value: epochMillis(query.From)},
				{PropertyName: query.FilterProperty, Operator: "LTE", Value: epochMillis(query.To)},
			},
		}},
		Sorts:      []sortSpec{{PropertyName: query.FilterProperty, Direction: "ASCENDING"}},
		Properties: query.Properties,
		Limit:      query.Limit,
	}
	if query.After > 0 {
		body.After = strconv.Itoa(query.After)
	}

	var resp searchResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/search", objectType)
	if err := c.postJSON(ctx, accessToken, path, body, &resp); err != nil {
		return nil, err
	}

	page := &domain.SearchPage{
		Results: make([]domain.Record, 0, len(resp.Results)),
	}
	if resp.Paging != nil && resp.Paging.Next != nil {
		// Unparsable cursors are treated as the end of the result set.
		page.NextCursor, _ = strconv.Atoi(resp.Paging.Next.After)
	}

	for _, o := range resp.Results {
		page.Results = append(page.Results, c.toRecord(o))
	}

	c.logger.Debug("search page",
		"object_type", objectType,
		"results", len(page.Results),
		"next_cursor", page.NextCursor,
	)

	return page, nil
}

// BatchAssociations reads associations from one object type to another for
// a set of ids. Ids without associations are absent from the result.
func (c *Client) BatchAssociations(ctx context.Context, accessToken string, from, to domain.ObjectType, ids []string) (map[string][]string, error) {
	result := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	body := batchInput{Inputs: make([]objectID, len(ids))}
	for i, id := range ids {
		body.Inputs[i] = objectID{ID: id}
	}

	var resp associationResponse
	path := fmt.Sprintf("/crm/v3/associations/%s/%s/batch/read", strings.ToUpper(string(from)), strings.ToUpper(string(to)))
	if err := c.postJSON(ctx, accessToken, path, body, &resp); err != nil {
		return nil, err
	}

	for _, a := range resp.Results {
		if a.From == nil {
			continue
		}
		for _, t := range a.To {
			result[a.From.ID] = append(result[a.From.ID], t.ID)
		}
	}

	return result, nil
}

// ContactEmail fetches the email property of a single contact.
func (c *Client) ContactEmail(ctx context.Context, accessToken, contactID string) (string, error) {
	u := fmt.Sprintf("%s/crm/v3/objects/contacts/%s?properties=email", c.baseURL, url.PathEscape(contactID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.authorize(req, accessToken)

	var resp object
	if err := c.do(req, &resp); err != nil {
		return "", err
	}

	if email := resp.Properties["email"]; email != nil {
		return *email, nil
	}
	return "", nil
}

func (c *Client) postJSON(ctx context.Context, accessToken, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, accessToken)

	return c.do(req, out)
}

func (c *Client) authorize(req *http.Request, accessToken string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CRMSyncer/1.0")
	req.Header.Set("Authorization", "Bearer "+accessToken)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr errorResponse
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	}
	return fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, msg)
}

func (c *Client) toRecord(o object) domain.Record {
	rec := domain.Record{
		ID:         o.ID,
		Properties: make(map[string]string, len(o.Properties)),
	}

	for k, v := range o.Properties {
		if v != nil {
			rec.Properties[k] = *v
		}
	}

	rec.CreatedAt = c.parseTime(o.ID, "createdAt", o.CreatedAt)
	rec.UpdatedAt = c.parseTime(o.ID, "updatedAt", o.UpdatedAt)

	return rec
}

func (c *Client) parseTime(id, field, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		c.logger.Warn("failed to parse date",
			"object_id", id,
			"field", field,
			"value", value,
		)
		return time.Time{}
	}
	return t
}

func epochMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}
