package opplinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Oppline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Opportunity represents the API opportunity model (partial).
type Opportunity struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	CustomerID          string             `json:"customer_id"`
	SalesManagerID      string             `json:"sales_manager_id"`
	ARRCents            int64              `json:"arr_cents"`
	Priority            string             `json:"priority"`
	Status              string             `json:"status"`
	SelectedArchitectID string             `json:"selected_architect_id,omitempty"`
	Skills              []SkillRequirement `json:"skills,omitempty"`
	Version             int64              `json:"version"`
	CreatedAt           string             `json:"created_at"`
	UpdatedAt           string             `json:"updated_at"`
}

// SkillRequirement represents a required skill on an opportunity.
type SkillRequirement struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Importance  string `json:"importance"`
	Proficiency string `json:"proficiency"`
}

// StatusTransition represents one status history entry.
type StatusTransition struct {
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status"`
	ChangedBy  string `json:"changed_by"`
	Reason     string `json:"reason,omitempty"`
	TS         string `json:"ts"`
}

// ChangeRecord represents one field change audit entry.
type ChangeRecord struct {
	ID           int64  `json:"id"`
	FieldChanged string `json:"field_changed"`
	OldValue     string `json:"old_value"`
	NewValue     string `json:"new_value"`
	ChangedBy    string `json:"changed_by"`
	Reason       string `json:"reason,omitempty"`
	TS           string `json:"ts"`
}

// Event represents a log entry.
type Event struct {
	ID            int64          `json:"id"`
	TS            string         `json:"ts"`
	Type          string         `json:"type"`
	OpportunityID string         `json:"opportunity_id"`
	ActorID       string         `json:"actor_id"`
	Payload       map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedOpportunities wraps list responses with cursors.
type PaginatedOpportunities struct {
	Items      []Opportunity `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateOpportunity creates a draft opportunity.
func (c *Client) CreateOpportunity(ctx context.Context, title, description, customerID string, arrCents int64, priority string) (Opportunity, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"customer_id": customerID,
		"arr_cents":   arrCents,
		"priority":    priority,
	}
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, "v1/opportunities", body, &resp)
	return resp, err
}

// GetOpportunity fetches one opportunity by id.
func (c *Client) GetOpportunity(ctx context.Context, id string) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodGet, c.opportunityPath(id, ""), nil, &resp)
	return resp, err
}

// ListOpportunities returns a page of opportunities. Pass an empty status to
// list all.
func (c *Client) ListOpportunities(ctx context.Context, status string, limit int, cursor string) (PaginatedOpportunities, error) {
	endpoint := "v1/opportunities"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedOpportunities
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateOpportunity patches basic fields; nil map values are omitted.
func (c *Client) UpdateOpportunity(ctx context.Context, id string, fields map[string]any) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodPatch, c.opportunityPath(id, ""), fields, &resp)
	return resp, err
}

// SetProblemStatement replaces the structured problem statement.
func (c *Client) SetProblemStatement(ctx context.Context, id string, ps map[string]any) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodPut, c.opportunityPath(id, "problem-statement"), ps, &resp)
	return resp, err
}

// SetTimeline replaces the timeline specification.
func (c *Client) SetTimeline(ctx context.Context, id string, tl map[string]any) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodPut, c.opportunityPath(id, "timeline"), tl, &resp)
	return resp, err
}

// AddSkill adds a skill requirement.
func (c *Client) AddSkill(ctx context.Context, id string, skill SkillRequirement) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, c.opportunityPath(id, "skills"), skill, &resp)
	return resp, err
}

// Submit moves a draft into the matching queue.
func (c *Client) Submit(ctx context.Context, id string) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, c.opportunityPath(id, "submit"), map[string]any{}, &resp)
	return resp, err
}

// ChangeStatus advances the matching pipeline (matching_in_progress or
// matches_found).
func (c *Client) ChangeStatus(ctx context.Context, id, status, reason string) (Opportunity, error) {
	body := map[string]any{"status": status}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, c.opportunityPath(id, "status"), body, &resp)
	return resp, err
}

// Cancel cancels an opportunity; reason is required by the API.
func (c *Client) Cancel(ctx context.Context, id, reason string) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, c.opportunityPath(id, "cancel"), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// Reactivate restores a cancelled opportunity to its prior status.
func (c *Client) Reactivate(ctx context.Context, id, reason string) (Opportunity, error) {
	body := map[string]any{}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, c.opportunityPath(id, "reactivate"), body, &resp)
	return resp, err
}

// SelectArchitect records the chosen architect.
func (c *Client) SelectArchitect(ctx context.Context, id, architectID string) (Opportunity, error) {
	body := map[string]any{"architect_id": architectID}
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, c.opportunityPath(id, "select-architect"), body, &resp)
	return resp, err
}

// Complete finishes an opportunity after architect selection.
func (c *Client) Complete(ctx context.Context, id string) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, c.opportunityPath(id, "complete"), map[string]any{}, &resp)
	return resp, err
}

// Clone copies business fields into a new draft.
func (c *Client) Clone(ctx context.Context, id, title string) (Opportunity, error) {
	body := map[string]any{}
	if title != "" {
		body["title"] = title
	}
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, c.opportunityPath(id, "clone"), body, &resp)
	return resp, err
}

// History returns the status transition history, oldest first. The endpoint
// responds with a bare array, not a paginated envelope.
func (c *Client) History(ctx context.Context, id string) ([]StatusTransition, error) {
	var resp []StatusTransition
	err := c.do(ctx, http.MethodGet, c.opportunityPath(id, "history"), nil, &resp)
	return resp, err
}

// Changes returns the field change audit, newest first.
func (c *Client) Changes(ctx context.Context, id, field string, limit int) ([]ChangeRecord, error) {
	endpoint := c.opportunityPath(id, "changes")
	q := url.Values{}
	if field != "" {
		q.Set("field", field)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []ChangeRecord `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) opportunityPath(id, sub string) string {
	p := fmt.Sprintf("v1/opportunities/%s", url.PathEscape(id))
	if sub != "" {
		p += "/" + strings.TrimLeft(sub, "/")
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
