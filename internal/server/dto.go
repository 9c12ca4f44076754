package server

import (
	"encoding/json"

	"oppline/internal/domain"
)

// Request payloads

type CreateOpportunityRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	CustomerID     string `json:"customer_id"`
	SalesManagerID string `json:"sales_manager_id,omitempty"`
	ARRCents       int64  `json:"arr_cents" minimum:"0"`
	Priority       string `json:"priority" enum:"low,medium,high,critical"`
}

type UpdateOpportunityRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ARRCents    *int64  `json:"arr_cents,omitempty" minimum:"0"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Notes       *string `json:"notes,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

type ProblemStatementRequest struct {
	Title                 string `json:"title"`
	Description           string `json:"description"`
	BusinessImpact        string `json:"business_impact,omitempty"`
	TechnicalRequirements string `json:"technical_requirements,omitempty"`
	SuccessCriteria       string `json:"success_criteria,omitempty"`
	Constraints           string `json:"constraints,omitempty"`
	Reason                string `json:"reason,omitempty"`
}

type TimelineRequest struct {
	StartDate    string   `json:"start_date,omitempty" format:"date"`
	EndDate      string   `json:"end_date,omitempty" format:"date"`
	DurationDays int      `json:"duration_days,omitempty"`
	Flexibility  string   `json:"flexibility" enum:"fixed,flexible,negotiable"`
	SpecificDays []string `json:"specific_days,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

type SkillRequirementRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category" enum:"technical,soft,industry"`
	Importance  string `json:"importance" enum:"must_have,nice_to_have"`
	Proficiency string `json:"proficiency" enum:"beginner,intermediate,advanced,expert"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" enum:"matching_in_progress,matches_found"`
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type ReactivateRequest struct {
	Reason string `json:"reason,omitempty"`
}

type SelectArchitectRequest struct {
	ArchitectID string `json:"architect_id"`
}

type CloneRequest struct {
	Title string `json:"title,omitempty"`
}

type AddAttachmentRequest struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size" minimum:"1"`
	URL      string `json:"url"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

type OpportunityResponse struct {
	ID                   string                        `json:"id"`
	Title                string                        `json:"title"`
	Description          string                        `json:"description"`
	CustomerID           string                        `json:"customer_id"`
	SalesManagerID       string                        `json:"sales_manager_id"`
	ARRCents             int64                         `json:"arr_cents"`
	Priority             string                        `json:"priority" enum:"low,medium,high,critical"`
	Status               string                        `json:"status" enum:"draft,submitted,matching_in_progress,matches_found,architect_selected,completed,cancelled"`
	Notes                string                        `json:"notes,omitempty"`
	Version              int64                         `json:"version"`
	SelectedArchitectID  *string                       `json:"selected_architect_id,omitempty"`
	CompletionDate       *string                       `json:"completion_date,omitempty" format:"date-time"`
	CancellationDate     *string                       `json:"cancellation_date,omitempty" format:"date-time"`
	CancellationReason   *string                       `json:"cancellation_reason,omitempty"`
	ReactivationDeadline *string                       `json:"reactivation_deadline,omitempty" format:"date-time"`
	ProblemStatement     *domain.ProblemStatement      `json:"problem_statement,omitempty"`
	Timeline             *domain.TimelineSpecification `json:"timeline,omitempty"`
	Skills               []SkillRequirementResponse    `json:"skills"`
	CreatedAt            string                        `json:"created_at" format:"date-time"`
	UpdatedAt            string                        `json:"updated_at" format:"date-time"`
}

type SkillRequirementResponse struct {
	Name        string `json:"name"`
	Category    string `json:"category" enum:"technical,soft,industry"`
	Importance  string `json:"importance" enum:"must_have,nice_to_have"`
	Proficiency string `json:"proficiency" enum:"beginner,intermediate,advanced,expert"`
}

type StatusHistoryResponse struct {
	ID            int64   `json:"id"`
	OpportunityID string  `json:"opportunity_id"`
	FromStatus    *string `json:"from_status,omitempty"`
	ToStatus      string  `json:"to_status"`
	ChangedBy     string  `json:"changed_by"`
	Reason        string  `json:"reason,omitempty"`
	Notes         string  `json:"notes,omitempty"`
	TS            string  `json:"ts" format:"date-time"`
}

type ChangeRecordResponse struct {
	ID            int64  `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	FieldChanged  string `json:"field_changed"`
	OldValue      string `json:"old_value,omitempty"`
	NewValue      string `json:"new_value,omitempty"`
	ChangedBy     string `json:"changed_by"`
	Reason        string `json:"reason,omitempty"`
	TS            string `json:"ts" format:"date-time"`
}

type AttachmentResponse struct {
	ID            string `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	FileName      string `json:"file_name"`
	FileType      string `json:"file_type,omitempty"`
	FileSize      int64  `json:"file_size"`
	URL           string `json:"url"`
	UploadedBy    string `json:"uploaded_by"`
	UploadedAt    string `json:"uploaded_at" format:"date-time"`
}

type EventResponse struct {
	ID            int64          `json:"id"`
	TS            string         `json:"ts" format:"date-time"`
	Type          string         `json:"type"`
	OpportunityID string         `json:"opportunity_id,omitempty"`
	EntityKind    string         `json:"entity_kind"`
	EntityID      string         `json:"entity_id,omitempty"`
	ActorID       string         `json:"actor_id"`
	Payload       map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Source  string   `json:"source,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type StatusCountsResponse struct {
	Counts map[string]int `json:"counts"`
}

type paginatedOpportunities struct {
	Items      []OpportunityResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type paginatedChangeRecords struct {
	Items      []ChangeRecordResponse `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func opportunityResponse(o domain.Opportunity) OpportunityResponse {
	skills := make([]SkillRequirementResponse, 0, len(o.Skills))
	for _, s := range o.Skills {
		resp := SkillRequirementResponse{
			Name:       s.Name,
			Category:   string(s.Category),
			Importance: string(s.Importance),
		}
		if s.Proficiency != nil {
			resp.Proficiency = string(*s.Proficiency)
		}
		skills = append(skills, resp)
	}
	return OpportunityResponse{
		ID:                   o.ID,
		Title:                o.Title,
		Description:          o.Description,
		CustomerID:           o.CustomerID,
		SalesManagerID:       o.SalesManagerID,
		ARRCents:             o.ARRCents,
		Priority:             string(o.Priority),
		Status:               string(o.Status),
		Notes:                o.Notes,
		Version:              o.Version,
		SelectedArchitectID:  o.SelectedArchitectID,
		CompletionDate:       o.CompletionDate,
		CancellationDate:     o.CancellationDate,
		CancellationReason:   o.CancellationReason,
		ReactivationDeadline: o.ReactivationDeadline,
		ProblemStatement:     o.ProblemStatement,
		Timeline:             o.Timeline,
		Skills:               skills,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func mapOpportunities(items []domain.Opportunity) []OpportunityResponse {
	out := make([]OpportunityResponse, 0, len(items))
	for _, o := range items {
		out = append(out, opportunityResponse(o))
	}
	return out
}

func historyResponse(h domain.StatusHistory) StatusHistoryResponse {
	var from *string
	if h.FromStatus != nil {
		s := string(*h.FromStatus)
		from = &s
	}
	return StatusHistoryResponse{
		ID:            h.ID,
		OpportunityID: h.OpportunityID,
		FromStatus:    from,
		ToStatus:      string(h.ToStatus),
		ChangedBy:     h.ChangedBy,
		Reason:        h.Reason,
		Notes:         h.Notes,
		TS:            h.TS,
	}
}

func changeRecordResponse(c domain.ChangeRecord) ChangeRecordResponse {
	return ChangeRecordResponse{
		ID:            c.ID,
		OpportunityID: c.OpportunityID,
		FieldChanged:  c.FieldChanged,
		OldValue:      c.OldValue,
		NewValue:      c.NewValue,
		ChangedBy:     c.ChangedBy,
		Reason:        c.Reason,
		TS:            c.TS,
	}
}

func attachmentResponse(a domain.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:            a.ID,
		OpportunityID: a.OpportunityID,
		FileName:      a.FileName,
		FileType:      a.FileType,
		FileSize:      a.FileSize,
		URL:           a.URL,
		UploadedBy:    a.UploadedBy,
		UploadedAt:    a.UploadedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:            e.ID,
		TS:            e.TS,
		Type:          e.Type,
		OpportunityID: e.OpportunityID,
		EntityKind:    e.EntityKind,
		EntityID:      e.EntityID,
		ActorID:       e.ActorID,
		Payload:       decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
