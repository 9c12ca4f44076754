package domain

// Opportunity is the sales-side record of a customer engagement moving from
// draft submission to architect selection. ARR is carried in integer cents;
// floats never touch money.
type Opportunity struct {
	ID                   string                 `json:"id"`
	Title                string                 `json:"title"`
	Description          string                 `json:"description"`
	CustomerID           string                 `json:"customer_id"`
	SalesManagerID       string                 `json:"sales_manager_id"`
	ARRCents             int64                  `json:"arr_cents"`
	Priority             Priority               `json:"priority" enum:"low,medium,high,critical"`
	Status               Status                 `json:"status" enum:"draft,submitted,matching_in_progress,matches_found,architect_selected,completed,cancelled"`
	Notes                string                 `json:"notes,omitempty"`
	Version              int64                  `json:"version"`
	SelectedArchitectID  *string                `json:"selected_architect_id,omitempty"`
	CompletionDate       *string                `json:"completion_date,omitempty" format:"date-time"`
	CancellationDate     *string                `json:"cancellation_date,omitempty" format:"date-time"`
	CancellationReason   *string                `json:"cancellation_reason,omitempty"`
	ReactivationDeadline *string                `json:"reactivation_deadline,omitempty" format:"date-time"`
	ProblemStatement     *ProblemStatement      `json:"problem_statement,omitempty"`
	Timeline             *TimelineSpecification `json:"timeline,omitempty"`
	Skills               []SkillRequirement     `json:"skills,omitempty"`
	CreatedAt            string                 `json:"created_at" format:"date-time"`
	UpdatedAt            string                 `json:"updated_at" format:"date-time"`
}

// ProblemStatement is the narrative a customer signs off before matching.
type ProblemStatement struct {
	Title                 string `json:"title"`
	Description           string `json:"description"`
	BusinessImpact        string `json:"business_impact,omitempty"`
	TechnicalRequirements string `json:"technical_requirements,omitempty"`
	SuccessCriteria       string `json:"success_criteria,omitempty"`
	Constraints           string `json:"constraints,omitempty"`
}

// Complete reports whether every narrative section needed for matching is filled in.
func (p ProblemStatement) Complete() bool {
	return p.Title != "" && p.Description != "" && p.BusinessImpact != "" &&
		p.TechnicalRequirements != "" && p.SuccessCriteria != ""
}

// StatusHistory is one row of the append-only transition log.
// FromStatus is nil only on the creation entry.
type StatusHistory struct {
	ID            int64   `json:"id"`
	OpportunityID string  `json:"opportunity_id"`
	FromStatus    *Status `json:"from_status,omitempty"`
	ToStatus      Status  `json:"to_status"`
	ChangedBy     string  `json:"changed_by"`
	Reason        string  `json:"reason"`
	Notes         string  `json:"notes,omitempty"`
	TS            string  `json:"ts" format:"date-time"`
}

// ChangeRecord is one row of the append-only field audit, one per mutated field.
type ChangeRecord struct {
	ID            int64  `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	FieldChanged  string `json:"field_changed"`
	OldValue      string `json:"old_value"`
	NewValue      string `json:"new_value"`
	ChangedBy     string `json:"changed_by"`
	Reason        string `json:"reason,omitempty"`
	TS            string `json:"ts" format:"date-time"`
}

// Attachment is supporting-material metadata on a problem statement. The
// bytes live elsewhere; only the reference is kept here.
type Attachment struct {
	ID            string `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	FileName      string `json:"file_name"`
	FileType      string `json:"file_type,omitempty"`
	FileSize      int64  `json:"file_size"`
	URL           string `json:"url"`
	UploadedBy    string `json:"uploaded_by"`
	UploadedAt    string `json:"uploaded_at" format:"date-time"`
	Removed       bool   `json:"removed,omitempty"`
}

type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Type          string `json:"type"`
	OpportunityID string `json:"opportunity_id,omitempty"`
	EntityKind    string `json:"entity_kind"`
	EntityID      string `json:"entity_id,omitempty"`
	ActorID       string `json:"actor_id"`
	Payload       string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
