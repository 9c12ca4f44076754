package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"oppline/internal/config"
	"oppline/internal/domain"
	"oppline/internal/engine/auth"
	"oppline/internal/events"
	"oppline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) cfg() config.ValidationConfig {
	if e.Config == nil {
		return config.Default().Validation
	}
	return e.Config.Validation
}

// CreateOptions are parameters for creating an opportunity.
type CreateOptions struct {
	Title          string
	Description    string
	CustomerID     string
	SalesManagerID string
	ARRCents       int64
	Priority       string
	Actor          auth.Actor
}

// Create opens a new draft opportunity and writes its initial history entry.
func (e Engine) Create(ctx context.Context, opts CreateOptions) (domain.Opportunity, error) {
	if err := auth.RequireCreate(opts.Actor); err != nil {
		return domain.Opportunity{}, err
	}
	if errs := validateCreate(opts); len(errs) > 0 {
		return domain.Opportunity{}, domain.NewValidationError("create opportunity", errs)
	}
	now := e.now().UTC().Format(time.RFC3339)
	o := domain.Opportunity{
		ID:             uuid.New().String(),
		Title:          strings.TrimSpace(opts.Title),
		Description:    opts.Description,
		CustomerID:     opts.CustomerID,
		SalesManagerID: opts.SalesManagerID,
		ARRCents:       opts.ARRCents,
		Priority:       domain.Priority(opts.Priority),
		Status:         domain.StatusDraft,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertOpportunity(ctx, tx, o); err != nil {
		return domain.Opportunity{}, fmt.Errorf("insert opportunity: %w", err)
	}
	if err := e.Repo.InsertStatusHistory(ctx, tx, domain.StatusHistory{
		OpportunityID: o.ID,
		ToStatus:      o.Status,
		ChangedBy:     opts.Actor.ID,
		Reason:        "Opportunity created",
		TS:            now,
	}); err != nil {
		return domain.Opportunity{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeCreated, o.ID, "opportunity", o.ID, opts.Actor.ID, events.EventPayload{
		"title":  o.Title,
		"status": o.Status,
	}); err != nil {
		return domain.Opportunity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Opportunity{}, err
	}
	return o, nil
}

// UpdateOptions carries a partial edit of basic fields. Nil members are left
// untouched; provided-but-equal values are no-ops and produce no audit rows.
type UpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	ARRCents    *int64
	Priority    *string
	Notes       *string
	Reason      string
	Actor       auth.Actor
}

// UpdateBasicInfo applies field edits under the modification guard, writing
// one change record per field that actually changed.
func (e Engine) UpdateBasicInfo(ctx context.Context, opts UpdateOptions) (domain.Opportunity, error) {
	if opts.Priority != nil {
		if _, err := domain.ParsePriority(*opts.Priority); err != nil {
			return domain.Opportunity{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, opts.ID)
	if err != nil {
		return o, err
	}
	if err := auth.RequireManage(opts.Actor, o.SalesManagerID, "modify this opportunity"); err != nil {
		return o, err
	}

	type fieldEdit struct {
		field    string
		oldValue string
		newValue string
		apply    func()
	}
	var edits []fieldEdit
	var errs []string

	consider := func(field, oldValue, newValue string, apply func()) {
		if oldValue == newValue {
			return
		}
		if !domain.FieldModifiable(o.Status, o.Timeline, field) {
			errs = append(errs, fmt.Sprintf("field %s cannot be modified while status is %s", field, o.Status))
			return
		}
		edits = append(edits, fieldEdit{field: field, oldValue: oldValue, newValue: newValue, apply: apply})
	}

	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			errs = append(errs, "title must not be empty")
		} else {
			consider(domain.FieldTitle, o.Title, title, func() { o.Title = title })
		}
	}
	if opts.Description != nil {
		desc := *opts.Description
		if strings.TrimSpace(desc) == "" {
			errs = append(errs, "description must not be empty")
		} else {
			consider(domain.FieldDescription, o.Description, desc, func() { o.Description = desc })
		}
	}
	if opts.ARRCents != nil {
		arr := *opts.ARRCents
		if arr < 0 {
			errs = append(errs, "annual recurring revenue must not be negative")
		} else {
			consider(domain.FieldARRCents, strconv.FormatInt(o.ARRCents, 10), strconv.FormatInt(arr, 10), func() { o.ARRCents = arr })
		}
	}
	if opts.Priority != nil {
		p := domain.Priority(*opts.Priority)
		consider(domain.FieldPriority, string(o.Priority), string(p), func() { o.Priority = p })
	}
	if opts.Notes != nil {
		n := *opts.Notes
		consider(domain.FieldNotes, o.Notes, n, func() { o.Notes = n })
	}
	if len(errs) > 0 {
		return o, domain.NewValidationError("update opportunity", errs)
	}
	if len(edits) == 0 {
		return o, nil
	}

	now := e.now().UTC().Format(time.RFC3339)
	var changed []string
	for _, ed := range edits {
		ed.apply()
		changed = append(changed, ed.field)
		if err := e.Repo.InsertChangeRecord(ctx, tx, domain.ChangeRecord{
			OpportunityID: o.ID,
			FieldChanged:  ed.field,
			OldValue:      ed.oldValue,
			NewValue:      ed.newValue,
			ChangedBy:     opts.Actor.ID,
			Reason:        opts.Reason,
			TS:            now,
		}); err != nil {
			return o, err
		}
	}
	o.UpdatedAt = now
	if err := e.Repo.UpdateOpportunity(ctx, tx, &o); err != nil {
		return o, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeUpdated, o.ID, "opportunity", o.ID, opts.Actor.ID, events.EventPayload{
		"fields": changed,
	}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// SetProblemStatement replaces the problem statement under the modification guard.
func (e Engine) SetProblemStatement(ctx context.Context, id string, ps domain.ProblemStatement, actor auth.Actor, reason string) (domain.Opportunity, error) {
	if strings.TrimSpace(ps.Title) == "" || strings.TrimSpace(ps.Description) == "" {
		return domain.Opportunity{}, errors.New("problem statement title and description are required")
	}
	return e.mutateStructured(ctx, id, domain.FieldProblemStatement, actor, reason, func(o *domain.Opportunity) (string, string, error) {
		old := stringifyJSON(o.ProblemStatement)
		o.ProblemStatement = &ps
		return old, stringifyJSON(&ps), nil
	})
}

// SetTimeline replaces the timeline under the modification guard.
func (e Engine) SetTimeline(ctx context.Context, id string, tl domain.TimelineSpecification, actor auth.Actor, reason string) (domain.Opportunity, error) {
	return e.mutateStructured(ctx, id, domain.FieldTimeline, actor, reason, func(o *domain.Opportunity) (string, string, error) {
		old := stringifyJSON(o.Timeline)
		o.Timeline = &tl
		return old, stringifyJSON(&tl), nil
	})
}

// AddSkill appends a skill requirement; duplicates by (name, category) are rejected.
func (e Engine) AddSkill(ctx context.Context, id string, skill domain.SkillRequirement, actor auth.Actor, reason string) (domain.Opportunity, error) {
	return e.mutateStructured(ctx, id, domain.FieldSkills, actor, reason, func(o *domain.Opportunity) (string, string, error) {
		for _, s := range o.Skills {
			if s.Matches(skill) {
				return "", "", domain.NewValidationError("add skill requirement",
					[]string{fmt.Sprintf("skill requirement %s (%s) already present", skill.Name, skill.Category)})
			}
		}
		old := stringifySkills(o.Skills)
		o.Skills = append(o.Skills, skill)
		return old, stringifySkills(o.Skills), nil
	})
}

// RemoveSkill deletes a skill requirement by name and category.
func (e Engine) RemoveSkill(ctx context.Context, id, name, category string, actor auth.Actor, reason string) (domain.Opportunity, error) {
	cat, err := domain.ParseSkillCategory(category)
	if err != nil {
		return domain.Opportunity{}, err
	}
	target := domain.SkillRequirement{Name: name, Category: cat}
	return e.mutateStructured(ctx, id, domain.FieldSkills, actor, reason, func(o *domain.Opportunity) (string, string, error) {
		idx := -1
		for i, s := range o.Skills {
			if s.Matches(target) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", "", domain.NewValidationError("remove skill requirement",
				[]string{fmt.Sprintf("skill requirement %s (%s) not found", name, category)})
		}
		old := stringifySkills(o.Skills)
		o.Skills = append(o.Skills[:idx], o.Skills[idx+1:]...)
		return old, stringifySkills(o.Skills), nil
	})
}

// mutateStructured is the shared path for problem statement, timeline and
// skill edits: guard check, single change record, versioned save and event,
// all in one transaction.
func (e Engine) mutateStructured(ctx context.Context, id, field string, actor auth.Actor, reason string, mutate func(*domain.Opportunity) (oldValue, newValue string, err error)) (domain.Opportunity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, id)
	if err != nil {
		return o, err
	}
	if err := auth.RequireManage(actor, o.SalesManagerID, "modify this opportunity"); err != nil {
		return o, err
	}
	if !domain.FieldModifiable(o.Status, o.Timeline, field) {
		return o, domain.NewValidationError("update opportunity",
			[]string{fmt.Sprintf("field %s cannot be modified while status is %s", field, o.Status)})
	}
	oldValue, newValue, err := mutate(&o)
	if err != nil {
		return o, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	o.UpdatedAt = now
	if err := e.Repo.UpdateOpportunity(ctx, tx, &o); err != nil {
		return o, err
	}
	if err := e.Repo.InsertChangeRecord(ctx, tx, domain.ChangeRecord{
		OpportunityID: o.ID,
		FieldChanged:  field,
		OldValue:      oldValue,
		NewValue:      newValue,
		ChangedBy:     actor.ID,
		Reason:        reason,
		TS:            now,
	}); err != nil {
		return o, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeUpdated, o.ID, "opportunity", o.ID, actor.ID, events.EventPayload{
		"fields": []string{field},
	}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// Submit moves a draft into the matching pipeline after the full submission
// rule set passes. Every failed rule is reported, not just the first.
func (e Engine) Submit(ctx context.Context, id string, actor auth.Actor) (domain.Opportunity, error) {
	return e.transition(ctx, transitionRequest{
		ID:        id,
		Target:    domain.StatusSubmitted,
		Actor:     actor,
		Reason:    "Submitted for matching",
		EventType: events.TypeSubmitted,
		Validate: func(o domain.Opportunity) []string {
			return validateSubmission(o, e.cfg().ProblemStatementMinLength)
		},
	})
}

// StartMatching marks the matching process as underway.
func (e Engine) StartMatching(ctx context.Context, id string, actor auth.Actor) (domain.Opportunity, error) {
	return e.transition(ctx, transitionRequest{
		ID:        id,
		Target:    domain.StatusMatchingInProgress,
		Actor:     actor,
		Reason:    "Matching started",
		EventType: events.TypeStatusChanged,
	})
}

// RecordMatchesFound marks that candidate architects are available.
func (e Engine) RecordMatchesFound(ctx context.Context, id string, actor auth.Actor) (domain.Opportunity, error) {
	return e.transition(ctx, transitionRequest{
		ID:        id,
		Target:    domain.StatusMatchesFound,
		Actor:     actor,
		Reason:    "Matches found",
		EventType: events.TypeStatusChanged,
	})
}

// Cancel stops work on an opportunity and opens the reactivation window.
func (e Engine) Cancel(ctx context.Context, id, reason string, actor auth.Actor) (domain.Opportunity, error) {
	return e.transition(ctx, transitionRequest{
		ID:        id,
		Target:    domain.StatusCancelled,
		Actor:     actor,
		Reason:    reason,
		EventType: events.TypeCancelled,
		Validate: func(o domain.Opportunity) []string {
			return validateCancellation(o, reason)
		},
		Apply: func(o *domain.Opportunity, now time.Time) {
			ts := now.UTC().Format(time.RFC3339)
			deadline := now.UTC().AddDate(0, 0, e.cfg().ReactivationWindowDays).Format(time.RFC3339)
			r := reason
			o.CancellationDate = &ts
			o.CancellationReason = &r
			o.ReactivationDeadline = &deadline
		},
	})
}

// Reactivate returns a cancelled opportunity to the status it held before
// cancellation, found by walking the history backwards. An opportunity
// cancelled after submission therefore resumes as submitted, not draft.
func (e Engine) Reactivate(ctx context.Context, id, reason string, actor auth.Actor) (domain.Opportunity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, id)
	if err != nil {
		return o, err
	}
	if errs := validateReactivation(o, e.now().UTC(), e.cfg().ReactivationWindowDays); len(errs) > 0 {
		return o, domain.NewValidationError("reactivate opportunity", errs)
	}
	history, err := e.Repo.ListStatusHistoryTx(ctx, tx, id)
	if err != nil {
		return o, err
	}
	target := domain.StatusDraft
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ToStatus != domain.StatusCancelled {
			target = history[i].ToStatus
			break
		}
	}
	if reason == "" {
		reason = "Reactivated"
	}
	return e.transitionTx(ctx, tx, o, transitionRequest{
		ID:        id,
		Target:    target,
		Actor:     actor,
		Reason:    reason,
		EventType: events.TypeReactivated,
		Apply: func(o *domain.Opportunity, _ time.Time) {
			o.CancellationDate = nil
			o.CancellationReason = nil
			o.ReactivationDeadline = nil
		},
	})
}

// SelectArchitect records the chosen architect and advances the status.
func (e Engine) SelectArchitect(ctx context.Context, id, architectID string, actor auth.Actor) (domain.Opportunity, error) {
	return e.transition(ctx, transitionRequest{
		ID:        id,
		Target:    domain.StatusArchitectSelected,
		Actor:     actor,
		Reason:    "Architect selected",
		EventType: events.TypeArchitectSelected,
		Validate: func(o domain.Opportunity) []string {
			return validateArchitectSelection(o, architectID)
		},
		Apply: func(o *domain.Opportunity, _ time.Time) {
			a := architectID
			o.SelectedArchitectID = &a
		},
	})
}

// Complete closes out a delivered opportunity.
func (e Engine) Complete(ctx context.Context, id string, actor auth.Actor) (domain.Opportunity, error) {
	return e.transition(ctx, transitionRequest{
		ID:        id,
		Target:    domain.StatusCompleted,
		Actor:     actor,
		Reason:    "Engagement completed",
		EventType: events.TypeCompleted,
		Validate: func(o domain.Opportunity) []string {
			return validateCompletion(o)
		},
		Apply: func(o *domain.Opportunity, now time.Time) {
			ts := now.UTC().Format(time.RFC3339)
			o.CompletionDate = &ts
		},
	})
}

// ChangeStatus is the generic transition entry point used by the API; the
// named wrappers route through the same core.
func (e Engine) ChangeStatus(ctx context.Context, id string, target domain.Status, actor auth.Actor, reason, notes string) (domain.Opportunity, error) {
	switch target {
	case domain.StatusSubmitted, domain.StatusCancelled, domain.StatusCompleted, domain.StatusArchitectSelected:
		return domain.Opportunity{}, fmt.Errorf("status %s requires its dedicated operation", target)
	}
	if reason == "" {
		reason = "Status changed"
	}
	return e.transition(ctx, transitionRequest{
		ID:        id,
		Target:    target,
		Actor:     actor,
		Reason:    reason,
		Notes:     notes,
		EventType: events.TypeStatusChanged,
	})
}

type transitionRequest struct {
	ID        string
	Target    domain.Status
	Actor     auth.Actor
	Reason    string
	Notes     string
	EventType string
	Validate  func(domain.Opportunity) []string
	Apply     func(*domain.Opportunity, time.Time)
}

func (e Engine) transition(ctx context.Context, req transitionRequest) (domain.Opportunity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, req.ID)
	if err != nil {
		return o, err
	}
	return e.transitionTx(ctx, tx, o, req)
}

// transitionTx is the single choke point for status changes. An accepted
// change writes exactly one status history row; a rejected one leaves no
// trace because the whole transaction rolls back.
func (e Engine) transitionTx(ctx context.Context, tx *sql.Tx, o domain.Opportunity, req transitionRequest) (domain.Opportunity, error) {
	if err := auth.RequireManage(req.Actor, o.SalesManagerID, fmt.Sprintf("change this opportunity to %s", req.Target)); err != nil {
		return o, err
	}
	if req.Validate != nil {
		if errs := req.Validate(o); len(errs) > 0 {
			return o, domain.NewValidationError(fmt.Sprintf("change status to %s", req.Target), errs)
		}
	}
	if !domain.CanTransition(o.Status, req.Target) {
		return o, domain.NewValidationError(fmt.Sprintf("change status to %s", req.Target),
			[]string{fmt.Sprintf("cannot transition from %s to %s", o.Status, req.Target)})
	}
	from := o.Status
	now := e.now()
	nowStr := now.UTC().Format(time.RFC3339)
	if req.Apply != nil {
		req.Apply(&o, now)
	}
	o.Status = req.Target
	o.UpdatedAt = nowStr
	if err := e.Repo.UpdateOpportunity(ctx, tx, &o); err != nil {
		return o, err
	}
	if err := e.Repo.InsertStatusHistory(ctx, tx, domain.StatusHistory{
		OpportunityID: o.ID,
		FromStatus:    &from,
		ToStatus:      o.Status,
		ChangedBy:     req.Actor.ID,
		Reason:        req.Reason,
		Notes:         req.Notes,
		TS:            nowStr,
	}); err != nil {
		return o, err
	}
	if err := e.Events.Append(ctx, tx, req.EventType, o.ID, "opportunity", o.ID, req.Actor.ID, events.EventPayload{
		"from_status": from,
		"to_status":   o.Status,
		"reason":      req.Reason,
	}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// Clone copies the business fields of an opportunity into a fresh draft owned
// by the calling actor. History, change records and attachments stay behind.
func (e Engine) Clone(ctx context.Context, id, newTitle string, actor auth.Actor) (domain.Opportunity, error) {
	if err := auth.RequireCreate(actor); err != nil {
		return domain.Opportunity{}, err
	}
	src, err := e.Repo.GetOpportunity(ctx, id)
	if err != nil {
		return domain.Opportunity{}, err
	}
	title := strings.TrimSpace(newTitle)
	if title == "" {
		title = src.Title + " (copy)"
	}
	now := e.now().UTC().Format(time.RFC3339)
	clone := domain.Opportunity{
		ID:               uuid.New().String(),
		Title:            title,
		Description:      src.Description,
		CustomerID:       src.CustomerID,
		SalesManagerID:   src.SalesManagerID,
		ARRCents:         src.ARRCents,
		Priority:         src.Priority,
		Status:           domain.StatusDraft,
		Version:          1,
		ProblemStatement: src.ProblemStatement,
		Timeline:         src.Timeline,
		Skills:           append([]domain.SkillRequirement(nil), src.Skills...),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertOpportunity(ctx, tx, clone); err != nil {
		return domain.Opportunity{}, fmt.Errorf("insert clone: %w", err)
	}
	if err := e.Repo.InsertStatusHistory(ctx, tx, domain.StatusHistory{
		OpportunityID: clone.ID,
		ToStatus:      clone.Status,
		ChangedBy:     actor.ID,
		Reason:        "Cloned from " + src.ID,
		TS:            now,
	}); err != nil {
		return domain.Opportunity{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeCloned, clone.ID, "opportunity", clone.ID, actor.ID, events.EventPayload{
		"source_id": src.ID,
		"title":     clone.Title,
	}); err != nil {
		return domain.Opportunity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Opportunity{}, err
	}
	return clone, nil
}

// AttachmentOptions describe supporting material added to a problem statement.
type AttachmentOptions struct {
	OpportunityID string
	FileName      string
	FileType      string
	FileSize      int64
	URL           string
	Actor         auth.Actor
}

// AddAttachment records attachment metadata. The guard for the problem
// statement applies: attachments freeze together with it.
func (e Engine) AddAttachment(ctx context.Context, opts AttachmentOptions) (domain.Attachment, error) {
	var errs []string
	if strings.TrimSpace(opts.FileName) == "" {
		errs = append(errs, "file_name is required")
	}
	if strings.TrimSpace(opts.URL) == "" {
		errs = append(errs, "url is required")
	}
	if opts.FileSize <= 0 {
		errs = append(errs, "file_size must be positive")
	} else if opts.FileSize > e.cfg().MaxAttachmentBytes {
		errs = append(errs, fmt.Sprintf("file_size exceeds limit of %d bytes", e.cfg().MaxAttachmentBytes))
	}
	if len(errs) > 0 {
		return domain.Attachment{}, domain.NewValidationError("add attachment", errs)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attachment{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, opts.OpportunityID)
	if err != nil {
		return domain.Attachment{}, err
	}
	if err := auth.RequireManage(opts.Actor, o.SalesManagerID, "modify this opportunity"); err != nil {
		return domain.Attachment{}, err
	}
	if !domain.FieldModifiable(o.Status, o.Timeline, domain.FieldProblemStatement) {
		return domain.Attachment{}, domain.NewValidationError("add attachment",
			[]string{fmt.Sprintf("attachments cannot be modified while status is %s", o.Status)})
	}
	a := domain.Attachment{
		ID:            uuid.New().String(),
		OpportunityID: o.ID,
		FileName:      opts.FileName,
		FileType:      opts.FileType,
		FileSize:      opts.FileSize,
		URL:           opts.URL,
		UploadedBy:    opts.Actor.ID,
		UploadedAt:    e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAttachment(ctx, tx, a); err != nil {
		return domain.Attachment{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeAttachmentAdded, o.ID, "attachment", a.ID, opts.Actor.ID, events.EventPayload{
		"file_name": a.FileName,
	}); err != nil {
		return domain.Attachment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Attachment{}, err
	}
	return a, nil
}

// RemoveAttachment soft-removes attachment metadata.
func (e Engine) RemoveAttachment(ctx context.Context, opportunityID, attachmentID string, actor auth.Actor) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, opportunityID)
	if err != nil {
		return err
	}
	if err := auth.RequireManage(actor, o.SalesManagerID, "modify this opportunity"); err != nil {
		return err
	}
	if !domain.FieldModifiable(o.Status, o.Timeline, domain.FieldProblemStatement) {
		return domain.NewValidationError("remove attachment",
			[]string{fmt.Sprintf("attachments cannot be modified while status is %s", o.Status)})
	}
	if err := e.Repo.MarkAttachmentRemoved(ctx, tx, opportunityID, attachmentID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeAttachmentRemoved, o.ID, "attachment", attachmentID, actor.ID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetOpportunity loads one opportunity with its skill requirements.
func (e Engine) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	return e.Repo.GetOpportunity(ctx, id)
}

// ListOpportunities applies the given filters.
func (e Engine) ListOpportunities(ctx context.Context, f repo.OpportunityFilters) ([]domain.Opportunity, error) {
	return e.Repo.ListOpportunities(ctx, f)
}

// --- helpers ---

func stringifyJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(b)
	if s == "null" {
		return ""
	}
	return s
}

func stringifySkills(skills []domain.SkillRequirement) string {
	if len(skills) == 0 {
		return ""
	}
	parts := make([]string, 0, len(skills))
	for _, s := range skills {
		parts = append(parts, s.Name+" ("+string(s.Category)+", "+string(s.Importance)+")")
	}
	return strings.Join(parts, ", ")
}
