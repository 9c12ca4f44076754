package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"oppline/internal/domain"
)

// Validators collect every rule failure instead of stopping at the first so
// the caller can fix a whole batch in one round trip.

func validateCreate(opts CreateOptions) []string {
	var errs []string
	if strings.TrimSpace(opts.Title) == "" {
		errs = append(errs, "title is required")
	}
	if strings.TrimSpace(opts.Description) == "" {
		errs = append(errs, "description is required")
	}
	if strings.TrimSpace(opts.CustomerID) == "" {
		errs = append(errs, "customer_id is required")
	}
	if strings.TrimSpace(opts.SalesManagerID) == "" {
		errs = append(errs, "sales_manager_id is required")
	}
	if opts.ARRCents < 0 {
		errs = append(errs, "annual recurring revenue must not be negative")
	}
	if _, err := domain.ParsePriority(opts.Priority); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

func validateSubmission(o domain.Opportunity, minDescriptionLen int) []string {
	var errs []string
	if o.Status != domain.StatusDraft {
		errs = append(errs, fmt.Sprintf("only draft opportunities can be submitted, current status is %s", o.Status))
	}
	switch {
	case o.ProblemStatement == nil:
		errs = append(errs, "problem statement is required for submission")
	default:
		if n := utf8.RuneCountInString(o.ProblemStatement.Description); n < minDescriptionLen {
			errs = append(errs, fmt.Sprintf("problem statement description must be at least %d characters, got %d", minDescriptionLen, n))
		}
		if !o.ProblemStatement.Complete() {
			errs = append(errs, "problem statement is incomplete: business impact, technical requirements and success criteria are required")
		}
	}
	if len(o.Skills) == 0 {
		errs = append(errs, "at least one skill requirement is required")
	} else if !hasMustHave(o.Skills) {
		errs = append(errs, "at least one must-have skill requirement is required")
	}
	if o.Timeline == nil {
		errs = append(errs, "timeline is required for submission")
	}
	return errs
}

func hasMustHave(skills []domain.SkillRequirement) bool {
	for _, s := range skills {
		if s.Importance == domain.ImportanceMustHave {
			return true
		}
	}
	return false
}

func validateCancellation(o domain.Opportunity, reason string) []string {
	var errs []string
	if o.Status == domain.StatusCompleted {
		errs = append(errs, "completed opportunities cannot be cancelled")
	}
	if o.Status == domain.StatusCancelled {
		errs = append(errs, "opportunity is already cancelled")
	}
	if strings.TrimSpace(reason) == "" {
		errs = append(errs, "cancellation reason is required")
	}
	return errs
}

// validateReactivation enforces the reactivation window: allowed up to and
// including the ninetieth day after cancellation, rejected from day 91.
func validateReactivation(o domain.Opportunity, now time.Time, windowDays int) []string {
	var errs []string
	if o.Status != domain.StatusCancelled {
		errs = append(errs, fmt.Sprintf("only cancelled opportunities can be reactivated, current status is %s", o.Status))
		return errs
	}
	if o.CancellationDate == nil {
		errs = append(errs, "cancellation date is missing")
		return errs
	}
	cancelled, err := time.Parse(time.RFC3339, *o.CancellationDate)
	if err != nil {
		errs = append(errs, "cancellation date is malformed")
		return errs
	}
	deadline := cancelled.AddDate(0, 0, windowDays)
	if now.After(deadline) {
		errs = append(errs, fmt.Sprintf("reactivation window of %d days expired on %s", windowDays, deadline.UTC().Format(time.RFC3339)))
	}
	return errs
}

func validateArchitectSelection(o domain.Opportunity, architectID string) []string {
	var errs []string
	if o.Status != domain.StatusMatchesFound {
		errs = append(errs, fmt.Sprintf("architect can only be selected when matches are found, current status is %s", o.Status))
	}
	if strings.TrimSpace(architectID) == "" {
		errs = append(errs, "architect_id is required")
	}
	return errs
}

func validateCompletion(o domain.Opportunity) []string {
	if o.Status != domain.StatusArchitectSelected {
		return []string{fmt.Sprintf("only opportunities with a selected architect can be completed, current status is %s", o.Status)}
	}
	return nil
}
