package domain_test

import (
	"testing"

	"oppline/internal/domain"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to domain.Status
	}{
		{domain.StatusDraft, domain.StatusSubmitted},
		{domain.StatusSubmitted, domain.StatusMatchingInProgress},
		{domain.StatusMatchingInProgress, domain.StatusMatchesFound},
		{domain.StatusMatchesFound, domain.StatusArchitectSelected},
		{domain.StatusArchitectSelected, domain.StatusCompleted},
		{domain.StatusDraft, domain.StatusCancelled},
		{domain.StatusSubmitted, domain.StatusCancelled},
		{domain.StatusMatchingInProgress, domain.StatusCancelled},
		{domain.StatusMatchesFound, domain.StatusCancelled},
		{domain.StatusArchitectSelected, domain.StatusCancelled},
		{domain.StatusCancelled, domain.StatusDraft},
		{domain.StatusCancelled, domain.StatusSubmitted},
	}
	for _, tc := range allowed {
		if !domain.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s allowed", tc.from, tc.to)
		}
	}
	denied := []struct {
		from, to domain.Status
	}{
		{domain.StatusDraft, domain.StatusMatchingInProgress},
		{domain.StatusDraft, domain.StatusCompleted},
		{domain.StatusSubmitted, domain.StatusMatchesFound},
		{domain.StatusMatchingInProgress, domain.StatusArchitectSelected},
		{domain.StatusCompleted, domain.StatusCancelled},
		{domain.StatusCompleted, domain.StatusDraft},
		{domain.StatusCancelled, domain.StatusCompleted},
		{domain.StatusCancelled, domain.StatusCancelled},
	}
	for _, tc := range denied {
		if domain.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s denied", tc.from, tc.to)
		}
	}
}

func TestCompletedIsFinal(t *testing.T) {
	if !domain.StatusCompleted.IsFinal() {
		t.Fatalf("completed must be terminal")
	}
	if domain.StatusCancelled.IsFinal() {
		t.Fatalf("cancelled is reactivatable, not terminal")
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := domain.ParseStatus("matching_in_progress"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := domain.ParseStatus("open"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestNewSkillRequirement(t *testing.T) {
	s, err := domain.NewSkillRequirement("Kubernetes", "technical", "must_have", "advanced")
	if err != nil {
		t.Fatalf("new skill: %v", err)
	}
	if s.Proficiency == nil || *s.Proficiency != domain.ProficiencyAdvanced {
		t.Fatalf("expected advanced proficiency")
	}
	if _, err := domain.NewSkillRequirement("", "technical", "must_have", ""); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := domain.NewSkillRequirement("Go", "magical", "must_have", ""); err == nil {
		t.Fatalf("expected error for bad category")
	}
	if _, err := domain.NewSkillRequirement("Go", "technical", "optional", ""); err == nil {
		t.Fatalf("expected error for bad importance")
	}
	if _, err := domain.NewSkillRequirement("Go", "technical", "must_have", "wizard"); err == nil {
		t.Fatalf("expected error for bad proficiency")
	}
}

func TestSkillRequirementIdentity(t *testing.T) {
	a, _ := domain.NewSkillRequirement("Go", "technical", "must_have", "")
	b, _ := domain.NewSkillRequirement("go", "technical", "nice_to_have", "expert")
	c, _ := domain.NewSkillRequirement("Go", "industry", "must_have", "")
	if !a.Matches(b) {
		t.Fatalf("names differing only in case must match")
	}
	if a.Matches(c) {
		t.Fatalf("different categories must not match")
	}
}

func TestNewTimelineSpecification(t *testing.T) {
	tl, err := domain.NewTimelineSpecification("2026-03-01", "2026-04-01", 20, "flexible", []string{"2026-03-10"})
	if err != nil {
		t.Fatalf("new timeline: %v", err)
	}
	if !tl.AllowsAdjustment() {
		t.Fatalf("flexible timeline must allow adjustment")
	}
	if _, err := domain.NewTimelineSpecification("2026-03-01", "2026-03-01", 20, "fixed", nil); err == nil {
		t.Fatalf("expected error: end date not after start")
	}
	if _, err := domain.NewTimelineSpecification("2026-03-01", "", 0, "fixed", nil); err == nil {
		t.Fatalf("expected error: zero duration")
	}
	if _, err := domain.NewTimelineSpecification("2026-03-01", "", 10, "whenever", nil); err == nil {
		t.Fatalf("expected error: bad flexibility")
	}
	if _, err := domain.NewTimelineSpecification("2026-03-01", "2026-04-01", 20, "fixed", []string{"2026-05-01"}); err == nil {
		t.Fatalf("expected error: specific day outside range")
	}
}

func TestProblemStatementComplete(t *testing.T) {
	p := domain.ProblemStatement{
		Title:                 "Migrate billing",
		Description:           "Move billing off the legacy mainframe.",
		BusinessImpact:        "Unblocks new pricing",
		TechnicalRequirements: "Zero-downtime cutover",
		SuccessCriteria:       "All invoices reconcile",
	}
	if !p.Complete() {
		t.Fatalf("expected complete")
	}
	p.SuccessCriteria = ""
	if p.Complete() {
		t.Fatalf("expected incomplete without success criteria")
	}
}

func TestModifiableFields(t *testing.T) {
	flexible, _ := domain.NewTimelineSpecification("2026-03-01", "", 30, "negotiable", nil)
	fixed, _ := domain.NewTimelineSpecification("2026-03-01", "", 30, "fixed", nil)

	for _, st := range []domain.Status{domain.StatusDraft, domain.StatusSubmitted} {
		for _, f := range []string{domain.FieldTitle, domain.FieldARRCents, domain.FieldTimeline, domain.FieldSkills} {
			if !domain.FieldModifiable(st, nil, f) {
				t.Errorf("%s should allow %s", st, f)
			}
		}
	}
	if !domain.FieldModifiable(domain.StatusArchitectSelected, &fixed, domain.FieldPriority) {
		t.Errorf("architect_selected should allow priority")
	}
	if !domain.FieldModifiable(domain.StatusArchitectSelected, &fixed, domain.FieldNotes) {
		t.Errorf("architect_selected should allow notes")
	}
	if domain.FieldModifiable(domain.StatusArchitectSelected, &fixed, domain.FieldTimeline) {
		t.Errorf("fixed timeline must not be adjustable after selection")
	}
	if !domain.FieldModifiable(domain.StatusArchitectSelected, &flexible, domain.FieldTimeline) {
		t.Errorf("negotiable timeline must stay adjustable after selection")
	}
	if domain.FieldModifiable(domain.StatusArchitectSelected, &flexible, domain.FieldTitle) {
		t.Errorf("title frozen after selection")
	}
	for _, st := range []domain.Status{domain.StatusMatchingInProgress, domain.StatusMatchesFound, domain.StatusCompleted, domain.StatusCancelled} {
		if fields := domain.ModifiableFields(st, &flexible); len(fields) != 0 {
			t.Errorf("%s should freeze all fields, got %v", st, fields)
		}
	}
}
