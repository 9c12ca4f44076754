package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"oppline/internal/config"
	"oppline/internal/db"
	"oppline/internal/domain"
	"oppline/internal/engine"
	"oppline/internal/engine/auth"
	"oppline/internal/migrate"
	"oppline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{Ctx: context.Background(), Now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return env.Now }
	eng.Events.Now = eng.Now
	env.Engine = eng
	return env
}

var tester = auth.Actor{ID: "sm-1"}

func (env *testEnv) createDraft(t *testing.T) domain.Opportunity {
	t.Helper()
	o, err := env.Engine.Create(env.Ctx, engine.CreateOptions{
		Title:          "CRM replatform",
		Description:    "Replace the legacy CRM",
		CustomerID:     "cust-1",
		SalesManagerID: "sm-1",
		ARRCents:       1_200_000_00,
		Priority:       "high",
		Actor:          tester,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return o
}

func (env *testEnv) makeSubmittable(t *testing.T, id string) domain.Opportunity {
	t.Helper()
	longDesc := strings.Repeat("The current CRM cannot scale. ", 5)
	_, err := env.Engine.SetProblemStatement(env.Ctx, id, domain.ProblemStatement{
		Title:                 "CRM cannot scale",
		Description:           longDesc,
		BusinessImpact:        "Churn rising quarter over quarter",
		TechnicalRequirements: "Cloud-native, multi-region",
		SuccessCriteria:       "Churn below 2%",
	}, tester, "")
	if err != nil {
		t.Fatalf("set problem statement: %v", err)
	}
	skill, err := domain.NewSkillRequirement("Kubernetes", "technical", "must_have", "advanced")
	if err != nil {
		t.Fatalf("new skill: %v", err)
	}
	if _, err := env.Engine.AddSkill(env.Ctx, id, skill, tester, ""); err != nil {
		t.Fatalf("add skill: %v", err)
	}
	start := "2026-04-01"
	tl, err := domain.NewTimelineSpecification(start, "", 60, "flexible", nil)
	if err != nil {
		t.Fatalf("new timeline: %v", err)
	}
	o, err := env.Engine.SetTimeline(env.Ctx, id, tl, tester, "")
	if err != nil {
		t.Fatalf("set timeline: %v", err)
	}
	return o
}

func validationErrors(t *testing.T, err error) []string {
	t.Helper()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return ve.Errors
}

func TestCreateStartsInDraft(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	if o.Status != domain.StatusDraft {
		t.Fatalf("status = %s, want draft", o.Status)
	}
	if o.Version != 1 {
		t.Fatalf("version = %d, want 1", o.Version)
	}
	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].FromStatus != nil || history[0].ToStatus != domain.StatusDraft {
		t.Fatalf("unexpected creation history: %+v", history)
	}
}

func TestCreateCollectsAllErrors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Create(env.Ctx, engine.CreateOptions{
		ARRCents: -5,
		Priority: "urgent",
		Actor:    tester,
	})
	errs := validationErrors(t, err)
	if len(errs) < 5 {
		t.Fatalf("expected all failures reported, got %v", errs)
	}
}

func TestSubmitRequiresEverything(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	_, err := env.Engine.Submit(env.Ctx, o.ID, tester)
	errs := validationErrors(t, err)
	for _, want := range []string{"problem statement", "skill requirement", "timeline"} {
		found := false
		for _, e := range errs {
			if strings.Contains(e, want) {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing %q in %v", want, errs)
		}
	}
}

func TestSubmitRejectsShortProblemStatement(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	_, err := env.Engine.SetProblemStatement(env.Ctx, o.ID, domain.ProblemStatement{
		Title:                 "Short",
		Description:           "too short",
		BusinessImpact:        "x",
		TechnicalRequirements: "y",
		SuccessCriteria:       "z",
	}, tester, "")
	if err != nil {
		t.Fatalf("set problem statement: %v", err)
	}
	_, err = env.Engine.Submit(env.Ctx, o.ID, tester)
	errs := validationErrors(t, err)
	if len(errs) != 1 || !strings.Contains(errs[0], "at least 100 characters") {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestSubmitCountsCharactersNotBytes(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	// 40 CJK characters encode to 120 bytes but fall short of the
	// 100-character minimum.
	_, err := env.Engine.SetProblemStatement(env.Ctx, o.ID, domain.ProblemStatement{
		Title:                 "国际化",
		Description:           strings.Repeat("旧系统无法扩展", 5) + "需更换",
		BusinessImpact:        "x",
		TechnicalRequirements: "y",
		SuccessCriteria:       "z",
	}, tester, "")
	if err != nil {
		t.Fatalf("set problem statement: %v", err)
	}
	_, err = env.Engine.Submit(env.Ctx, o.ID, tester)
	errs := validationErrors(t, err)
	if len(errs) != 1 || !strings.Contains(errs[0], "at least 100 characters, got 38") {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestSubmitRequiresMustHaveSkill(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	if _, err := env.Engine.RemoveSkill(env.Ctx, o.ID, "Kubernetes", "technical", tester, ""); err != nil {
		t.Fatalf("remove skill: %v", err)
	}
	skill, _ := domain.NewSkillRequirement("Communication", "soft", "nice_to_have", "intermediate")
	if _, err := env.Engine.AddSkill(env.Ctx, o.ID, skill, tester, ""); err != nil {
		t.Fatalf("add skill: %v", err)
	}
	_, err := env.Engine.Submit(env.Ctx, o.ID, tester)
	errs := validationErrors(t, err)
	if len(errs) != 1 || !strings.Contains(errs[0], "must-have") {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func advanceToSelected(t *testing.T, env *testEnv, id string) {
	t.Helper()
	if _, err := env.Engine.Submit(env.Ctx, id, tester); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.StartMatching(env.Ctx, id, tester); err != nil {
		t.Fatalf("start matching: %v", err)
	}
	if _, err := env.Engine.RecordMatchesFound(env.Ctx, id, tester); err != nil {
		t.Fatalf("matches found: %v", err)
	}
	if _, err := env.Engine.SelectArchitect(env.Ctx, id, "arch-7", tester); err != nil {
		t.Fatalf("select architect: %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	advanceToSelected(t, env, o.ID)

	o, err := env.Engine.GetOpportunity(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.SelectedArchitectID == nil || *o.SelectedArchitectID != "arch-7" {
		t.Fatalf("architect id not recorded: %+v", o.SelectedArchitectID)
	}
	o, err = env.Engine.Complete(env.Ctx, o.ID, tester)
	if err != nil || o.Status != domain.StatusCompleted {
		t.Fatalf("complete: %v", err)
	}
	if o.CompletionDate == nil {
		t.Fatal("completion date not set")
	}

	// exactly one history row per accepted transition: create + 5 changes
	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 6 {
		t.Fatalf("history rows = %d, want 6", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].FromStatus == nil || *history[i].FromStatus != history[i-1].ToStatus {
			t.Fatalf("history not chained at row %d: %+v", i, history[i])
		}
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	advanceToSelected(t, env, o.ID)
	if _, err := env.Engine.Complete(env.Ctx, o.ID, tester); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.Engine.Cancel(env.Ctx, o.ID, "changed our mind", tester); err == nil {
		t.Fatal("expected cancel of completed opportunity to fail")
	}
}

func TestRejectedTransitionLeavesNoHistory(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	if _, err := env.Engine.StartMatching(env.Ctx, o.ID, tester); err == nil {
		t.Fatal("expected draft -> matching_in_progress to be rejected")
	}
	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1 (creation only)", len(history))
	}
}

func TestCancelSetsReactivationWindow(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	o, err := env.Engine.Cancel(env.Ctx, o.ID, "budget pulled", tester)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", o.Status)
	}
	if o.CancellationReason == nil || *o.CancellationReason != "budget pulled" {
		t.Fatalf("reason = %v", o.CancellationReason)
	}
	wantDeadline := env.Now.AddDate(0, 0, 90).Format(time.RFC3339)
	if o.ReactivationDeadline == nil || *o.ReactivationDeadline != wantDeadline {
		t.Fatalf("deadline = %v, want %s", o.ReactivationDeadline, wantDeadline)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	_, err := env.Engine.Cancel(env.Ctx, o.ID, "  ", tester)
	errs := validationErrors(t, err)
	if len(errs) != 1 || !strings.Contains(errs[0], "reason") {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestReactivateReturnsToPriorStatus(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	if _, err := env.Engine.Submit(env.Ctx, o.ID, tester); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Cancel(env.Ctx, o.ID, "priorities shifted", tester); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	o, err := env.Engine.Reactivate(env.Ctx, o.ID, "budget restored", tester)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if o.Status != domain.StatusSubmitted {
		t.Fatalf("status after reactivation = %s, want submitted", o.Status)
	}
	if o.CancellationDate != nil || o.CancellationReason != nil || o.ReactivationDeadline != nil {
		t.Fatalf("cancellation fields not cleared: %+v", o)
	}
}

func TestReactivateFromDraftCancel(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	if _, err := env.Engine.Cancel(env.Ctx, o.ID, "on hold", tester); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	o, err := env.Engine.Reactivate(env.Ctx, o.ID, "", tester)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if o.Status != domain.StatusDraft {
		t.Fatalf("status = %s, want draft", o.Status)
	}
}

func TestReactivationWindowBoundary(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	cancelledAt := env.Now
	if _, err := env.Engine.Cancel(env.Ctx, o.ID, "paused", tester); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// day 90 exactly: still allowed
	env.Now = cancelledAt.AddDate(0, 0, 90)
	if _, err := env.Engine.Reactivate(env.Ctx, o.ID, "", tester); err != nil {
		t.Fatalf("reactivate on day 90: %v", err)
	}

	cancelledAt = env.Now
	if _, err := env.Engine.Cancel(env.Ctx, o.ID, "paused again", tester); err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	// day 91: rejected
	env.Now = cancelledAt.AddDate(0, 0, 91)
	_, err := env.Engine.Reactivate(env.Ctx, o.ID, "", tester)
	errs := validationErrors(t, err)
	if len(errs) != 1 || !strings.Contains(errs[0], "expired") {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestUpdateWritesChangeRecordPerField(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	title := "CRM replatform phase 2"
	arr := int64(1_500_000_00)
	same := "Replace the legacy CRM" // equals the current description
	_, err := env.Engine.UpdateBasicInfo(env.Ctx, engine.UpdateOptions{
		ID:          o.ID,
		Title:       &title,
		ARRCents:    &arr,
		Description: &same,
		Reason:      "scope grew",
		Actor:       tester,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	records, err := env.Engine.Repo.ListChangeRecords(env.Ctx, repo.ChangeRecordFilters{OpportunityID: o.ID})
	if err != nil {
		t.Fatalf("change records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("change records = %d, want 2 (unchanged field is a no-op)", len(records))
	}
	fields := map[string]bool{}
	for _, r := range records {
		fields[r.FieldChanged] = true
		if r.Reason != "scope grew" {
			t.Fatalf("reason = %q", r.Reason)
		}
	}
	if !fields[domain.FieldTitle] || !fields[domain.FieldARRCents] {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestModificationGuardAfterSelection(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	advanceToSelected(t, env, o.ID)

	// title is frozen after selection
	title := "renamed"
	_, err := env.Engine.UpdateBasicInfo(env.Ctx, engine.UpdateOptions{ID: o.ID, Title: &title, Actor: tester})
	errs := validationErrors(t, err)
	if len(errs) != 1 || !strings.Contains(errs[0], "cannot be modified") {
		t.Fatalf("unexpected errors: %v", errs)
	}

	// priority and notes stay editable
	prio := "critical"
	notes := "customer wants weekly syncs"
	if _, err := env.Engine.UpdateBasicInfo(env.Ctx, engine.UpdateOptions{ID: o.ID, Priority: &prio, Notes: &notes, Actor: tester}); err != nil {
		t.Fatalf("update priority/notes: %v", err)
	}

	// flexible timeline stays adjustable
	start := "2026-05-01"
	tl, err := domain.NewTimelineSpecification(start, "", 45, "negotiable", nil)
	if err != nil {
		t.Fatalf("new timeline: %v", err)
	}
	if _, err := env.Engine.SetTimeline(env.Ctx, o.ID, tl, tester, "customer moved kickoff"); err != nil {
		t.Fatalf("set timeline after selection: %v", err)
	}
}

func TestFrozenTimelineAfterSelection(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	start := "2026-04-01"
	tl, err := domain.NewTimelineSpecification(start, "", 60, "fixed", nil)
	if err != nil {
		t.Fatalf("new timeline: %v", err)
	}
	if _, err := env.Engine.SetTimeline(env.Ctx, o.ID, tl, tester, ""); err != nil {
		t.Fatalf("set timeline: %v", err)
	}
	advanceToSelected(t, env, o.ID)
	if _, err := env.Engine.SetTimeline(env.Ctx, o.ID, tl, tester, ""); err == nil {
		t.Fatal("expected fixed timeline to be frozen after selection")
	}
}

func TestDuplicateSkillRejected(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	skill, _ := domain.NewSkillRequirement("Kubernetes", "technical", "must_have", "advanced")
	if _, err := env.Engine.AddSkill(env.Ctx, o.ID, skill, tester, ""); err != nil {
		t.Fatalf("add skill: %v", err)
	}
	dup, _ := domain.NewSkillRequirement("kubernetes", "technical", "nice_to_have", "beginner")
	_, err := env.Engine.AddSkill(env.Ctx, o.ID, dup, tester, "")
	errs := validationErrors(t, err)
	if len(errs) != 1 || !strings.Contains(errs[0], "already present") {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestCloneCopiesBusinessFieldsOnly(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	if _, err := env.Engine.Submit(env.Ctx, o.ID, tester); err != nil {
		t.Fatalf("submit: %v", err)
	}
	clone, err := env.Engine.Clone(env.Ctx, o.ID, "", tester)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.ID == o.ID {
		t.Fatal("clone shares source id")
	}
	if clone.Status != domain.StatusDraft {
		t.Fatalf("clone status = %s, want draft", clone.Status)
	}
	if clone.Title != "CRM replatform (copy)" {
		t.Fatalf("clone title = %q", clone.Title)
	}
	got, err := env.Engine.Repo.GetOpportunity(env.Ctx, clone.ID)
	if err != nil {
		t.Fatalf("get clone: %v", err)
	}
	if len(got.Skills) != 1 || got.ProblemStatement == nil || got.Timeline == nil {
		t.Fatalf("clone missing business fields: %+v", got)
	}
	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, clone.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("clone history rows = %d, want 1", len(history))
	}
}

func TestVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	stale := o
	stale.Version = 99
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = env.Engine.Repo.UpdateOpportunity(env.Ctx, tx, &stale)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	stranger := auth.Actor{ID: "sm-2", Roles: []string{auth.RoleSalesManager}}
	_, err := env.Engine.Cancel(env.Ctx, o.ID, "not yours", stranger)
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	admin := auth.Actor{ID: "boss", Roles: []string{auth.RoleAdmin}}
	if _, err := env.Engine.Cancel(env.Ctx, o.ID, "admin override", admin); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestAttachmentLimitAndRemoval(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	_, err := env.Engine.AddAttachment(env.Ctx, engine.AttachmentOptions{
		OpportunityID: o.ID,
		FileName:      "deck.pdf",
		FileSize:      25 << 20,
		URL:           "s3://bucket/deck.pdf",
		Actor:         tester,
	})
	errs := validationErrors(t, err)
	if len(errs) != 1 || !strings.Contains(errs[0], "exceeds limit") {
		t.Fatalf("unexpected errors: %v", errs)
	}

	a, err := env.Engine.AddAttachment(env.Ctx, engine.AttachmentOptions{
		OpportunityID: o.ID,
		FileName:      "deck.pdf",
		FileType:      "application/pdf",
		FileSize:      4 << 20,
		URL:           "s3://bucket/deck.pdf",
		Actor:         tester,
	})
	if err != nil {
		t.Fatalf("add attachment: %v", err)
	}
	if err := env.Engine.RemoveAttachment(env.Ctx, o.ID, a.ID, tester); err != nil {
		t.Fatalf("remove attachment: %v", err)
	}
	remaining, err := env.Engine.Repo.ListAttachments(env.Ctx, o.ID, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("attachments = %d, want 0 after removal", len(remaining))
	}
	all, err := env.Engine.Repo.ListAttachments(env.Ctx, o.ID, true)
	if err != nil {
		t.Fatalf("list removed: %v", err)
	}
	if len(all) != 1 || !all[0].Removed {
		t.Fatalf("soft-removed row missing: %+v", all)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	o := env.createDraft(t)
	env.makeSubmittable(t, o.ID)
	if _, err := env.Engine.Submit(env.Ctx, o.ID, tester); err != nil {
		t.Fatalf("submit: %v", err)
	}
	evts, err := env.Engine.Repo.EventsAfter(env.Ctx, 100, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) < 2 {
		t.Fatalf("events = %d", len(evts))
	}
	if evts[0].Type != "opportunity.created" || evts[len(evts)-1].Type != "opportunity.submitted" {
		var types []string
		for _, e := range evts {
			types = append(types, e.Type)
		}
		t.Fatalf("unexpected event order: %v", types)
	}
}
