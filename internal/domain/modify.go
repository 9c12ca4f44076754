package domain

// Field names used by the modification guard and change records.
const (
	FieldTitle            = "title"
	FieldDescription      = "description"
	FieldARRCents         = "arr_cents"
	FieldPriority         = "priority"
	FieldNotes            = "notes"
	FieldProblemStatement = "problem_statement"
	FieldSkills           = "skill_requirements"
	FieldTimeline         = "timeline"
)

var allBusinessFields = []string{
	FieldTitle, FieldDescription, FieldARRCents, FieldPriority,
	FieldNotes, FieldProblemStatement, FieldSkills, FieldTimeline,
}

// ModifiableFields returns the fields an opportunity in the given state
// accepts changes to. Draft and submitted opportunities are fully editable.
// After an architect is selected only priority and notes may change, plus the
// timeline when its flexibility still allows adjustment. Everything else is
// frozen.
func ModifiableFields(status Status, timeline *TimelineSpecification) []string {
	switch status {
	case StatusDraft, StatusSubmitted:
		return allBusinessFields
	case StatusArchitectSelected:
		fields := []string{FieldPriority, FieldNotes}
		if timeline != nil && timeline.AllowsAdjustment() {
			fields = append(fields, FieldTimeline)
		}
		return fields
	default:
		return nil
	}
}

// FieldModifiable reports whether a single field may change in the given state.
func FieldModifiable(status Status, timeline *TimelineSpecification, field string) bool {
	for _, f := range ModifiableFields(status, timeline) {
		if f == field {
			return true
		}
	}
	return false
}
