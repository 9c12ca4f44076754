package domain

import "fmt"

// Priority is the commercial priority of an opportunity.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s), nil
	}
	return "", fmt.Errorf("invalid priority %q", s)
}

// SkillCategory classifies a skill requirement.
type SkillCategory string

const (
	SkillCategoryTechnical SkillCategory = "technical"
	SkillCategorySoft      SkillCategory = "soft"
	SkillCategoryIndustry  SkillCategory = "industry"
)

func ParseSkillCategory(s string) (SkillCategory, error) {
	switch SkillCategory(s) {
	case SkillCategoryTechnical, SkillCategorySoft, SkillCategoryIndustry:
		return SkillCategory(s), nil
	}
	return "", fmt.Errorf("invalid skill category %q", s)
}

// SkillImportance separates hard requirements from preferences.
type SkillImportance string

const (
	ImportanceMustHave   SkillImportance = "must_have"
	ImportanceNiceToHave SkillImportance = "nice_to_have"
)

func ParseSkillImportance(s string) (SkillImportance, error) {
	switch SkillImportance(s) {
	case ImportanceMustHave, ImportanceNiceToHave:
		return SkillImportance(s), nil
	}
	return "", fmt.Errorf("invalid skill importance %q", s)
}

// Proficiency is the minimum level expected for a skill.
type Proficiency string

const (
	ProficiencyBeginner     Proficiency = "beginner"
	ProficiencyIntermediate Proficiency = "intermediate"
	ProficiencyAdvanced     Proficiency = "advanced"
	ProficiencyExpert       Proficiency = "expert"
)

func ParseProficiency(s string) (Proficiency, error) {
	switch Proficiency(s) {
	case ProficiencyBeginner, ProficiencyIntermediate, ProficiencyAdvanced, ProficiencyExpert:
		return Proficiency(s), nil
	}
	return "", fmt.Errorf("invalid proficiency %q", s)
}

// TimelineFlexibility says how negotiable the planned dates are.
type TimelineFlexibility string

const (
	FlexibilityFixed      TimelineFlexibility = "fixed"
	FlexibilityFlexible   TimelineFlexibility = "flexible"
	FlexibilityNegotiable TimelineFlexibility = "negotiable"
)

func ParseTimelineFlexibility(s string) (TimelineFlexibility, error) {
	switch TimelineFlexibility(s) {
	case FlexibilityFixed, FlexibilityFlexible, FlexibilityNegotiable:
		return TimelineFlexibility(s), nil
	}
	return "", fmt.Errorf("invalid timeline flexibility %q", s)
}

// AllowsAdjustment reports whether dates may still move after an architect
// has been selected.
func (f TimelineFlexibility) AllowsAdjustment() bool {
	return f == FlexibilityFlexible || f == FlexibilityNegotiable
}
