package domain

import (
	"fmt"
	"strings"
)

// SkillRequirement is an immutable requirement on the matched architect.
// Two requirements are the same when name (case-insensitive) and category match.
type SkillRequirement struct {
	Name        string          `json:"name"`
	Category    SkillCategory   `json:"category" enum:"technical,soft,industry"`
	Importance  SkillImportance `json:"importance" enum:"must_have,nice_to_have"`
	Proficiency *Proficiency    `json:"proficiency,omitempty" enum:"beginner,intermediate,advanced,expert"`
}

// NewSkillRequirement builds a validated skill requirement. Proficiency is
// optional; pass the empty string to omit it.
func NewSkillRequirement(name, category, importance, proficiency string) (SkillRequirement, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SkillRequirement{}, fmt.Errorf("skill name is required")
	}
	cat, err := ParseSkillCategory(category)
	if err != nil {
		return SkillRequirement{}, err
	}
	imp, err := ParseSkillImportance(importance)
	if err != nil {
		return SkillRequirement{}, err
	}
	s := SkillRequirement{Name: name, Category: cat, Importance: imp}
	if proficiency != "" {
		p, err := ParseProficiency(proficiency)
		if err != nil {
			return SkillRequirement{}, err
		}
		s.Proficiency = &p
	}
	return s, nil
}

// Key identifies a requirement within an opportunity.
func (s SkillRequirement) Key() string {
	return strings.ToLower(s.Name) + "|" + string(s.Category)
}

// Matches reports identity by (name, category), name compared case-insensitively.
func (s SkillRequirement) Matches(other SkillRequirement) bool {
	return s.Key() == other.Key()
}
