package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// TimelineSpecification is an immutable delivery window. Dates are calendar
// days in ISO form; EndDate and SpecificDays are optional.
type TimelineSpecification struct {
	StartDate    string              `json:"start_date" format:"date"`
	EndDate      *string             `json:"end_date,omitempty" format:"date"`
	DurationDays int                 `json:"duration_days"`
	Flexibility  TimelineFlexibility `json:"flexibility" enum:"fixed,flexible,negotiable"`
	SpecificDays []string            `json:"specific_days,omitempty"`
}

// NewTimelineSpecification builds a validated timeline. endDate may be empty.
func NewTimelineSpecification(startDate, endDate string, durationDays int, flexibility string, specificDays []string) (TimelineSpecification, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return TimelineSpecification{}, fmt.Errorf("invalid start date %q", startDate)
	}
	if durationDays <= 0 {
		return TimelineSpecification{}, fmt.Errorf("duration must be positive, got %d", durationDays)
	}
	flex, err := ParseTimelineFlexibility(flexibility)
	if err != nil {
		return TimelineSpecification{}, err
	}
	tl := TimelineSpecification{
		StartDate:    start.Format(dateLayout),
		DurationDays: durationDays,
		Flexibility:  flex,
	}
	end := start.AddDate(0, 0, durationDays)
	if endDate != "" {
		parsed, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return TimelineSpecification{}, fmt.Errorf("invalid end date %q", endDate)
		}
		if !parsed.After(start) {
			return TimelineSpecification{}, fmt.Errorf("end date %s must be after start date %s", endDate, startDate)
		}
		formatted := parsed.Format(dateLayout)
		tl.EndDate = &formatted
		end = parsed
	}
	for _, d := range specificDays {
		day, err := time.Parse(dateLayout, d)
		if err != nil {
			return TimelineSpecification{}, fmt.Errorf("invalid specific day %q", d)
		}
		if day.Before(start) || day.After(end) {
			return TimelineSpecification{}, fmt.Errorf("specific day %s outside timeline range", d)
		}
		tl.SpecificDays = append(tl.SpecificDays, day.Format(dateLayout))
	}
	return tl, nil
}

// AllowsAdjustment reports whether dates may still change after architect selection.
func (t TimelineSpecification) AllowsAdjustment() bool {
	return t.Flexibility.AllowsAdjustment()
}
