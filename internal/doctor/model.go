package doctor

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DayOff is a doctor's declared weekly non-working day.
type DayOff string

const (
	DayOffNone DayOff = "None"
	Monday     DayOff = "Monday"
	Tuesday    DayOff = "Tuesday"
	Wednesday  DayOff = "Wednesday"
	Thursday   DayOff = "Thursday"
	Friday     DayOff = "Friday"
	Saturday   DayOff = "Saturday"
	Sunday     DayOff = "Sunday"
)

var weekdays = map[time.Weekday]DayOff{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// DayOffFor maps a weekday onto the matching DayOff value.
func DayOffFor(w time.Weekday) DayOff {
	return weekdays[w]
}

// ParseDayOff accepts any casing; an empty string means no day off.
func ParseDayOff(s string) (DayOff, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(DayOffNone)) {
		return DayOffNone, nil
	}
	for _, d := range weekdays {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid day off %q", s)
}

// Matches reports whether t falls on this day off. None never matches.
func (d DayOff) Matches(t time.Time) bool {
	if d == DayOffNone || d == "" {
		return false
	}
	return DayOffFor(t.Weekday()) == d
}

// ToggleSource records who made the last availability change.
type ToggleSource string

const (
	ToggleNone        ToggleSource = ""
	ToggleDayOffStart ToggleSource = "day_off_start"
	ToggleDayOffEnd   ToggleSource = "day_off_end"
	ToggleManual      ToggleSource = "manual"
)

type Doctor struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Speciality   string
	DayOff       DayOff
	Available    bool
	LastToggle   ToggleSource
	LastToggleAt *time.Time
	Archived     bool
	ArchivedAt   *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AvailabilityChange is one write of the availability fields.
type AvailabilityChange struct {
	Available bool
	Toggle    ToggleSource
	At        time.Time
}

// Flip is one planned availability write, conditional on Version.
type Flip struct {
	ID      uuid.UUID
	Version int64
	Change  AvailabilityChange
}

// ProfileUpdate carries the editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name       *string
	Speciality *string
	DayOff     *DayOff
	Available  *bool
}

// Profile is the full editable state written by a profile update.
type Profile struct {
	Name         string
	Speciality   string
	DayOff       DayOff
	Available    bool
	LastToggle   ToggleSource
	LastToggleAt *time.Time
}

// NewDoctor is the onboarding payload.
type NewDoctor struct {
	Name       string
	Email      string
	Speciality string
	DayOff     DayOff
}

// ListFilter selects doctors by archive state.
type ListFilter struct {
	Archived bool
}
