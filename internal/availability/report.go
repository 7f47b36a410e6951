package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/doctor"
)

// Stats is the delta of one reconciliation pass. It is reporting only and is
// never read back as input.
type Stats struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Unavailable int `json:"unavailable"`
	OnDayOff    int `json:"onDayOff"`
	TurnedOn    int `json:"turnedOn"`
	TurnedOff   int `json:"turnedOff"`
}

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Change is one availability flip made by a pass.
type Change struct {
	DoctorID  uuid.UUID           `json:"doctor_id"`
	Name      string              `json:"name"`
	Available bool                `json:"available"`
	Toggle    doctor.ToggleSource `json:"toggle"`
}

type Report struct {
	Stats      Stats         `json:"stats"`
	CurrentDay doctor.DayOff `json:"current_day"`
	RanAt      time.Time     `json:"ran_at"`
	Trigger    Trigger       `json:"trigger,omitempty"`
	Changes    []Change      `json:"changes"`
}
