package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

const (
	SlotDateLayout = "2006-01-02"
	SlotTimeLayout = "15:04"
)

// Slot is the booked date and wall-clock start time.
type Slot struct {
	Date string
	Time string
}

type Appointment struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	PatientID           uuid.UUID
	SlotDate            string
	SlotTime            string
	Status              AppointmentStatus
	CancellationReason  *string
	ConsultationSummary *string
	Seen                bool
	CompletedAt         *time.Time
	CancelledAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Transition is the set of columns written together with a status change.
type Transition struct {
	From               AppointmentStatus
	To                 AppointmentStatus
	CancellationReason *string
	At                 time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter narrows appointment listings. Zero values mean no filter.
type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []AppointmentStatus
	Limit     int
	Offset    int
}

// Counts is the aggregate read behind the admin and doctor dashboards.
type Counts struct {
	Appointments int `json:"appointments"`
	Scheduled    int `json:"scheduled"`
	Completed    int `json:"completed"`
	Cancelled    int `json:"cancelled"`
	Patients     int `json:"patients"`
	Unseen       int `json:"unseen"`
}

type Dashboard struct {
	Counts
	Doctors            int
	LatestAppointments []Appointment
}
