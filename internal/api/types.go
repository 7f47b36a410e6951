package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/appointment"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/patient"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type CreateDoctorRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Speciality string `json:"speciality"`
	DayOff     string `json:"day_off"`
}

// UpdateProfileRequest leaves absent fields unchanged.
type UpdateProfileRequest struct {
	Name       *string `json:"name"`
	Speciality *string `json:"speciality"`
	DayOff     *string `json:"day_off"`
	Available  *bool   `json:"available"`
}

type DoctorResponse struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Speciality   string     `json:"speciality,omitempty"`
	DayOff       string     `json:"day_off"`
	Available    bool       `json:"available"`
	LastToggle   string     `json:"last_toggle,omitempty"`
	LastToggleAt *time.Time `json:"last_toggle_at,omitempty"`
	Archived     bool       `json:"archived"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
}

func toDoctorResponse(d *doctor.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		Speciality:   d.Speciality,
		DayOff:       string(d.DayOff),
		Available:    d.Available,
		LastToggle:   string(d.LastToggle),
		LastToggleAt: d.LastToggleAt,
		Archived:     d.Archived,
		ArchivedAt:   d.ArchivedAt,
	}
}

type CreatePatientRequest struct {
	FirstName  string  `json:"first_name"`
	MiddleName string  `json:"middle_name"`
	LastName   string  `json:"last_name"`
	Email      *string `json:"email"`
}

type PatientResponse struct {
	ID         uuid.UUID  `json:"id"`
	FirstName  string     `json:"first_name"`
	MiddleName string     `json:"middle_name,omitempty"`
	LastName   string     `json:"last_name"`
	FullName   string     `json:"full_name"`
	Email      *string    `json:"email,omitempty"`
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

func toPatientResponse(p *patient.Patient) PatientResponse {
	return PatientResponse{
		ID:         p.ID,
		FirstName:  p.FirstName,
		MiddleName: p.MiddleName,
		LastName:   p.LastName,
		FullName:   p.FullName(),
		Email:      p.Email,
		Archived:   p.Archived,
		ArchivedAt: p.ArchivedAt,
	}
}

type CreateAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	SlotDate  string `json:"slot_date"`
	SlotTime  string `json:"slot_time"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type SummaryRequest struct {
	Summary string `json:"summary"`
}

// MarkSeenRequest marks ids as seen; an empty list marks all of the
// doctor's unseen appointments.
type MarkSeenRequest struct {
	DoctorID string   `json:"doctor_id"`
	IDs      []string `json:"ids"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID  `json:"id"`
	DoctorID            uuid.UUID  `json:"doctor_id"`
	PatientID           uuid.UUID  `json:"patient_id"`
	SlotDate            string     `json:"slot_date"`
	SlotTime            string     `json:"slot_time"`
	Status              string     `json:"status"`
	CancellationReason  *string    `json:"cancellation_reason,omitempty"`
	ConsultationSummary *string    `json:"consultation_summary,omitempty"`
	Seen                bool       `json:"seen"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		DoctorID:            a.DoctorID,
		PatientID:           a.PatientID,
		SlotDate:            a.SlotDate,
		SlotTime:            a.SlotTime,
		Status:              string(a.Status),
		CancellationReason:  a.CancellationReason,
		ConsultationSummary: a.ConsultationSummary,
		Seen:                a.Seen,
		CompletedAt:         a.CompletedAt,
		CancelledAt:         a.CancelledAt,
		CreatedAt:           a.CreatedAt,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

type DashboardResponse struct {
	appointment.Counts
	Doctors            int                   `json:"doctors,omitempty"`
	LatestAppointments []AppointmentResponse `json:"latest_appointments"`
}
