package api

import (
	"net/http"

	"github.com/hackgods/doctor-availability/internal/doctor"
)

func listDoctorsHandler(svc *doctor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListActive(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for i := range doctors {
			resp = append(resp, toDoctorResponse(&doctors[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createDoctorHandler(svc *doctor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		d, err := svc.Onboard(r.Context(), doctor.NewDoctor{
			Name:       req.Name,
			Email:      req.Email,
			Speciality: req.Speciality,
			DayOff:     doctor.DayOff(req.DayOff),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDoctorResponse(d))
	}
}

func getDoctorHandler(svc *doctor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r)
		if !ok {
			return
		}

		d, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func updateDoctorProfileHandler(svc *doctor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r)
		if !ok {
			return
		}

		var req UpdateProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		upd := doctor.ProfileUpdate{
			Name:       req.Name,
			Speciality: req.Speciality,
			Available:  req.Available,
		}
		if req.DayOff != nil {
			dayOff := doctor.DayOff(*req.DayOff)
			upd.DayOff = &dayOff
		}

		d, err := svc.UpdateProfile(r.Context(), id, upd)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func toggleAvailabilityHandler(svc *doctor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r)
		if !ok {
			return
		}

		d, err := svc.ToggleAvailability(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}
