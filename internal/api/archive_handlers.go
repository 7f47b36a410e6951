package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/doctor-availability/internal/archive"
)

// setArchivedHandler serves both archive and restore for one kind.
func setArchivedHandler(svc *archive.Service, kind archive.Kind, archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r)
		if !ok {
			return
		}

		var (
			res archive.Result
			err error
		)
		if archived {
			res, err = svc.Archive(r.Context(), kind, id)
		} else {
			res, err = svc.Restore(r.Context(), kind, id)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func listArchivedHandler(svc *archive.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := archive.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		records, err := svc.ListArchived(r.Context(), kind)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}
