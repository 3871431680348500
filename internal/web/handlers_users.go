package web

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JonMunkholm/sheetusers/internal/logging"
	"github.com/JonMunkholm/sheetusers/internal/user"
	"github.com/go-chi/chi/v5"
)

// exportColumns heads the CSV export; the options slot of a row is not exported.
var exportColumns = []string{"Documento", "Nombre", "Rol", "Último acceso", "Activo"}

type createUserRequest struct {
	Document string `json:"document"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Document string `json:"document"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Active   string `json:"active"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.users.ListAll(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

func (s *Server) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.users.ListAll(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("users_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := writeExport(w, rows); err != nil {
		logging.FromContext(r.Context()).Warnw("csv export interrupted", "error", err)
	}
}

// writeExport writes the export header and rows, stopping at the first
// failed write.
func writeExport(w io.Writer, rows []user.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row[:len(exportColumns)]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p, err := s.users.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if p == nil {
		s.respondError(w, r, errNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	res, err := s.users.Save(r.Context(), req.Document, req.Name, req.Password, req.Role)
	s.respondResult(w, r, res, err)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	res, err := s.users.Update(r.Context(), chi.URLParam(r, "id"),
		req.Document, req.Name, req.Password, req.Role, req.Active)
	s.respondResult(w, r, res, err)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	res, err := s.users.Delete(r.Context(), chi.URLParam(r, "id"))
	s.respondResult(w, r, res, err)
}
