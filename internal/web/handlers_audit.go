package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetusers/internal/audit"
)

// handleListAudit lists audit entries newest first. Query parameters:
// action, document and limit (default audit.DefaultListLimit).
// With auditing disabled the list is always empty.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, r, http.StatusOK, []audit.Entry{})
		return
	}

	q := r.URL.Query()
	entries, err := s.audit.List(r.Context(), audit.Filter{
		Action:   audit.Action(q.Get("action")),
		Document: q.Get("document"),
		Limit:    parseIntParam(r, "limit", audit.DefaultListLimit),
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}
