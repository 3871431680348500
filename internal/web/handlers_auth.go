package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetusers/internal/alert"
	"github.com/JonMunkholm/sheetusers/internal/logging"
	"github.com/JonMunkholm/sheetusers/internal/user"
)

type loginRequest struct {
	Document string `json:"document"`
	Password string `json:"password"`
}

// loginResponse is the session returned by Authenticate plus a bearer token.
type loginResponse struct {
	user.Session
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	res, err := s.users.Authenticate(r.Context(), req.Document, req.Password)
	if err != nil || !res.OK() {
		s.respondResult(w, r, res, err)
		return
	}

	session, ok := res.Data.(user.Session)
	if !ok {
		logging.FromContext(r.Context()).Errorw("login result without session", "data", res.Data)
		writeJSON(w, r, http.StatusOK, alert.Error())
		return
	}
	token, err := s.issuer.Issue(session.ID, session.Name, session.Role)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, res.WithData(loginResponse{Session: session, Token: token}))
}
