package web

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetusers/internal/logging"
	"github.com/JonMunkholm/sheetusers/internal/user"
)

// defaultImportSize applies when IMPORT_MAX_FILE_SIZE is unset.
const defaultImportSize = 10 << 20

var errImportBody = errors.New("invalid request body: expected multipart/form-data with a file field or text/csv")

// handleImportUsers creates users from an uploaded CSV with the columns
// document, name, password and role. The response is the import report, or
// the rejected rows as CSV when format=csv is requested.
func (s *Server) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	if maxSize <= 0 {
		maxSize = defaultImportSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	src, closeSrc, err := importSource(r, maxSize)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer closeSrc()

	if err := s.importSlots.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	defer s.importSlots.Release()

	rep, err := s.importer.Import(r.Context(), src)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case user.IsContractError(err):
			status = http.StatusInternalServerError
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		if rep != nil && rep.Created > 0 {
			// Rows saved before the abort stay in the sheet.
			logging.FromContext(r.Context()).Warnw("import aborted after partial write",
				"created", rep.Created, "rejected", rep.Rejected, "error", err)
		}
		s.respondError(w, r, err, status)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="import_failures.csv"`)
		if err := rep.WriteFailures(w); err != nil {
			logging.FromContext(r.Context()).Warnw("failure report interrupted", "error", err)
		}
		return
	}
	writeJSON(w, r, http.StatusOK, rep)
}

// importSource returns the CSV stream of r: the "file" part of a multipart
// form, or the raw body when it is sent as text/csv.
func importSource(r *http.Request, maxSize int64) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, nil, errImportBody
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, errImportBody
		}
		return file, func() { _ = file.Close() }, nil
	case mediaType == "text/csv":
		return r.Body, func() {}, nil
	default:
		return nil, nil, errImportBody
	}
}
