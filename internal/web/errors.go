package web

// errors.go maps errors to client responses for the web layer.
//
// Business outcomes never reach this file: they travel as alert results with
// status 200. What arrives here is a hard failure. It is logged with full
// detail under the request id and answered with a coded, user-readable
// message.
//
// # Error Codes Reference
//
//	STO001 - Sheet schema does not match the expected columns
//	         Patterns: "schema mismatch"
//	STO002 - Sheet does not exist in the book
//	         Patterns: "sheet not found"
//	USR001 - Value handed to the repository is not a user
//	         Patterns: "not a user"
//	IMP001 - All import slots are busy
//	         Patterns: "too many concurrent imports"
//	IMP002 - Import file lacks required columns or rows
//	         Patterns: "missing required columns", "empty file"
//	IMP003 - Import file exceeds the row cap
//	         Patterns: "too many rows"
//	IMP004 - Import file is not valid CSV
//	         Patterns: "invalid csv"
//	AUTH001 - Missing, expired or forged bearer token
//	         Patterns: "invalid token", "missing token"
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout ("timeout", "context deadline exceeded")
//	REQ001 - Request body could not be parsed
//	         Patterns: "invalid request body"
//	NF001 - Record not found
//	         Patterns: "not found" (after the sheet rule)
//	RATE001 - Too many requests
//	ERR000 - Fallback when nothing matches
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come first.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetusers/internal/logging"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// UserMessage is the client-facing description of an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	unauthorized = UserMessage{
		Message: "Authentication required",
		Action:  "Log in again to obtain a new token",
		Code:    "AUTH001",
	}
	rateLimited = UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}
	defaultMessage = UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
)

var errorPatterns = []errorPattern{
	{"schema mismatch", UserMessage{
		Message: "The users sheet does not have the expected columns",
		Action:  "Restore the header row of the sheet",
		Code:    "STO001",
	}},
	{"sheet not found", UserMessage{
		Message: "The sheet does not exist",
		Action:  "Enable STORE_BOOTSTRAP or create the sheet",
		Code:    "STO002",
	}},
	{"not a user", UserMessage{
		Message: "Invalid user value",
		Action:  "Please contact support",
		Code:    "USR001",
	}},
	{"too many concurrent imports", UserMessage{
		Message: "Another import is in progress",
		Action:  "Please wait for it to finish and try again",
		Code:    "IMP001",
	}},
	{"missing required columns", UserMessage{
		Message: "The file is missing required columns",
		Action:  "Include the columns document, name, password and role",
		Code:    "IMP002",
	}},
	{"empty file", UserMessage{
		Message: "The file has no header row",
		Action:  "Include the columns document, name, password and role",
		Code:    "IMP002",
	}},
	{"too many rows", UserMessage{
		Message: "The file has too many rows",
		Action:  "Split the file and import each part",
		Code:    "IMP003",
	}},
	{"invalid csv", UserMessage{
		Message: "The file is not valid CSV",
		Action:  "Export the sheet as CSV and try again",
		Code:    "IMP004",
	}},
	{"invalid token", unauthorized},
	{"missing token", unauthorized},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "The request timed out",
		Action:  "Please try again later",
		Code:    "DB006",
	}},
	{"timeout", UserMessage{
		Message: "The request timed out",
		Action:  "Please try again later",
		Code:    "DB006",
	}},
	{"invalid request body", UserMessage{
		Message: "The request body is not valid",
		Action:  "Send a JSON object with the expected fields",
		Code:    "REQ001",
	}},
	{"not found", UserMessage{
		Message: "Record not found",
		Action:  "Check the identifier and try again",
		Code:    "NF001",
	}},
	{"rate limit", rateLimited},
}

// MapError returns the client message for err.
func MapError(err error) UserMessage {
	if err == nil {
		return defaultMessage
	}
	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.pattern) {
			return p.msg
		}
	}
	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific code.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}

// respondError logs err with request context and writes the mapped message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := MapError(err)

	logging.FromContext(r.Context()).Errorw("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err,
		"code", msg.Code,
	)

	respondErrorJSON(w, msg, status)
}

func respondErrorJSON(w http.ResponseWriter, msg UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
