package respond

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/bugtracker-backend/internal/apperrors"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Data      any                    `json:"data,omitempty"`
	Errors    []apperrors.FieldError `json:"errors,omitempty"`
	Meta      any                    `json:"meta,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// WriteJSON writes v with the given status. Encoding errors are ignored
// because the header has already been sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func Success(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data, Timestamp: now()})
}

func SuccessWithMeta(w http.ResponseWriter, status int, message string, data, meta any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data, Meta: meta, Timestamp: now()})
}

// Paginated writes a 200 list response with page metadata under meta.pagination.
func Paginated(w http.ResponseWriter, message string, data any, page, limit int, total int64) {
	totalPages := 0
	if limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	meta := map[string]Pagination{
		"pagination": {
			Page:        page,
			Limit:       limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNextPage: page < totalPages,
			HasPrevPage: page > 1,
		},
	}
	SuccessWithMeta(w, http.StatusOK, message, data, meta)
}

// Fail writes an error envelope without logging.
func Fail(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message, Timestamp: now()})
}

// FailWithData writes an error envelope that still carries a data payload.
func FailWithData(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: false, Message: message, Data: data, Timestamp: now()})
}

// Error writes err as an error envelope. Anything that is not an AppError, or
// is an internal one, is logged and reported as a bare 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.As(err)
	if appErr.Status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("internal error")
	}
	WriteJSON(w, appErr.Status, Envelope{
		Success:   false,
		Message:   appErr.Message,
		Errors:    appErr.Fields,
		Timestamp: now(),
	})
}
