package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/pkg/logger"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination interface{} `json:"pagination,omitempty"`
	Details    interface{} `json:"details,omitempty"`
	TraceID    string      `json:"trace_id,omitempty"`
}

// Pagination is the page-based metadata returned by listing endpoints.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination derives page metadata from a total match count.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteData sends a success envelope.
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Envelope{Success: true, Data: data})
}

// WriteMessage sends a success envelope carrying only a message.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Success: true, Message: message})
}

// WritePage sends a success envelope with pagination metadata.
func WritePage(w http.ResponseWriter, data interface{}, p Pagination) {
	write(w, http.StatusOK, Envelope{Success: true, Data: data, Pagination: p})
}

// WriteError maps an error to the envelope. Expected failures keep their
// message; anything else becomes an opaque 500 carrying the request's trace
// ID so the cause can be found in the logs.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil || se.HTTPStatus >= http.StatusInternalServerError {
		write(w, http.StatusInternalServerError, Envelope{
			Success: false,
			Message: "Internal server error",
			TraceID: logger.GetTraceID(r.Context()),
		})
		return
	}
	write(w, se.HTTPStatus, Envelope{
		Success: false,
		Message: se.Message,
		Details: detailsOrNil(se),
	})
}

func detailsOrNil(se *errors.ServiceError) interface{} {
	if len(se.Details) == 0 {
		return nil
	}
	return se.Details
}
