package httpapi

import (
	"net/http"

	"github.com/corpulate/platform/internal/app/domain/registration"
	requestsvc "github.com/corpulate/platform/internal/app/services/requests"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/internal/httputil"
	"github.com/corpulate/platform/internal/middleware"
)

func (h *handler) createRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		h.respondErr(w, r, errors.Unauthorized("Authentication required"))
		return
	}
	var in requestsvc.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.respondErr(w, r, err)
		return
	}
	created, err := h.app.Requests.Create(r.Context(), userID, in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, created)
}

func (h *handler) listRequests(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		h.respondErr(w, r, errors.Unauthorized("Authentication required"))
		return
	}
	items, err := h.app.Requests.List(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if items == nil {
		items = []registration.Request{}
	}
	httputil.WriteData(w, http.StatusOK, items)
}

func (h *handler) getRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		h.respondErr(w, r, errors.Unauthorized("Authentication required"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	req, err := h.app.Requests.Get(r.Context(), userID, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, req)
}

func (h *handler) updateRequestStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		h.respondErr(w, r, errors.Unauthorized("Authentication required"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.respondErr(w, r, err)
		return
	}
	updated, err := h.app.Requests.UpdateStatus(r.Context(), userID, id, registration.Status(payload.Status))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, updated)
}
