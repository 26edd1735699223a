package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	packagesvc "github.com/corpulate/platform/internal/app/services/packages"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/internal/httputil"
)

func (h *handler) listPackages(w http.ResponseWriter, r *http.Request) {
	sortBy, desc := sortParams(r, packageSortFields)
	result, err := h.app.Packages.List(r.Context(), packagesvc.ListInput{
		Search:   r.URL.Query().Get("search"),
		MinPrice: queryFloat(r, "min_price"),
		MaxPrice: queryFloat(r, "max_price"),
		SortBy:   sortBy,
		SortDesc: desc,
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 10),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WritePage(w, result.Items, httputil.NewPagination(result.Page, result.Limit, result.Total))
}

func (h *handler) createPackage(w http.ResponseWriter, r *http.Request) {
	var in packagesvc.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.respondErr(w, r, err)
		return
	}
	created, err := h.app.Packages.Create(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, created)
}

func (h *handler) getPackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	detail, err := h.app.Packages.GetDetail(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, detail)
}

func (h *handler) updatePackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var upd catalog.PackageUpdate
	if err := decodeJSON(r.Body, &upd); err != nil {
		h.respondErr(w, r, err)
		return
	}
	updated, err := h.app.Packages.Update(r.Context(), id, upd)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, updated)
}

func (h *handler) deletePackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.app.Packages.Delete(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Package deleted successfully")
}

type bulkPackagePayload struct {
	Operation  string                `json:"operation"`
	PackageIDs []json.Number         `json:"package_ids"`
	Data       catalog.PackageUpdate `json:"data"`
}

func (h *handler) bulkPackages(w http.ResponseWriter, r *http.Request) {
	var payload bulkPackagePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.respondErr(w, r, err)
		return
	}
	ids := filterIDs(payload.PackageIDs)
	if len(ids) == 0 {
		h.respondErr(w, r, errors.BadRequest("No valid package IDs provided"))
		return
	}

	switch payload.Operation {
	case "update":
		affected, err := h.app.Packages.BulkUpdate(r.Context(), ids, payload.Data)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httputil.WriteData(w, http.StatusOK, map[string]interface{}{"updated": affected})
	case "delete":
		deleted, err := h.app.Packages.BulkDelete(r.Context(), ids)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httputil.WriteData(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
	default:
		h.respondErr(w, r, errors.BadRequest("Invalid operation; must be update or delete"))
	}
}

func (h *handler) searchPackages(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Packages.Search(r.Context(), packagesvc.SearchInput{
		Query:    r.URL.Query().Get("q"),
		MinPrice: queryFloat(r, "min_price"),
		MaxPrice: queryFloat(r, "max_price"),
		Limit:    queryInt(r, "limit", 10),
		Offset:   queryInt(r, "offset", 0),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"results": result.Items,
		"pagination": map[string]interface{}{
			"total":    result.Total,
			"limit":    result.Limit,
			"offset":   result.Offset,
			"has_more": result.HasMore,
		},
	})
}

func (h *handler) packageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Packages.GetStats(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, stats)
}
