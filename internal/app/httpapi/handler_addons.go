package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	addonsvc "github.com/corpulate/platform/internal/app/services/addons"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/internal/httputil"
)

func (h *handler) listAddOns(w http.ResponseWriter, r *http.Request) {
	sortBy, desc := addOnSortParams(r)
	result, err := h.app.AddOns.List(r.Context(), addonsvc.ListInput{
		Search:      r.URL.Query().Get("search"),
		MinPrice:    queryFloat(r, "min_price"),
		MaxPrice:    queryFloat(r, "max_price"),
		HasRequests: queryBool(r, "hasRequests"),
		SortBy:      sortBy,
		SortDesc:    desc,
		Page:        queryInt(r, "page", 1),
		Limit:       queryInt(r, "limit", 10),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WritePage(w, result.Items, httputil.NewPagination(result.Page, result.Limit, result.Total))
}

func (h *handler) createAddOn(w http.ResponseWriter, r *http.Request) {
	var in addonsvc.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.respondErr(w, r, err)
		return
	}
	created, err := h.app.AddOns.Create(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, created)
}

func (h *handler) getAddOn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	detail, err := h.app.AddOns.GetDetail(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, detail)
}

func (h *handler) updateAddOn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var upd catalog.AddOnUpdate
	if err := decodeJSON(r.Body, &upd); err != nil {
		h.respondErr(w, r, err)
		return
	}
	updated, err := h.app.AddOns.Update(r.Context(), id, upd)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, updated)
}

func (h *handler) deleteAddOn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.app.AddOns.Delete(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Add-on deleted successfully")
}

type bulkAddOnPayload struct {
	Operation string              `json:"operation"`
	AddOnIDs  []json.Number       `json:"ids"`
	Data      catalog.AddOnUpdate `json:"data"`
}

func (h *handler) bulkAddOns(w http.ResponseWriter, r *http.Request) {
	var payload bulkAddOnPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.respondErr(w, r, err)
		return
	}
	ids := filterIDs(payload.AddOnIDs)
	if len(ids) == 0 {
		h.respondErr(w, r, errors.BadRequest("No valid add-on IDs provided"))
		return
	}

	switch payload.Operation {
	case "update":
		affected, err := h.app.AddOns.BulkUpdate(r.Context(), ids, payload.Data)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httputil.WriteData(w, http.StatusOK, map[string]interface{}{"updated": affected})
	case "delete":
		deleted, err := h.app.AddOns.BulkDelete(r.Context(), ids)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httputil.WriteData(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
	case "activate":
		activated, err := h.app.AddOns.BulkActivate(r.Context(), ids)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httputil.WriteData(w, http.StatusOK, map[string]interface{}{"activated": activated})
	case "export":
		items, err := h.app.AddOns.Export(r.Context(), ids)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httputil.WriteData(w, http.StatusOK, map[string]interface{}{
			"records": items,
			"exportInfo": map[string]interface{}{
				"timestamp":    time.Now().UTC().Format(time.RFC3339),
				"totalRecords": len(items),
				"format":       "JSON",
			},
		})
	default:
		h.respondErr(w, r, errors.BadRequest("Invalid operation; must be update, delete, activate or export"))
	}
}

func (h *handler) searchAddOns(w http.ResponseWriter, r *http.Request) {
	sortBy, desc := addOnSortParams(r)
	result, err := h.app.AddOns.Search(r.Context(), addonsvc.SearchInput{
		Query:       r.URL.Query().Get("q"),
		Category:    r.URL.Query().Get("category"),
		MinPrice:    queryFloat(r, "min_price"),
		MaxPrice:    queryFloat(r, "max_price"),
		HasRequests: queryBool(r, "hasRequests"),
		SortBy:      sortBy,
		SortDesc:    desc,
		Limit:       queryInt(r, "limit", 20),
		Offset:      queryInt(r, "offset", 0),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"results":     result.Items,
		"suggestions": result.Suggestions,
		"price_range": map[string]float64{"min": result.PriceFloor, "max": result.PriceCeil},
		"pagination": map[string]interface{}{
			"total":    result.Total,
			"limit":    result.Limit,
			"offset":   result.Offset,
			"has_more": result.HasMore,
		},
	})
}

func (h *handler) addOnStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.AddOns.GetStats(r.Context(), addonsvc.Period(r.URL.Query().Get("period")))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, stats)
}
