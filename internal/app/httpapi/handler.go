// Package httpapi exposes the application services as a REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/corpulate/platform/internal/app"
	"github.com/corpulate/platform/internal/app/metrics"
	"github.com/corpulate/platform/internal/app/storage"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/internal/httputil"
	"github.com/corpulate/platform/internal/mailer"
	"github.com/corpulate/platform/internal/middleware"
	"github.com/corpulate/platform/pkg/logger"
)

// Options configures the HTTP handler.
type Options struct {
	Logger         *logger.Logger
	Mailer         mailer.Mailer
	HealthCheck    func(ctx context.Context) error
	AllowedOrigins []string
	RatePerSecond  int
	RateBurst      int
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app    *app.Application
	mail   mailer.Mailer
	health func(ctx context.Context) error
	log    *logger.Logger
}

// NewHandler returns the fully routed and instrumented API handler.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		app:    application,
		mail:   opts.Mailer,
		health: opts.HealthCheck,
		log:    log,
	}

	r := mux.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(log).Handler)
	r.Use(metrics.InstrumentHandler)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler)
	}
	if opts.RatePerSecond > 0 {
		limiter := middleware.NewRateLimiter(opts.RatePerSecond, opts.RateBurst, log)
		limiter.StartCleanup(10 * time.Minute)
		r.Use(limiter.Handler)
	}

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", h.signup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/test-email", h.testEmail).Methods(http.MethodPost)

	api.HandleFunc("/packages", h.listPackages).Methods(http.MethodGet)
	api.HandleFunc("/packages", h.createPackage).Methods(http.MethodPost)
	api.HandleFunc("/packages/search", h.searchPackages).Methods(http.MethodGet)
	api.HandleFunc("/packages/stats", h.packageStats).Methods(http.MethodGet)
	api.HandleFunc("/packages/bulk", h.bulkPackages).Methods(http.MethodPost)
	api.HandleFunc("/packages/{id}", h.getPackage).Methods(http.MethodGet)
	api.HandleFunc("/packages/{id}", h.updatePackage).Methods(http.MethodPut)
	api.HandleFunc("/packages/{id}", h.deletePackage).Methods(http.MethodDelete)

	api.HandleFunc("/adones", h.listAddOns).Methods(http.MethodGet)
	api.HandleFunc("/adones", h.createAddOn).Methods(http.MethodPost)
	api.HandleFunc("/adones/search", h.searchAddOns).Methods(http.MethodGet)
	api.HandleFunc("/adones/stats", h.addOnStats).Methods(http.MethodGet)
	api.HandleFunc("/adones/bulk", h.bulkAddOns).Methods(http.MethodPost)
	api.HandleFunc("/adones/{id}", h.getAddOn).Methods(http.MethodGet)
	api.HandleFunc("/adones/{id}", h.updateAddOn).Methods(http.MethodPut)
	api.HandleFunc("/adones/{id}", h.deleteAddOn).Methods(http.MethodDelete)

	authed := api.PathPrefix("/requests").Subrouter()
	authed.Use(middleware.NewAuthMiddleware(application.Tokens, log).Handler)
	authed.HandleFunc("", h.createRequest).Methods(http.MethodPost)
	authed.HandleFunc("", h.listRequests).Methods(http.MethodGet)
	authed.HandleFunc("/{id}", h.getRequest).Methods(http.MethodGet)
	authed.HandleFunc("/{id}", h.updateRequestStatus).Methods(http.MethodPatch)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, errors.NotFound("Route not found"))
	})

	return r
}

// --- shared helpers ----------------------------------------------------------

func (h *handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if se := errors.GetServiceError(err); se == nil || se.HTTPStatus >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	httputil.WriteError(w, r, err)
}

func decodeJSON(body io.Reader, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.BadRequest("Invalid JSON body")
	}
	return nil
}

// pathID parses the {id} route variable, rejecting non-numeric values.
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest(fmt.Sprintf("Invalid ID: %q", raw))
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, key string) *float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryBool(r *http.Request, key string) *bool {
	raw := strings.ToLower(r.URL.Query().Get(key))
	switch raw {
	case "true", "1":
		v := true
		return &v
	case "false", "0":
		v := false
		return &v
	}
	return nil
}

// sortParams maps the public sortBy/sortOrder query values onto the storage
// sort vocabulary. Unknown fields yield an empty string so the service can
// apply its default.
func sortParams(r *http.Request, fields map[string]string) (string, bool) {
	sortBy := fields[r.URL.Query().Get("sortBy")]
	desc := strings.EqualFold(r.URL.Query().Get("sortOrder"), "desc")
	return sortBy, desc
}

// addOnSortParams is sortParams with the add-on default order: newest first
// unless the caller asks for an explicit sortOrder.
func addOnSortParams(r *http.Request) (string, bool) {
	sortBy, desc := sortParams(r, addOnSortFields)
	if r.URL.Query().Get("sortOrder") == "" {
		desc = true
	}
	return sortBy, desc
}

// filterIDs keeps the positive integers of a raw JSON ID list; fractional or
// non-positive entries are dropped silently.
func filterIDs(raw []json.Number) []int64 {
	var ids []int64
	for _, n := range raw {
		id, err := n.Int64()
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// --- operational endpoints ---------------------------------------------------

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.WithContext(r.Context()).WithError(err).Error("health check failed")
			status["status"] = "degraded"
			status["database"] = "unreachable"
			httputil.WriteData(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	httputil.WriteData(w, http.StatusOK, status)
}

func (h *handler) testEmail(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		To string `json:"to"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if strings.TrimSpace(payload.To) == "" {
		h.respondErr(w, r, errors.BadRequest("Recipient address is required"))
		return
	}
	if h.mail == nil {
		h.respondErr(w, r, errors.BadRequest("Mail transport is not configured"))
		return
	}
	if err := h.mail.Send(r.Context(), payload.To, "Corpulate test email", "This is a test email from the Corpulate API."); err != nil {
		h.respondErr(w, r, errors.Internal("failed to send test email", err))
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Test email sent")
}

// packageSortFields maps public sort names for packages.
var packageSortFields = map[string]string{
	"package_id":    storage.SortByID,
	"package_title": storage.SortByTitle,
	"package_price": storage.SortByPrice,
	"created_at":    storage.SortByCreatedAt,
}

// addOnSortFields maps public sort names for add-ons.
var addOnSortFields = map[string]string{
	"ad_id":      storage.SortByID,
	"ad_title":   storage.SortByTitle,
	"ad_price":   storage.SortByPrice,
	"created_at": storage.SortByCreatedAt,
	"usage":      storage.SortByUsage,
}
