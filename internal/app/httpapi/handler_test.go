package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpulate/platform/internal/app"
	"github.com/corpulate/platform/internal/app/auth"
	"github.com/corpulate/platform/internal/httputil"
	"github.com/corpulate/platform/pkg/logger"
)

type envelope struct {
	Success    bool                 `json:"success"`
	Data       json.RawMessage      `json:"data"`
	Message    string               `json:"message"`
	Pagination *httputil.Pagination `json:"pagination"`
	Details    map[string]any       `json:"details"`
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{
		Tokens: auth.NewTokenManager("handler-test-secret"),
	}, logger.NewDefault("test"))
	require.NoError(t, err)
	return NewHandler(application, Options{Logger: logger.NewDefault("test")})
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return rec.Code, env
}

type sessionBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
	User    struct {
		ID       int64  `json:"id"`
		Email    string `json:"email"`
		Password string `json:"password"`
	} `json:"user"`
}

func signupSession(t *testing.T, h http.Handler, email string) (int64, string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{
		"email":     email,
		"password":  "secret12",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var session sessionBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	require.Empty(t, session.User.Password, "password must never be serialized")
	return session.User.ID, session.Token
}

func TestSignupAndLogin(t *testing.T) {
	h := newTestHandler(t)

	_, token := signupSession(t, h, "ada@example.com")
	assert.NotEmpty(t, token)

	status, env := doRequest(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":     "ADA@example.com",
		"password":  "secret12",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)
	assert.Equal(t, "User with this email already exists", env.Message)

	status, env = doRequest(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", env.Message)

	status, env = doRequest(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "Ada@Example.com",
		"password": "secret12",
	})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Equal(t, "Login successful", env.Message)
}

func TestSignupValidation(t *testing.T) {
	h := newTestHandler(t)

	status, env := doRequest(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":     "not-an-email",
		"password":  "secret12",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid email format", env.Message)

	status, env = doRequest(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":     "short@example.com",
		"password":  "abc",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Password must be at least 6 characters long", env.Message)

	// Exactly six characters is accepted.
	status, env = doRequest(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":     "boundary@example.com",
		"password":  "abcdef",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
	assert.Equal(t, http.StatusCreated, status, "message: %s", env.Message)
}

func TestCatalogCreateValidation(t *testing.T) {
	h := newTestHandler(t)

	status, env := doRequest(t, h, http.MethodPost, "/api/packages", "", map[string]any{
		"package_title": "LLC Formation",
		"package_price": 49,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required fields: package_title, package_description, package_price", env.Message)

	// A free package is valid as long as the price is present.
	status, env = doRequest(t, h, http.MethodPost, "/api/packages", "", map[string]any{
		"package_title":       "Free Consultation",
		"package_price":       0,
		"package_description": "test package",
	})
	assert.Equal(t, http.StatusCreated, status, "message: %s", env.Message)

	status, env = doRequest(t, h, http.MethodPost, "/api/adones", "", map[string]any{
		"ad_title": "EIN Filing",
		"ad_price": 25,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required fields: ad_title, ad_price, ad_description", env.Message)

	// Add-ons treat a zero price as missing.
	status, env = doRequest(t, h, http.MethodPost, "/api/adones", "", map[string]any{
		"ad_title":       "EIN Filing",
		"ad_price":       0,
		"ad_description": "test add-on",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required fields: ad_title, ad_price, ad_description", env.Message)

	status, env = doRequest(t, h, http.MethodPost, "/api/adones", "", map[string]any{
		"ad_title":       "EIN Filing",
		"ad_price":       -3,
		"ad_description": "test add-on",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Price must be a positive number", env.Message)
}

func createPackage(t *testing.T, h http.Handler, title string, price float64) int64 {
	t.Helper()
	status, env := doRequest(t, h, http.MethodPost, "/api/packages", "", map[string]any{
		"package_title":       title,
		"package_price":       price,
		"package_description": "test package",
	})
	require.Equal(t, http.StatusCreated, status, "message: %s", env.Message)

	var pkg struct {
		ID int64 `json:"package_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pkg))
	require.NotZero(t, pkg.ID)
	return pkg.ID
}

func createAddOn(t *testing.T, h http.Handler, title string, price float64) int64 {
	t.Helper()
	status, env := doRequest(t, h, http.MethodPost, "/api/adones", "", map[string]any{
		"ad_title":       title,
		"ad_price":       price,
		"ad_description": "test add-on",
	})
	require.Equal(t, http.StatusCreated, status, "message: %s", env.Message)

	var addOn struct {
		ID int64 `json:"ad_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &addOn))
	require.NotZero(t, addOn.ID)
	return addOn.ID
}

func TestPackageLifecycle(t *testing.T) {
	h := newTestHandler(t)

	id := createPackage(t, h, "LLC Formation", 99)

	status, env := doRequest(t, h, http.MethodPost, "/api/packages", "", map[string]any{
		"package_title":       "LLC Formation",
		"package_price":       49,
		"package_description": "test package",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Package with this title already exists", env.Message)

	status, env = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/packages/%d", id), "", nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		Title        string `json:"package_title"`
		RequestCount int    `json:"request_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "LLC Formation", detail.Title)
	assert.Zero(t, detail.RequestCount)

	status, env = doRequest(t, h, http.MethodPut, fmt.Sprintf("/api/packages/%d", id), "", map[string]any{
		"package_price": 129,
	})
	require.Equal(t, http.StatusOK, status)
	var updated struct {
		Price float64 `json:"package_price"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, 129.0, updated.Price)

	status, env = doRequest(t, h, http.MethodDelete, fmt.Sprintf("/api/packages/%d", id), "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Package deleted successfully", env.Message)

	status, env = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/packages/%d", id), "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Package not found", env.Message)
}

func TestPackageListPagination(t *testing.T) {
	h := newTestHandler(t)
	for i := 0; i < 15; i++ {
		createPackage(t, h, fmt.Sprintf("Package %02d", i), float64(10+i))
	}

	status, env := doRequest(t, h, http.MethodGet, "/api/packages?page=2&limit=10", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
	assert.Equal(t, 15, env.Pagination.Total)
	assert.Equal(t, 2, env.Pagination.TotalPages)
	assert.False(t, env.Pagination.HasNext)
	assert.True(t, env.Pagination.HasPrev)

	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 5)
}

func TestPackageBulkOperations(t *testing.T) {
	h := newTestHandler(t)
	a := createPackage(t, h, "Bulk A", 10)
	b := createPackage(t, h, "Bulk B", 20)

	status, env := doRequest(t, h, http.MethodPost, "/api/packages/bulk", "", map[string]any{
		"operation":   "update",
		"package_ids": []int64{a, b},
		"data":        map[string]any{"package_price": 55},
	})
	require.Equal(t, http.StatusOK, status)
	var res map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, int64(2), res["updated"])

	status, env = doRequest(t, h, http.MethodPost, "/api/packages/bulk", "", map[string]any{
		"operation":   "delete",
		"package_ids": []int64{a, b},
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, int64(2), res["deleted"])

	status, env = doRequest(t, h, http.MethodPost, "/api/packages/bulk", "", map[string]any{
		"operation":   "archive",
		"package_ids": []int64{a},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid operation; must be update or delete", env.Message)

	// An id list with nothing usable is rejected before the operation runs.
	status, env = doRequest(t, h, http.MethodPost, "/api/packages/bulk", "", map[string]any{
		"operation":   "update",
		"package_ids": []int64{},
		"data":        map[string]any{"package_price": 10},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No valid package IDs provided", env.Message)
}

func TestPackageSearch(t *testing.T) {
	h := newTestHandler(t)
	createPackage(t, h, "Starter Bundle", 49)
	createPackage(t, h, "Premium Bundle", 199)
	createPackage(t, h, "Enterprise Suite", 499)

	status, env := doRequest(t, h, http.MethodGet, "/api/packages/search?q=bundle&limit=1", "", nil)
	require.Equal(t, http.StatusOK, status)

	var result struct {
		Results    []json.RawMessage `json:"results"`
		Pagination struct {
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Results, 1)
	assert.Equal(t, 2, result.Pagination.Total)
	assert.True(t, result.Pagination.HasMore)
}

func TestAddOnBulkActivateAndExport(t *testing.T) {
	h := newTestHandler(t)
	a := createAddOn(t, h, "EIN Filing", 25)
	b := createAddOn(t, h, "Registered Agent", 99)

	status, env := doRequest(t, h, http.MethodPost, "/api/adones/bulk", "", map[string]any{
		"operation": "activate",
		"ids":       []int64{a, b},
	})
	require.Equal(t, http.StatusOK, status)
	var res map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, int64(2), res["activated"])

	// Bulk operations never run against an empty id list, export included.
	status, env = doRequest(t, h, http.MethodPost, "/api/adones/bulk", "", map[string]any{
		"operation": "export",
		"ids":       []int64{},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No valid add-on IDs provided", env.Message)

	status, env = doRequest(t, h, http.MethodPost, "/api/adones/bulk", "", map[string]any{
		"operation": "export",
		"ids":       []int64{a, b},
	})
	require.Equal(t, http.StatusOK, status)
	var export struct {
		Records    []json.RawMessage `json:"records"`
		ExportInfo struct {
			Timestamp    string `json:"timestamp"`
			TotalRecords int    `json:"totalRecords"`
			Format       string `json:"format"`
		} `json:"exportInfo"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &export))
	assert.Len(t, export.Records, 2)
	assert.Equal(t, 2, export.ExportInfo.TotalRecords)
	assert.Equal(t, "JSON", export.ExportInfo.Format)
	assert.NotEmpty(t, export.ExportInfo.Timestamp)
}

func TestAddOnSearch(t *testing.T) {
	h := newTestHandler(t)
	createAddOn(t, h, "Expedited Processing", 50)
	createAddOn(t, h, "Expedited Shipping", 80)
	createAddOn(t, h, "Registered Agent", 99)

	// Without a query the whole catalog matches.
	status, env := doRequest(t, h, http.MethodGet, "/api/adones/search", "", nil)
	require.Equal(t, http.StatusOK, status)
	var result struct {
		Results     []json.RawMessage `json:"results"`
		Suggestions []string          `json:"suggestions"`
		PriceRange  struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"price_range"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Results, 3)

	status, env = doRequest(t, h, http.MethodGet, "/api/adones/search?q=processing", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Results, 1)
	assert.Equal(t, 50.0, result.PriceRange.Min)
	assert.Equal(t, 99.0, result.PriceRange.Max)

	status, env = doRequest(t, h, http.MethodGet, "/api/adones/search?category=expedited", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Results, 2)
}

func TestAddOnListDefaultOrder(t *testing.T) {
	h := newTestHandler(t)
	createAddOn(t, h, "Older", 10)
	time.Sleep(time.Millisecond)
	newest := createAddOn(t, h, "Newer", 20)

	status, env := doRequest(t, h, http.MethodGet, "/api/adones", "", nil)
	require.Equal(t, http.StatusOK, status)
	var items []struct {
		ID int64 `json:"ad_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	// Newest first unless the caller picks a sortOrder.
	assert.Equal(t, newest, items[0].ID)

	status, env = doRequest(t, h, http.MethodGet, "/api/adones?sortBy=created_at&sortOrder=asc", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Equal(t, newest, items[1].ID)
}

func TestRequestsRequireAuth(t *testing.T) {
	h := newTestHandler(t)

	status, env := doRequest(t, h, http.MethodGet, "/api/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Missing Authorization header", env.Message)

	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	status, env = doRequest(t, h, http.MethodGet, "/api/requests", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or expired token", env.Message)
}

func TestRequestLifecycle(t *testing.T) {
	h := newTestHandler(t)
	_, token := signupSession(t, h, "owner@example.com")
	_, otherToken := signupSession(t, h, "other@example.com")

	pkgID := createPackage(t, h, "Incorporation", 149)
	addOnID := createAddOn(t, h, "Bank Account Setup", 75)

	status, env := doRequest(t, h, http.MethodPost, "/api/requests", token, map[string]any{
		"name":         "Jordan Smith",
		"company_name": "Smith Consulting LLC",
		"package_id":   pkgID,
		"ad_ids":       []int64{addOnID, addOnID},
	})
	require.Equal(t, http.StatusCreated, status, "message: %s", env.Message)
	var created struct {
		ID       int64   `json:"id"`
		Status   string  `json:"status"`
		AddOnIDs []int64 `json:"ad_ids"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, []int64{addOnID}, created.AddOnIDs)

	status, env = doRequest(t, h, http.MethodGet, "/api/requests", token, nil)
	require.Equal(t, http.StatusOK, status)
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	status, env = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/requests/%d", created.ID), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Request not found", env.Message)

	status, env = doRequest(t, h, http.MethodPatch, fmt.Sprintf("/api/requests/%d", created.ID), token, map[string]string{
		"status": "completed",
	})
	require.Equal(t, http.StatusOK, status)
	var updated struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "completed", updated.Status)

	status, env = doRequest(t, h, http.MethodPatch, fmt.Sprintf("/api/requests/%d", created.ID), token, map[string]string{
		"status": "archived",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRequestReferencesValidated(t *testing.T) {
	h := newTestHandler(t)
	_, token := signupSession(t, h, "ref@example.com")

	status, env := doRequest(t, h, http.MethodPost, "/api/requests", token, map[string]any{
		"name":         "Jordan Smith",
		"company_name": "Smith Consulting LLC",
		"package_id":   9999,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Selected package does not exist", env.Message)
}

func TestInvalidPathID(t *testing.T) {
	h := newTestHandler(t)

	status, env := doRequest(t, h, http.MethodGet, "/api/packages/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "Invalid ID")
}

func TestRouteNotFound(t *testing.T) {
	h := newTestHandler(t)

	status, env := doRequest(t, h, http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Route not found", env.Message)
}

func TestInvalidJSONBody(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/packages", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "Invalid JSON body", env.Message)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)

	status, env := doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}
