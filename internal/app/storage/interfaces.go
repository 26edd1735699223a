// Package storage declares the persistence interfaces for the Corpulate API.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	"github.com/corpulate/platform/internal/app/domain/registration"
	"github.com/corpulate/platform/internal/app/domain/user"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write would break a schema constraint
// (duplicate title, delete of a referenced row). Services pre-check these
// rules for friendly messages; the store error is the transactional backstop.
var ErrConflict = errors.New("conflict")

// Sort fields accepted by the list filters. Services translate external sort
// keys to these values; stores reject anything else.
const (
	SortByID        = "id"
	SortByTitle     = "title"
	SortByPrice     = "price"
	SortByCreatedAt = "created_at"
	SortByUsage     = "usage"
)

// PackageFilter narrows and orders package listings.
type PackageFilter struct {
	Search   string
	MinPrice *float64
	MaxPrice *float64
	SortBy   string
	SortDesc bool
	Limit    int
	Offset   int
}

// AddOnFilter narrows and orders add-on listings. Search matches title,
// description and information; Category matches title and description only.
type AddOnFilter struct {
	Search      string
	Category    string
	MinPrice    *float64
	MaxPrice    *float64
	HasRequests *bool
	SortBy      string
	SortDesc    bool
	Limit       int
	Offset      int
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	UserID int64
	Status registration.Status
}

// PriceBuckets are the fixed histogram boundaries used by the stats endpoints.
var PriceBuckets = []float64{50, 100, 200}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id int64) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// PackageStore persists service packages.
type PackageStore interface {
	CreatePackage(ctx context.Context, p catalog.Package) (catalog.Package, error)
	UpdatePackage(ctx context.Context, p catalog.Package) (catalog.Package, error)
	GetPackage(ctx context.Context, id int64) (catalog.Package, error)
	ListPackages(ctx context.Context, f PackageFilter) ([]catalog.Package, int, error)
	DeletePackage(ctx context.Context, id int64) error
	BulkUpdatePackages(ctx context.Context, ids []int64, upd catalog.PackageUpdate) (int64, error)
	BulkDeletePackages(ctx context.Context, ids []int64) (int64, error)
	// FindPackageByTitle matches exactly; excludeID skips one row (0 to match all).
	FindPackageByTitle(ctx context.Context, title string, excludeID int64) (catalog.Package, error)
	CountPackages(ctx context.Context) (int, error)
}

// AddOnStore persists add-ons and answers the aggregate queries behind the
// search and stats endpoints.
type AddOnStore interface {
	CreateAddOn(ctx context.Context, a catalog.AddOn) (catalog.AddOn, error)
	UpdateAddOn(ctx context.Context, a catalog.AddOn) (catalog.AddOn, error)
	GetAddOn(ctx context.Context, id int64) (catalog.AddOn, error)
	ListAddOns(ctx context.Context, f AddOnFilter) ([]catalog.AddOn, int, error)
	DeleteAddOn(ctx context.Context, id int64) error
	BulkUpdateAddOns(ctx context.Context, ids []int64, upd catalog.AddOnUpdate) (int64, error)
	BulkDeleteAddOns(ctx context.Context, ids []int64) (int64, error)
	// TouchAddOns refreshes updated_at on the given rows (bulk activate).
	TouchAddOns(ctx context.Context, ids []int64) (int64, error)
	GetAddOns(ctx context.Context, ids []int64) ([]catalog.AddOn, error)
	// FindAddOnByTitleFold matches case-insensitively; excludeID skips one row.
	FindAddOnByTitleFold(ctx context.Context, title string, excludeID int64) (catalog.AddOn, error)
	DistinctAddOnTitles(ctx context.Context, limit int) ([]string, error)
	AddOnPriceStats(ctx context.Context) (catalog.PriceStats, error)
	// CountAddOns counts rows created at or after since; a zero time counts all.
	CountAddOns(ctx context.Context, since time.Time) (int, error)
	// PriceHistogram returns len(bounds)+1 counts: (-inf,b0), [b0,b1), ..., [bn,inf).
	PriceHistogram(ctx context.Context, bounds []float64) ([]int, error)
	MostUsedAddOns(ctx context.Context, limit int) ([]catalog.AddOnUsage, error)
	RecentAddOns(ctx context.Context, limit int) ([]catalog.AddOn, error)
}

// RequestStore persists registration requests and their add-on links.
type RequestStore interface {
	CreateRequest(ctx context.Context, req registration.Request) (registration.Request, error)
	GetRequest(ctx context.Context, id int64) (registration.Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]registration.Request, error)
	UpdateRequestStatus(ctx context.Context, id int64, status registration.Status) (registration.Request, error)
	CountRequests(ctx context.Context) (int, error)
	// CountWithAddOns counts requests referencing at least one add-on.
	CountWithAddOns(ctx context.Context) (int, error)
	CountsByPackage(ctx context.Context, ids []int64) (map[int64]registration.StatusCounts, error)
	CountsByAddOn(ctx context.Context, ids []int64) (map[int64]int, error)
	RecentByPackage(ctx context.Context, packageID int64, limit int) ([]registration.Summary, error)
	RecentByAddOn(ctx context.Context, addOnID int64, limit int) ([]registration.Summary, error)
}
