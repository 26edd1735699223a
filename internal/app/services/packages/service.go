// Package packages implements business rules for the formation package
// catalog: validation, title uniqueness, bulk operations and usage stats.
package packages

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	"github.com/corpulate/platform/internal/app/domain/registration"
	"github.com/corpulate/platform/internal/app/storage"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/pkg/logger"
)

// Service manages formation packages.
type Service struct {
	store    storage.PackageStore
	requests storage.RequestStore
	log      *logger.Logger
}

// New constructs a package service.
func New(store storage.PackageStore, requests storage.RequestStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("packages")
	}
	return &Service{store: store, requests: requests, log: log}
}

// CreateInput carries the fields accepted when creating a package. Price is
// a pointer so an absent price can be told apart from a free package.
type CreateInput struct {
	Title       string   `json:"package_title"`
	Description string   `json:"package_description"`
	Price       *float64 `json:"package_price"`
}

// Create validates and stores a new package. Title, description and price
// are all required; a zero price is a valid free package. Titles must be
// unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (catalog.Package, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" || in.Description == "" || in.Price == nil {
		return catalog.Package{}, errors.BadRequest("Missing required fields: package_title, package_description, package_price")
	}
	if *in.Price < 0 {
		return catalog.Package{}, errors.BadRequest("Package price must be a positive number")
	}

	if _, err := s.store.FindPackageByTitle(ctx, in.Title, 0); err == nil {
		return catalog.Package{}, errors.Conflict("Package with this title already exists")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return catalog.Package{}, errors.Internal("failed to check package title", err)
	}

	created, err := s.store.CreatePackage(ctx, catalog.Package{
		Title:       in.Title,
		Description: in.Description,
		Price:       *in.Price,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return catalog.Package{}, errors.Conflict("Package with this title already exists")
		}
		return catalog.Package{}, errors.Internal("failed to create package", err)
	}
	s.log.WithField("package_id", created.ID).Info("package created")
	return created, nil
}

// Get retrieves a single package.
func (s *Service) Get(ctx context.Context, id int64) (catalog.Package, error) {
	pkg, err := s.store.GetPackage(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return catalog.Package{}, errors.NotFound("Package not found")
		}
		return catalog.Package{}, errors.Internal("failed to load package", err)
	}
	return pkg, nil
}

// ListInput narrows and orders the package listing.
type ListInput struct {
	Search   string
	MinPrice *float64
	MaxPrice *float64
	SortBy   string
	SortDesc bool
	Page     int
	Limit    int
}

// ListResult is a page of packages plus the unpaginated match count.
type ListResult struct {
	Items []catalog.Package
	Total int
	Page  int
	Limit int
}

// List returns a filtered, sorted page of packages. Unknown sort fields fall
// back to the identifier so callers cannot order by arbitrary columns.
func (s *Service) List(ctx context.Context, in ListInput) (ListResult, error) {
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 {
		in.Limit = 10
	}
	if in.Limit > 100 {
		in.Limit = 100
	}

	sortBy := in.SortBy
	switch sortBy {
	case storage.SortByID, storage.SortByTitle, storage.SortByPrice, storage.SortByCreatedAt:
	default:
		sortBy = storage.SortByID
	}

	items, total, err := s.store.ListPackages(ctx, storage.PackageFilter{
		Search:   strings.TrimSpace(in.Search),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		SortBy:   sortBy,
		SortDesc: in.SortDesc,
		Limit:    in.Limit,
		Offset:   (in.Page - 1) * in.Limit,
	})
	if err != nil {
		return ListResult{}, errors.Internal("failed to list packages", err)
	}
	return ListResult{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// Update applies the provided fields to an existing package.
func (s *Service) Update(ctx context.Context, id int64, upd catalog.PackageUpdate) (catalog.Package, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return catalog.Package{}, err
	}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return catalog.Package{}, errors.BadRequest("Package title is required")
		}
		if title != existing.Title {
			if _, err := s.store.FindPackageByTitle(ctx, title, id); err == nil {
				return catalog.Package{}, errors.Conflict("Package with this title already exists")
			} else if !stderrors.Is(err, storage.ErrNotFound) {
				return catalog.Package{}, errors.Internal("failed to check package title", err)
			}
		}
		existing.Title = title
	}
	if upd.Description != nil {
		existing.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Price != nil {
		if *upd.Price < 0 {
			return catalog.Package{}, errors.BadRequest("Package price must be a positive number")
		}
		existing.Price = *upd.Price
	}

	updated, err := s.store.UpdatePackage(ctx, existing)
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return catalog.Package{}, errors.Conflict("Package with this title already exists")
		}
		return catalog.Package{}, errors.Internal("failed to update package", err)
	}
	s.log.WithField("package_id", id).Info("package updated")
	return updated, nil
}

// Delete removes a package unless registration requests still reference it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	counts, err := s.requests.CountsByPackage(ctx, []int64{id})
	if err != nil {
		return errors.Internal("failed to check package usage", err)
	}
	if counts[id].Total > 0 {
		return errors.Conflict("Cannot delete package that is used by existing requests").
			WithDetails("request_count", counts[id].Total)
	}

	if err := s.store.DeletePackage(ctx, id); err != nil {
		switch {
		case stderrors.Is(err, storage.ErrNotFound):
			return errors.NotFound("Package not found")
		case stderrors.Is(err, storage.ErrConflict):
			return errors.Conflict("Cannot delete package that is used by existing requests")
		}
		return errors.Internal("failed to delete package", err)
	}
	s.log.WithField("package_id", id).Info("package deleted")
	return nil
}

// BulkUpdate applies the same field changes to every identified package.
func (s *Service) BulkUpdate(ctx context.Context, ids []int64, upd catalog.PackageUpdate) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.BadRequest("Package IDs are required")
	}
	if upd.Title == nil && upd.Description == nil && upd.Price == nil {
		return 0, errors.BadRequest("No fields to update")
	}
	if upd.Price != nil && *upd.Price < 0 {
		return 0, errors.BadRequest("Package price must be a positive number")
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return 0, errors.BadRequest("Package title is required")
		}
		// A title already carried by a package outside the batch would
		// collide once the batch is renamed.
		if found, err := s.store.FindPackageByTitle(ctx, title, 0); err == nil {
			if !containsID(ids, found.ID) {
				return 0, errors.Conflict("Package with this title already exists")
			}
		} else if !stderrors.Is(err, storage.ErrNotFound) {
			return 0, errors.Internal("failed to check package title", err)
		}
		upd.Title = &title
	}

	affected, err := s.store.BulkUpdatePackages(ctx, ids, upd)
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return 0, errors.Conflict("Package with this title already exists")
		}
		return 0, errors.Internal("failed to bulk update packages", err)
	}
	s.log.WithFields(map[string]interface{}{"ids": len(ids), "updated": affected}).Info("packages bulk updated")
	return affected, nil
}

// BulkDelete removes every identified package, refusing the whole batch when
// any of them is still referenced by a request.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.BadRequest("Package IDs are required")
	}

	counts, err := s.requests.CountsByPackage(ctx, ids)
	if err != nil {
		return 0, errors.Internal("failed to check package usage", err)
	}
	var inUse []int64
	for _, id := range ids {
		if counts[id].Total > 0 {
			inUse = append(inUse, id)
		}
	}
	if len(inUse) > 0 {
		return 0, errors.Conflict("Cannot delete packages that are used by existing requests").
			WithDetails("in_use_ids", inUse)
	}

	deleted, err := s.store.BulkDeletePackages(ctx, ids)
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return 0, errors.Conflict("Cannot delete packages that are used by existing requests")
		}
		return 0, errors.Internal("failed to bulk delete packages", err)
	}
	s.log.WithField("deleted", deleted).Info("packages bulk deleted")
	return deleted, nil
}

// Detail is a package together with how requests use it.
type Detail struct {
	catalog.Package
	RequestCount int                    `json:"request_count"`
	Recent       []registration.Summary `json:"recent_requests"`
}

// GetDetail loads a package with its request count and the ten most recent
// requests referencing it.
func (s *Service) GetDetail(ctx context.Context, id int64) (Detail, error) {
	pkg, err := s.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	counts, err := s.requests.CountsByPackage(ctx, []int64{id})
	if err != nil {
		return Detail{}, errors.Internal("failed to count requests", err)
	}
	recent, err := s.requests.RecentByPackage(ctx, id, 10)
	if err != nil {
		return Detail{}, errors.Internal("failed to load recent requests", err)
	}
	if recent == nil {
		recent = []registration.Summary{}
	}
	return Detail{Package: pkg, RequestCount: counts[id].Total, Recent: recent}, nil
}

// SearchInput drives the keyword search endpoint.
type SearchInput struct {
	Query    string
	MinPrice *float64
	MaxPrice *float64
	Limit    int
	Offset   int
}

// SearchEntry is a matched package enriched with request counts.
type SearchEntry struct {
	catalog.Package
	RequestCount   int `json:"request_count"`
	PendingCount   int `json:"pending_count"`
	CompletedCount int `json:"completed_count"`
}

// SearchResult is a window of matches plus offset pagination metadata.
type SearchResult struct {
	Items   []SearchEntry
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// Search matches packages by keyword and enriches each row with its request
// counts.
func (s *Service) Search(ctx context.Context, in SearchInput) (SearchResult, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return SearchResult{}, errors.BadRequest("Search query is required")
	}
	if in.Limit < 1 {
		in.Limit = 10
	}
	if in.Limit > 100 {
		in.Limit = 100
	}
	if in.Offset < 0 {
		in.Offset = 0
	}

	items, total, err := s.store.ListPackages(ctx, storage.PackageFilter{
		Search:   query,
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		SortBy:   storage.SortByID,
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
	if err != nil {
		return SearchResult{}, errors.Internal("failed to search packages", err)
	}

	ids := make([]int64, len(items))
	for i, pkg := range items {
		ids[i] = pkg.ID
	}
	counts := map[int64]registration.StatusCounts{}
	if len(ids) > 0 {
		counts, err = s.requests.CountsByPackage(ctx, ids)
		if err != nil {
			return SearchResult{}, errors.Internal("failed to count requests", err)
		}
	}

	entries := make([]SearchEntry, 0, len(items))
	for _, pkg := range items {
		c := counts[pkg.ID]
		entries = append(entries, SearchEntry{
			Package:        pkg,
			RequestCount:   c.Total,
			PendingCount:   c.Pending,
			CompletedCount: c.Completed,
		})
	}
	return SearchResult{
		Items:   entries,
		Total:   total,
		Limit:   in.Limit,
		Offset:  in.Offset,
		HasMore: in.Offset+len(entries) < total,
	}, nil
}

// UsageEntry pairs a package with its request counts and the revenue those
// requests represent.
type UsageEntry struct {
	Package catalog.Package           `json:"package"`
	Counts  registration.StatusCounts `json:"requests"`
	Revenue float64                   `json:"revenue"`
	Recent  []registration.Summary    `json:"recent_requests,omitempty"`
}

// Overview rolls the whole catalog up into headline numbers.
type Overview struct {
	TotalPackages int              `json:"total_packages"`
	TotalRequests int              `json:"total_requests"`
	TotalRevenue  float64          `json:"total_revenue"`
	AveragePrice  float64          `json:"average_price"`
	MostPopular   *catalog.Package `json:"most_popular,omitempty"`
}

// Stats summarizes the package catalog and how requests use it.
type Stats struct {
	Overview Overview     `json:"overview"`
	Usage    []UsageEntry `json:"usage"`
}

// GetStats aggregates per-package request usage and revenue. Revenue counts a
// package's price once per request referencing it.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	items, _, err := s.store.ListPackages(ctx, storage.PackageFilter{SortBy: storage.SortByID})
	if err != nil {
		return Stats{}, errors.Internal("failed to list packages", err)
	}

	counts, err := s.requests.CountsByPackage(ctx, nil)
	if err != nil {
		return Stats{}, errors.Internal("failed to count requests", err)
	}
	totalRequests, err := s.requests.CountRequests(ctx)
	if err != nil {
		return Stats{}, errors.Internal("failed to count requests", err)
	}

	stats := Stats{Usage: make([]UsageEntry, 0, len(items))}
	var (
		priceSum    float64
		mostPopular *catalog.Package
		popularMax  = -1
	)
	for i, pkg := range items {
		c := counts[pkg.ID]
		entry := UsageEntry{
			Package: pkg,
			Counts:  c,
			Revenue: float64(c.Total) * pkg.Price,
		}
		if c.Total > 0 {
			recent, err := s.requests.RecentByPackage(ctx, pkg.ID, 5)
			if err != nil {
				return Stats{}, errors.Internal("failed to load recent requests", err)
			}
			entry.Recent = recent
		}
		stats.Usage = append(stats.Usage, entry)
		stats.Overview.TotalRevenue += entry.Revenue
		priceSum += pkg.Price
		if c.Total > popularMax {
			popularMax = c.Total
			mostPopular = &items[i]
		}
	}

	stats.Overview.TotalPackages = len(items)
	stats.Overview.TotalRequests = totalRequests
	if len(items) > 0 {
		stats.Overview.AveragePrice = priceSum / float64(len(items))
	}
	if popularMax > 0 {
		stats.Overview.MostPopular = mostPopular
	}
	return stats, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
