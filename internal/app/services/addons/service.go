// Package addons implements business rules for catalog add-ons: validation,
// case-insensitive title uniqueness, bulk operations, search and statistics.
package addons

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	"github.com/corpulate/platform/internal/app/domain/registration"
	"github.com/corpulate/platform/internal/app/storage"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/internal/platform/cache"
	"github.com/corpulate/platform/pkg/logger"
)

// Service manages catalog add-ons.
type Service struct {
	store    storage.AddOnStore
	requests storage.RequestStore
	log      *logger.Logger
	cache    *cache.Cache
	now      func() time.Time
}

// New constructs an add-on service.
func New(store storage.AddOnStore, requests storage.RequestStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("addons")
	}
	return &Service{store: store, requests: requests, log: log, now: time.Now}
}

// AttachCache enables statistics caching. Safe to skip; a nil cache means
// every stats call hits the store.
func (s *Service) AttachCache(c *cache.Cache) {
	s.cache = c
}

const statsTTL = time.Minute

func statsKey(period Period) string {
	return "stats:adones:" + string(period)
}

func (s *Service) invalidateStats(ctx context.Context) {
	s.cache.Delete(ctx,
		statsKey(PeriodAll), statsKey(PeriodWeek), statsKey(PeriodMonth), statsKey(PeriodYear))
}

// CreateInput carries the fields accepted when creating an add-on.
type CreateInput struct {
	Title       string  `json:"ad_title"`
	Price       float64 `json:"ad_price"`
	Description string  `json:"ad_description"`
	Information string  `json:"ad_information"`
}

// Create validates and stores a new add-on. Title, price and description are
// required, and a zero price counts as missing. Titles are unique ignoring
// case.
func (s *Service) Create(ctx context.Context, in CreateInput) (catalog.AddOn, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" || in.Description == "" || in.Price == 0 {
		return catalog.AddOn{}, errors.BadRequest("Missing required fields: ad_title, ad_price, ad_description")
	}
	if in.Price < 0 {
		return catalog.AddOn{}, errors.BadRequest("Price must be a positive number")
	}

	if _, err := s.store.FindAddOnByTitleFold(ctx, in.Title, 0); err == nil {
		return catalog.AddOn{}, errors.Conflict("Add-on with this title already exists")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return catalog.AddOn{}, errors.Internal("failed to check add-on title", err)
	}

	created, err := s.store.CreateAddOn(ctx, catalog.AddOn{
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Information: strings.TrimSpace(in.Information),
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return catalog.AddOn{}, errors.Conflict("Add-on with this title already exists")
		}
		return catalog.AddOn{}, errors.Internal("failed to create add-on", err)
	}
	s.log.WithField("ad_id", created.ID).Info("add-on created")
	s.invalidateStats(ctx)
	return created, nil
}

// Get retrieves a single add-on.
func (s *Service) Get(ctx context.Context, id int64) (catalog.AddOn, error) {
	addOn, err := s.store.GetAddOn(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return catalog.AddOn{}, errors.NotFound("Add-on not found")
		}
		return catalog.AddOn{}, errors.Internal("failed to load add-on", err)
	}
	return addOn, nil
}

// Detail is an add-on together with how requests use it.
type Detail struct {
	catalog.AddOn
	RequestCount int                    `json:"request_count"`
	Recent       []registration.Summary `json:"recent_requests"`
}

// GetDetail loads an add-on with its request count and the ten most recent
// requests referencing it.
func (s *Service) GetDetail(ctx context.Context, id int64) (Detail, error) {
	addOn, err := s.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	counts, err := s.requests.CountsByAddOn(ctx, []int64{id})
	if err != nil {
		return Detail{}, errors.Internal("failed to count requests", err)
	}
	recent, err := s.requests.RecentByAddOn(ctx, id, 10)
	if err != nil {
		return Detail{}, errors.Internal("failed to load recent requests", err)
	}
	if recent == nil {
		recent = []registration.Summary{}
	}
	return Detail{AddOn: addOn, RequestCount: counts[id], Recent: recent}, nil
}

// ListInput narrows and orders the add-on listing.
type ListInput struct {
	Search      string
	MinPrice    *float64
	MaxPrice    *float64
	HasRequests *bool
	SortBy      string
	SortDesc    bool
	Page        int
	Limit       int
}

// ListResult is a page of add-ons plus the unpaginated match count.
type ListResult struct {
	Items []catalog.AddOn
	Total int
	Page  int
	Limit int
}

// List returns a filtered, sorted page of add-ons. The usage sort orders by
// how many requests reference each add-on.
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
	case storage.SortByID, storage.SortByTitle, storage.SortByPrice,
		storage.SortByCreatedAt, storage.SortByUsage:
	default:
		sortBy = storage.SortByCreatedAt
	}

	items, total, err := s.store.ListAddOns(ctx, storage.AddOnFilter{
		Search:      strings.TrimSpace(in.Search),
		MinPrice:    in.MinPrice,
		MaxPrice:    in.MaxPrice,
		HasRequests: in.HasRequests,
		SortBy:      sortBy,
		SortDesc:    in.SortDesc,
		Limit:       in.Limit,
		Offset:      (in.Page - 1) * in.Limit,
	})
	if err != nil {
		return ListResult{}, errors.Internal("failed to list add-ons", err)
	}
	return ListResult{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// Update applies the provided fields to an existing add-on.
func (s *Service) Update(ctx context.Context, id int64, upd catalog.AddOnUpdate) (catalog.AddOn, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return catalog.AddOn{}, err
	}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return catalog.AddOn{}, errors.BadRequest("Add-on title is required")
		}
		if !strings.EqualFold(title, existing.Title) {
			if _, err := s.store.FindAddOnByTitleFold(ctx, title, id); err == nil {
				return catalog.AddOn{}, errors.Conflict("Add-on with this title already exists")
			} else if !stderrors.Is(err, storage.ErrNotFound) {
				return catalog.AddOn{}, errors.Internal("failed to check add-on title", err)
			}
		}
		existing.Title = title
	}
	if upd.Price != nil {
		if *upd.Price < 0 {
			return catalog.AddOn{}, errors.BadRequest("Price must be a positive number")
		}
		existing.Price = *upd.Price
	}
	if upd.Description != nil {
		existing.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Information != nil {
		existing.Information = strings.TrimSpace(*upd.Information)
	}

	updated, err := s.store.UpdateAddOn(ctx, existing)
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return catalog.AddOn{}, errors.Conflict("Add-on with this title already exists")
		}
		return catalog.AddOn{}, errors.Internal("failed to update add-on", err)
	}
	s.log.WithField("ad_id", id).Info("add-on updated")
	s.invalidateStats(ctx)
	return updated, nil
}

// Delete removes an add-on unless registration requests still reference it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	counts, err := s.requests.CountsByAddOn(ctx, []int64{id})
	if err != nil {
		return errors.Internal("failed to check add-on usage", err)
	}
	if counts[id] > 0 {
		return errors.Conflict("Cannot delete add-on that is used by existing requests").
			WithDetails("request_count", counts[id])
	}

	if err := s.store.DeleteAddOn(ctx, id); err != nil {
		switch {
		case stderrors.Is(err, storage.ErrNotFound):
			return errors.NotFound("Add-on not found")
		case stderrors.Is(err, storage.ErrConflict):
			return errors.Conflict("Cannot delete add-on that is used by existing requests")
		}
		return errors.Internal("failed to delete add-on", err)
	}
	s.log.WithField("ad_id", id).Info("add-on deleted")
	s.invalidateStats(ctx)
	return nil
}

// BulkUpdate applies the same field changes to every identified add-on.
func (s *Service) BulkUpdate(ctx context.Context, ids []int64, upd catalog.AddOnUpdate) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.BadRequest("Add-on IDs are required")
	}
	if upd.Title == nil && upd.Price == nil && upd.Description == nil && upd.Information == nil {
		return 0, errors.BadRequest("No fields to update")
	}
	if upd.Price != nil && *upd.Price < 0 {
		return 0, errors.BadRequest("Price must be a positive number")
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return 0, errors.BadRequest("Add-on title is required")
		}
		// A title already carried by an add-on outside the batch would
		// collide once the batch is renamed.
		if found, err := s.store.FindAddOnByTitleFold(ctx, title, 0); err == nil {
			if !containsID(ids, found.ID) {
				return 0, errors.Conflict("Title conflicts with existing add-ons")
			}
		} else if !stderrors.Is(err, storage.ErrNotFound) {
			return 0, errors.Internal("failed to check add-on title", err)
		}
		upd.Title = &title
	}

	affected, err := s.store.BulkUpdateAddOns(ctx, ids, upd)
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return 0, errors.Conflict("Add-on with this title already exists")
		}
		return 0, errors.Internal("failed to bulk update add-ons", err)
	}
	s.log.WithFields(map[string]interface{}{"ids": len(ids), "updated": affected}).Info("add-ons bulk updated")
	s.invalidateStats(ctx)
	return affected, nil
}

// BulkDelete removes every identified add-on, refusing the whole batch when
// any of them is still referenced by a request.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.BadRequest("Add-on IDs are required")
	}

	counts, err := s.requests.CountsByAddOn(ctx, ids)
	if err != nil {
		return 0, errors.Internal("failed to check add-on usage", err)
	}
	var inUse []int64
	for _, id := range ids {
		if counts[id] > 0 {
			inUse = append(inUse, id)
		}
	}
	if len(inUse) > 0 {
		return 0, errors.Conflict("Cannot delete add-ons that are used by existing requests").
			WithDetails("in_use_ids", inUse)
	}

	deleted, err := s.store.BulkDeleteAddOns(ctx, ids)
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return 0, errors.Conflict("Cannot delete add-ons that are used by existing requests")
		}
		return 0, errors.Internal("failed to bulk delete add-ons", err)
	}
	s.log.WithField("deleted", deleted).Info("add-ons bulk deleted")
	s.invalidateStats(ctx)
	return deleted, nil
}

// BulkActivate refreshes the update timestamp of every identified add-on.
func (s *Service) BulkActivate(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.BadRequest("Add-on IDs are required")
	}
	touched, err := s.store.TouchAddOns(ctx, ids)
	if err != nil {
		return 0, errors.Internal("failed to activate add-ons", err)
	}
	s.log.WithField("activated", touched).Info("add-ons bulk activated")
	s.invalidateStats(ctx)
	return touched, nil
}

// Export returns the full records for the identified add-ons, or every add-on
// when no IDs are given.
func (s *Service) Export(ctx context.Context, ids []int64) ([]catalog.AddOn, error) {
	if len(ids) == 0 {
		items, _, err := s.store.ListAddOns(ctx, storage.AddOnFilter{SortBy: storage.SortByID})
		if err != nil {
			return nil, errors.Internal("failed to export add-ons", err)
		}
		return items, nil
	}
	items, err := s.store.GetAddOns(ctx, ids)
	if err != nil {
		return nil, errors.Internal("failed to export add-ons", err)
	}
	return items, nil
}

// SearchInput drives the search endpoint. An empty query matches everything,
// so price and category filters work on their own.
type SearchInput struct {
	Query       string
	Category    string
	MinPrice    *float64
	MaxPrice    *float64
	HasRequests *bool
	SortBy      string
	SortDesc    bool
	Limit       int
	Offset      int
}

// SearchResult is a window of matches plus offset pagination metadata and the
// catalog-wide price bounds.
type SearchResult struct {
	Items       []catalog.AddOn
	Total       int
	Limit       int
	Offset      int
	HasMore     bool
	Suggestions []string
	PriceFloor  float64
	PriceCeil   float64
}

// Search matches add-ons by query across title, description and information,
// optionally narrowed by category, returning offset-based pagination and
// title suggestions.
func (s *Service) Search(ctx context.Context, in SearchInput) (SearchResult, error) {
	if in.Limit < 1 {
		in.Limit = 20
	}
	if in.Limit > 100 {
		in.Limit = 100
	}
	if in.Offset < 0 {
		in.Offset = 0
	}

	sortBy := in.SortBy
	switch sortBy {
	case storage.SortByID, storage.SortByTitle, storage.SortByPrice,
		storage.SortByCreatedAt, storage.SortByUsage:
	default:
		sortBy = storage.SortByCreatedAt
	}

	items, total, err := s.store.ListAddOns(ctx, storage.AddOnFilter{
		Search:      strings.TrimSpace(in.Query),
		Category:    strings.TrimSpace(in.Category),
		MinPrice:    in.MinPrice,
		MaxPrice:    in.MaxPrice,
		HasRequests: in.HasRequests,
		SortBy:      sortBy,
		SortDesc:    in.SortDesc,
		Limit:       in.Limit,
		Offset:      in.Offset,
	})
	if err != nil {
		return SearchResult{}, errors.Internal("failed to search add-ons", err)
	}

	suggestions, err := s.store.DistinctAddOnTitles(ctx, 10)
	if err != nil {
		return SearchResult{}, errors.Internal("failed to load title suggestions", err)
	}
	prices, err := s.store.AddOnPriceStats(ctx)
	if err != nil {
		return SearchResult{}, errors.Internal("failed to aggregate prices", err)
	}

	return SearchResult{
		Items:       items,
		Total:       total,
		Limit:       in.Limit,
		Offset:      in.Offset,
		HasMore:     in.Offset+len(items) < total,
		Suggestions: suggestions,
		PriceFloor:  prices.Min,
		PriceCeil:   prices.Max,
	}, nil
}

// Period selects the creation-time window for statistics.
type Period string

// Statistic periods.
const (
	PeriodAll   Period = "all"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func (p Period) valid() bool {
	switch p {
	case PeriodAll, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

// PriceRange is one histogram bucket of the price distribution.
type PriceRange struct {
	Label string `json:"range"`
	Count int    `json:"count"`
}

// Stats summarizes the add-on catalog for a period.
type Stats struct {
	Period            Period               `json:"period"`
	TotalAddOns       int                  `json:"total_adones"`
	CreatedInPeriod   int                  `json:"created_in_period"`
	RequestsWithAddOn int                  `json:"requests_with_adones"`
	Prices            catalog.PriceStats   `json:"prices"`
	Distribution      []PriceRange         `json:"price_distribution"`
	MostUsed          []catalog.AddOnUsage `json:"most_used"`
	Recent            []catalog.AddOn      `json:"recently_added"`
}

// GetStats aggregates catalog statistics: totals, price distribution, the ten
// most requested add-ons and the five most recently added.
func (s *Service) GetStats(ctx context.Context, period Period) (Stats, error) {
	if period == "" {
		period = PeriodAll
	}
	if !period.valid() {
		return Stats{}, errors.BadRequest("Invalid period; must be one of all, week, month, year")
	}

	var cached Stats
	if s.cache.Get(ctx, statsKey(period), &cached) {
		return cached, nil
	}

	// Week is a sliding seven-day window; month and year count from the
	// start of the current calendar month and year.
	var since time.Time
	now := s.now().UTC()
	switch period {
	case PeriodWeek:
		since = now.AddDate(0, 0, -7)
	case PeriodMonth:
		since = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYear:
		since = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}

	total, err := s.store.CountAddOns(ctx, time.Time{})
	if err != nil {
		return Stats{}, errors.Internal("failed to count add-ons", err)
	}
	inPeriod := total
	if !since.IsZero() {
		inPeriod, err = s.store.CountAddOns(ctx, since)
		if err != nil {
			return Stats{}, errors.Internal("failed to count add-ons", err)
		}
	}

	withAddOns, err := s.requests.CountWithAddOns(ctx)
	if err != nil {
		return Stats{}, errors.Internal("failed to count requests", err)
	}

	prices, err := s.store.AddOnPriceStats(ctx)
	if err != nil {
		return Stats{}, errors.Internal("failed to aggregate prices", err)
	}

	histogram, err := s.store.PriceHistogram(ctx, storage.PriceBuckets)
	if err != nil {
		return Stats{}, errors.Internal("failed to build price distribution", err)
	}

	mostUsed, err := s.store.MostUsedAddOns(ctx, 10)
	if err != nil {
		return Stats{}, errors.Internal("failed to rank add-ons", err)
	}

	recent, err := s.store.RecentAddOns(ctx, 5)
	if err != nil {
		return Stats{}, errors.Internal("failed to load recent add-ons", err)
	}

	stats := Stats{
		Period:            period,
		TotalAddOns:       total,
		CreatedInPeriod:   inPeriod,
		RequestsWithAddOn: withAddOns,
		Prices:            prices,
		Distribution:      bucketRanges(storage.PriceBuckets, histogram),
		MostUsed:          mostUsed,
		Recent:            recent,
	}
	s.cache.Set(ctx, statsKey(period), stats, statsTTL)
	return stats, nil
}

// bucketRanges labels histogram counts as human-readable price ranges.
func bucketRanges(bounds []float64, counts []int) []PriceRange {
	ranges := make([]PriceRange, 0, len(counts))
	for i, count := range counts {
		var label string
		switch {
		case i == 0:
			label = "under " + formatBound(bounds[0])
		case i == len(bounds):
			label = "over " + formatBound(bounds[len(bounds)-1])
		default:
			label = formatBound(bounds[i-1]) + "-" + formatBound(bounds[i])
		}
		ranges = append(ranges, PriceRange{Label: label, Count: count})
	}
	return ranges
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
