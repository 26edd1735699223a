package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	"github.com/corpulate/platform/internal/app/domain/registration"
	"github.com/corpulate/platform/internal/app/domain/user"
	"github.com/corpulate/platform/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]user.User
	packages map[int64]catalog.Package
	addOns   map[int64]catalog.AddOn
	requests map[int64]registration.Request
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.PackageStore = (*Store)(nil)
var _ storage.AddOnStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:   1,
		users:    make(map[int64]user.User),
		packages: make(map[int64]catalog.Package),
		addOns:   make(map[int64]catalog.AddOn),
		requests: make(map[int64]registration.Request),
	}
}

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return user.User{}, storage.ErrConflict
		}
	}

	u.ID = s.nextIDLocked()
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

// PackageStore implementation -------------------------------------------------

func (s *Store) CreatePackage(_ context.Context, p catalog.Package) (catalog.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.packages {
		if existing.Title == p.Title {
			return catalog.Package{}, storage.ErrConflict
		}
	}

	p.ID = s.nextIDLocked()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.packages[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePackage(_ context.Context, p catalog.Package) (catalog.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.packages[p.ID]
	if !ok {
		return catalog.Package{}, storage.ErrNotFound
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.packages[p.ID] = p
	return p, nil
}

func (s *Store) GetPackage(_ context.Context, id int64) (catalog.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.packages[id]
	if !ok {
		return catalog.Package{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPackages(_ context.Context, f storage.PackageFilter) ([]catalog.Package, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []catalog.Package
	for _, p := range s.packages {
		if !packageMatches(p, f) {
			continue
		}
		matched = append(matched, p)
	}

	sortPackages(matched, f.SortBy, f.SortDesc)
	total := len(matched)
	return paginate(matched, f.Offset, f.Limit), total, nil
}

func (s *Store) DeletePackage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.packages[id]; !ok {
		return storage.ErrNotFound
	}
	for _, req := range s.requests {
		if req.PackageID == id {
			return storage.ErrConflict
		}
	}
	delete(s.packages, id)
	return nil
}

func (s *Store) BulkUpdatePackages(_ context.Context, ids []int64, upd catalog.PackageUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	now := time.Now().UTC()
	for _, id := range ids {
		p, ok := s.packages[id]
		if !ok {
			continue
		}
		if upd.Title != nil {
			p.Title = *upd.Title
		}
		if upd.Description != nil {
			p.Description = *upd.Description
		}
		if upd.Price != nil {
			p.Price = *upd.Price
		}
		p.UpdatedAt = now
		s.packages[id] = p
		count++
	}
	return count, nil
}

func (s *Store) BulkDeletePackages(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referenced := make(map[int64]bool)
	for _, req := range s.requests {
		referenced[req.PackageID] = true
	}

	var count int64
	for _, id := range ids {
		if _, ok := s.packages[id]; !ok {
			continue
		}
		if referenced[id] {
			return 0, storage.ErrConflict
		}
	}
	for _, id := range ids {
		if _, ok := s.packages[id]; ok {
			delete(s.packages, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) FindPackageByTitle(_ context.Context, title string, excludeID int64) (catalog.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.packages {
		if p.ID != excludeID && p.Title == title {
			return p, nil
		}
	}
	return catalog.Package{}, storage.ErrNotFound
}

func (s *Store) CountPackages(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.packages), nil
}

// AddOnStore implementation ---------------------------------------------------

func (s *Store) CreateAddOn(_ context.Context, a catalog.AddOn) (catalog.AddOn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.addOns {
		if strings.EqualFold(existing.Title, a.Title) {
			return catalog.AddOn{}, storage.ErrConflict
		}
	}

	a.ID = s.nextIDLocked()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.addOns[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAddOn(_ context.Context, a catalog.AddOn) (catalog.AddOn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.addOns[a.ID]
	if !ok {
		return catalog.AddOn{}, storage.ErrNotFound
	}

	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.addOns[a.ID] = a
	return a, nil
}

func (s *Store) GetAddOn(_ context.Context, id int64) (catalog.AddOn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.addOns[id]
	if !ok {
		return catalog.AddOn{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAddOns(_ context.Context, f storage.AddOnFilter) ([]catalog.AddOn, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage := s.addOnUsageLocked()

	var matched []catalog.AddOn
	for _, a := range s.addOns {
		if !s.addOnMatchesLocked(a, f, usage) {
			continue
		}
		matched = append(matched, a)
	}

	s.sortAddOnsLocked(matched, f.SortBy, f.SortDesc, usage)
	total := len(matched)
	return paginate(matched, f.Offset, f.Limit), total, nil
}

func (s *Store) DeleteAddOn(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addOns[id]; !ok {
		return storage.ErrNotFound
	}
	for _, req := range s.requests {
		for _, adID := range req.AddOnIDs {
			if adID == id {
				return storage.ErrConflict
			}
		}
	}
	delete(s.addOns, id)
	return nil
}

func (s *Store) BulkUpdateAddOns(_ context.Context, ids []int64, upd catalog.AddOnUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	now := time.Now().UTC()
	for _, id := range ids {
		a, ok := s.addOns[id]
		if !ok {
			continue
		}
		if upd.Title != nil {
			a.Title = *upd.Title
		}
		if upd.Price != nil {
			a.Price = *upd.Price
		}
		if upd.Description != nil {
			a.Description = *upd.Description
		}
		if upd.Information != nil {
			a.Information = *upd.Information
		}
		a.UpdatedAt = now
		s.addOns[id] = a
		count++
	}
	return count, nil
}

func (s *Store) BulkDeleteAddOns(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := s.addOnUsageLocked()
	for _, id := range ids {
		if _, ok := s.addOns[id]; !ok {
			continue
		}
		if usage[id] > 0 {
			return 0, storage.ErrConflict
		}
	}

	var count int64
	for _, id := range ids {
		if _, ok := s.addOns[id]; ok {
			delete(s.addOns, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) TouchAddOns(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	now := time.Now().UTC()
	for _, id := range ids {
		a, ok := s.addOns[id]
		if !ok {
			continue
		}
		a.UpdatedAt = now
		s.addOns[id] = a
		count++
	}
	return count, nil
}

func (s *Store) GetAddOns(_ context.Context, ids []int64) ([]catalog.AddOn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []catalog.AddOn
	for _, id := range ids {
		if a, ok := s.addOns[id]; ok {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) FindAddOnByTitleFold(_ context.Context, title string, excludeID int64) (catalog.AddOn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.addOns {
		if a.ID != excludeID && strings.EqualFold(a.Title, title) {
			return a, nil
		}
	}
	return catalog.AddOn{}, storage.ErrNotFound
}

func (s *Store) DistinctAddOnTitles(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var titles []string
	for _, a := range s.addOns {
		if !seen[a.Title] {
			seen[a.Title] = true
			titles = append(titles, a.Title)
		}
	}
	sort.Strings(titles)
	if limit > 0 && len(titles) > limit {
		titles = titles[:limit]
	}
	return titles, nil
}

func (s *Store) AddOnPriceStats(_ context.Context) (catalog.PriceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.addOns) == 0 {
		return catalog.PriceStats{}, nil
	}

	var stats catalog.PriceStats
	first := true
	for _, a := range s.addOns {
		stats.Sum += a.Price
		if first || a.Price < stats.Min {
			stats.Min = a.Price
		}
		if first || a.Price > stats.Max {
			stats.Max = a.Price
		}
		first = false
	}
	stats.Average = stats.Sum / float64(len(s.addOns))
	return stats, nil
}

func (s *Store) CountAddOns(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if since.IsZero() {
		return len(s.addOns), nil
	}
	count := 0
	for _, a := range s.addOns {
		if !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *Store) PriceHistogram(_ context.Context, bounds []float64) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]int, len(bounds)+1)
	for _, a := range s.addOns {
		bucket := len(bounds)
		for i, b := range bounds {
			if a.Price < b {
				bucket = i
				break
			}
		}
		counts[bucket]++
	}
	return counts, nil
}

func (s *Store) MostUsedAddOns(_ context.Context, limit int) ([]catalog.AddOnUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage := s.addOnUsageLocked()
	result := make([]catalog.AddOnUsage, 0, len(s.addOns))
	for _, a := range s.addOns {
		result = append(result, catalog.AddOnUsage{AddOn: a, RequestCount: usage[a.ID]})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RequestCount != result[j].RequestCount {
			return result[i].RequestCount > result[j].RequestCount
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) RecentAddOns(_ context.Context, limit int) ([]catalog.AddOn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]catalog.AddOn, 0, len(s.addOns))
	for _, a := range s.addOns {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// RequestStore implementation -------------------------------------------------

func (s *Store) CreateRequest(_ context.Context, req registration.Request) (registration.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.packages[req.PackageID]; !ok {
		return registration.Request{}, storage.ErrConflict
	}
	for _, adID := range req.AddOnIDs {
		if _, ok := s.addOns[adID]; !ok {
			return registration.Request{}, storage.ErrConflict
		}
	}

	req.ID = s.nextIDLocked()
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = registration.StatusPending
	}
	req.AddOnIDs = append([]int64(nil), req.AddOnIDs...)
	s.requests[req.ID] = req
	return cloneRequest(req), nil
}

func (s *Store) GetRequest(_ context.Context, id int64) (registration.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return registration.Request{}, storage.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *Store) ListRequests(_ context.Context, f storage.RequestFilter) ([]registration.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []registration.Request
	for _, req := range s.requests {
		if f.UserID != 0 && req.UserID != f.UserID {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		result = append(result, cloneRequest(req))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *Store) UpdateRequestStatus(_ context.Context, id int64, status registration.Status) (registration.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return registration.Request{}, storage.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	s.requests[id] = req
	return cloneRequest(req), nil
}

func (s *Store) CountRequests(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests), nil
}

func (s *Store) CountWithAddOns(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, req := range s.requests {
		if len(req.AddOnIDs) > 0 {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountsByPackage(_ context.Context, ids []int64) (map[int64]registration.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	result := make(map[int64]registration.StatusCounts)
	for _, req := range s.requests {
		if len(ids) > 0 && !wanted[req.PackageID] {
			continue
		}
		counts := result[req.PackageID]
		counts.Total++
		switch req.Status {
		case registration.StatusPending:
			counts.Pending++
		case registration.StatusCompleted:
			counts.Completed++
		case registration.StatusRejected:
			counts.Rejected++
		}
		result[req.PackageID] = counts
	}
	return result, nil
}

func (s *Store) CountsByAddOn(_ context.Context, ids []int64) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	result := make(map[int64]int)
	for _, req := range s.requests {
		for _, adID := range req.AddOnIDs {
			if len(ids) > 0 && !wanted[adID] {
				continue
			}
			result[adID]++
		}
	}
	return result, nil
}

func (s *Store) RecentByPackage(_ context.Context, packageID int64, limit int) ([]registration.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []registration.Summary
	for _, req := range s.requests {
		if req.PackageID == packageID {
			result = append(result, summarize(req))
		}
	}
	sortSummaries(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) RecentByAddOn(_ context.Context, addOnID int64, limit int) ([]registration.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []registration.Summary
	for _, req := range s.requests {
		for _, adID := range req.AddOnIDs {
			if adID == addOnID {
				result = append(result, summarize(req))
				break
			}
		}
	}
	sortSummaries(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// helpers ----------------------------------------------------------------------

func (s *Store) addOnUsageLocked() map[int64]int {
	usage := make(map[int64]int)
	for _, req := range s.requests {
		for _, adID := range req.AddOnIDs {
			usage[adID]++
		}
	}
	return usage
}

func (s *Store) addOnMatchesLocked(a catalog.AddOn, f storage.AddOnFilter, usage map[int64]int) bool {
	if f.Search != "" && !containsFold(f.Search, a.Title, a.Description, a.Information) {
		return false
	}
	if f.Category != "" && !containsFold(f.Category, a.Title, a.Description) {
		return false
	}
	if f.MinPrice != nil && a.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && a.Price > *f.MaxPrice {
		return false
	}
	if f.HasRequests != nil {
		if *f.HasRequests != (usage[a.ID] > 0) {
			return false
		}
	}
	return true
}

func (s *Store) sortAddOnsLocked(items []catalog.AddOn, sortBy string, desc bool, usage map[int64]int) {
	less := func(i, j int) bool { return items[i].ID < items[j].ID }
	switch sortBy {
	case storage.SortByTitle:
		less = func(i, j int) bool { return items[i].Title < items[j].Title }
	case storage.SortByPrice:
		less = func(i, j int) bool { return items[i].Price < items[j].Price }
	case storage.SortByCreatedAt:
		less = func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) }
	case storage.SortByUsage:
		less = func(i, j int) bool { return usage[items[i].ID] < usage[items[j].ID] }
	}
	if desc {
		sort.SliceStable(items, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(items, less)
}

func packageMatches(p catalog.Package, f storage.PackageFilter) bool {
	if f.Search != "" && !containsFold(f.Search, p.Title, p.Description) {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	return true
}

func sortPackages(items []catalog.Package, sortBy string, desc bool) {
	less := func(i, j int) bool { return items[i].ID < items[j].ID }
	switch sortBy {
	case storage.SortByTitle:
		less = func(i, j int) bool { return items[i].Title < items[j].Title }
	case storage.SortByPrice:
		less = func(i, j int) bool { return items[i].Price < items[j].Price }
	case storage.SortByCreatedAt:
		less = func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) }
	}
	if desc {
		sort.SliceStable(items, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(items, less)
}

func sortSummaries(items []registration.Summary) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}

func summarize(req registration.Request) registration.Summary {
	return registration.Summary{
		ID:          req.ID,
		Name:        req.Name,
		CompanyName: req.CompanyName,
		Status:      req.Status,
		CreatedAt:   req.CreatedAt,
	}
}

func cloneRequest(req registration.Request) registration.Request {
	req.AddOnIDs = append([]int64(nil), req.AddOnIDs...)
	return req
}

func containsFold(needle string, haystacks ...string) bool {
	needle = strings.ToLower(needle)
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
