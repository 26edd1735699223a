package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	"github.com/corpulate/platform/internal/app/domain/registration"
	"github.com/corpulate/platform/internal/app/domain/user"
	"github.com/corpulate/platform/internal/app/storage"
)

func TestPackageUniqueTitle(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreatePackage(ctx, catalog.Package{Title: "LLC Formation", Price: 149}); err != nil {
		t.Fatalf("create package: %v", err)
	}
	if _, err := store.CreatePackage(ctx, catalog.Package{Title: "LLC Formation", Price: 99}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate title: want ErrConflict, got %v", err)
	}
	// Package titles are case-sensitive; a different casing is a new package.
	if _, err := store.CreatePackage(ctx, catalog.Package{Title: "llc formation", Price: 99}); err != nil {
		t.Fatalf("case-variant title: %v", err)
	}
}

func TestAddOnUniqueTitleFold(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateAddOn(ctx, catalog.AddOn{Title: "Registered Agent", Price: 99}); err != nil {
		t.Fatalf("create addon: %v", err)
	}
	if _, err := store.CreateAddOn(ctx, catalog.AddOn{Title: "REGISTERED AGENT", Price: 50}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("case-insensitive duplicate: want ErrConflict, got %v", err)
	}
}

func TestDeleteGuards(t *testing.T) {
	store := New()
	ctx := context.Background()

	u, err := store.CreateUser(ctx, user.User{Email: "a@b.com", Password: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	pkg, err := store.CreatePackage(ctx, catalog.Package{Title: "Standard", Price: 100})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	addOn, err := store.CreateAddOn(ctx, catalog.AddOn{Title: "EIN Filing", Price: 60})
	if err != nil {
		t.Fatalf("create addon: %v", err)
	}
	if _, err := store.CreateRequest(ctx, registration.Request{
		Name:        "Jordan",
		CompanyName: "Acme LLC",
		UserID:      u.ID,
		PackageID:   pkg.ID,
		AddOnIDs:    []int64{addOn.ID},
	}); err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := store.DeletePackage(ctx, pkg.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("delete referenced package: want ErrConflict, got %v", err)
	}
	if err := store.DeleteAddOn(ctx, addOn.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("delete referenced addon: want ErrConflict, got %v", err)
	}
	if _, err := store.BulkDeleteAddOns(ctx, []int64{addOn.ID}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("bulk delete referenced addon: want ErrConflict, got %v", err)
	}
}

func TestListPackagesFilterSortPaginate(t *testing.T) {
	store := New()
	ctx := context.Background()

	prices := []float64{300, 100, 200}
	for i, price := range prices {
		if _, err := store.CreatePackage(ctx, catalog.Package{
			Title:       []string{"Premium", "Basic", "Standard"}[i],
			Description: "company formation",
			Price:       price,
		}); err != nil {
			t.Fatalf("seed package: %v", err)
		}
	}

	items, total, err := store.ListPackages(ctx, storage.PackageFilter{
		SortBy: storage.SortByPrice,
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("list packages: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(items) != 2 || items[0].Price != 100 || items[1].Price != 200 {
		t.Fatalf("page = %+v, want prices 100 then 200", items)
	}

	min := 150.0
	items, total, err = store.ListPackages(ctx, storage.PackageFilter{MinPrice: &min})
	if err != nil {
		t.Fatalf("list packages with min price: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("min price filter: got %d/%d, want 2/2", len(items), total)
	}

	items, total, err = store.ListPackages(ctx, storage.PackageFilter{Search: "premium"})
	if err != nil {
		t.Fatalf("search packages: %v", err)
	}
	if total != 1 || items[0].Title != "Premium" {
		t.Fatalf("search: got %+v total %d", items, total)
	}
}

func TestMostUsedAddOnsOrdering(t *testing.T) {
	store := New()
	ctx := context.Background()

	u, _ := store.CreateUser(ctx, user.User{Email: "u@c.com", Password: "x"})
	pkg, _ := store.CreatePackage(ctx, catalog.Package{Title: "Standard", Price: 100})

	popular, _ := store.CreateAddOn(ctx, catalog.AddOn{Title: "Popular", Price: 10})
	rare, _ := store.CreateAddOn(ctx, catalog.AddOn{Title: "Rare", Price: 20})

	for i := 0; i < 3; i++ {
		ids := []int64{popular.ID}
		if i == 0 {
			ids = append(ids, rare.ID)
		}
		if _, err := store.CreateRequest(ctx, registration.Request{
			Name: "N", CompanyName: "C", UserID: u.ID, PackageID: pkg.ID, AddOnIDs: ids,
		}); err != nil {
			t.Fatalf("create request %d: %v", i, err)
		}
	}

	usage, err := store.MostUsedAddOns(ctx, 10)
	if err != nil {
		t.Fatalf("most used: %v", err)
	}
	if len(usage) != 2 || usage[0].ID != popular.ID || usage[0].RequestCount != 3 {
		t.Fatalf("usage ranking = %+v", usage)
	}
	if usage[1].RequestCount != 1 {
		t.Fatalf("rare addon count = %d, want 1", usage[1].RequestCount)
	}
}

func TestPriceHistogramBuckets(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, price := range []float64{10, 49.99, 50, 99, 150, 200, 500} {
		if _, err := store.CreateAddOn(ctx, catalog.AddOn{Title: fmt.Sprintf("addon-%v", price), Price: price}); err != nil {
			t.Fatalf("seed addon %v: %v", price, err)
		}
	}

	counts, err := store.PriceHistogram(ctx, storage.PriceBuckets)
	if err != nil {
		t.Fatalf("price histogram: %v", err)
	}
	want := []int{2, 2, 1, 2}
	if len(counts) != len(want) {
		t.Fatalf("bucket count = %d, want %d", len(counts), len(want))
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("bucket %d = %d, want %d", i, counts[i], want[i])
		}
	}
}
