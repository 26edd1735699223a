package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	"github.com/corpulate/platform/internal/app/domain/registration"
	"github.com/corpulate/platform/internal/app/domain/user"
	"github.com/corpulate/platform/internal/app/storage"
	"github.com/corpulate/platform/internal/platform/migrations"
	_ "github.com/lib/pq"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	suffix := time.Now().UnixNano()

	u, err := store.CreateUser(ctx, user.User{
		Email:     fmt.Sprintf("it-%d@example.com", suffix),
		Password:  "hashed",
		FirstName: "Integration",
		LastName:  "Test",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	// Email lookup is case-insensitive.
	if _, err := store.GetUserByEmail(ctx, fmt.Sprintf("IT-%d@EXAMPLE.COM", suffix)); err != nil {
		t.Fatalf("get user by email: %v", err)
	}

	pkg, err := store.CreatePackage(ctx, catalog.Package{
		Title:       fmt.Sprintf("LLC Formation %d", suffix),
		Description: "Limited liability company formation",
		Price:       149,
	})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}

	if _, err := store.CreatePackage(ctx, catalog.Package{
		Title:       pkg.Title,
		Description: "duplicate",
		Price:       10,
	}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate package title: want ErrConflict, got %v", err)
	}

	addOn, err := store.CreateAddOn(ctx, catalog.AddOn{
		Title:       fmt.Sprintf("Registered Agent %d", suffix),
		Price:       99,
		Description: "One year of registered agent service",
	})
	if err != nil {
		t.Fatalf("create addon: %v", err)
	}

	req, err := store.CreateRequest(ctx, registration.Request{
		Name:        "Jordan Doe",
		CompanyName: "Acme LLC",
		UserID:      u.ID,
		PackageID:   pkg.ID,
		AddOnIDs:    []int64{addOn.ID},
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != registration.StatusPending {
		t.Fatalf("new request status = %q, want pending", req.Status)
	}

	got, err := store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if len(got.AddOnIDs) != 1 || got.AddOnIDs[0] != addOn.ID {
		t.Fatalf("request addon ids = %v, want [%d]", got.AddOnIDs, addOn.ID)
	}

	// Referenced rows cannot be deleted.
	if err := store.DeletePackage(ctx, pkg.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("delete referenced package: want ErrConflict, got %v", err)
	}
	if err := store.DeleteAddOn(ctx, addOn.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("delete referenced addon: want ErrConflict, got %v", err)
	}

	counts, err := store.CountsByPackage(ctx, []int64{pkg.ID})
	if err != nil {
		t.Fatalf("counts by package: %v", err)
	}
	if counts[pkg.ID].Pending != 1 {
		t.Fatalf("pending count = %d, want 1", counts[pkg.ID].Pending)
	}

	if _, err := store.UpdateRequestStatus(ctx, req.ID, registration.StatusCompleted); err != nil {
		t.Fatalf("update request status: %v", err)
	}

	usage, err := store.MostUsedAddOns(ctx, 10)
	if err != nil {
		t.Fatalf("most used addons: %v", err)
	}
	found := false
	for _, item := range usage {
		if item.ID == addOn.ID && item.RequestCount == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("addon %d missing from usage ranking", addOn.ID)
	}
}

func TestListPackagesFilters(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	suffix := time.Now().UnixNano()
	marker := fmt.Sprintf("filter-marker-%d", suffix)

	for i, price := range []float64{25, 75, 250} {
		if _, err := store.CreatePackage(ctx, catalog.Package{
			Title:       fmt.Sprintf("%s %d", marker, i),
			Description: marker,
			Price:       price,
		}); err != nil {
			t.Fatalf("seed package %d: %v", i, err)
		}
	}

	min := 50.0
	max := 100.0
	items, total, err := store.ListPackages(ctx, storage.PackageFilter{
		Search:   marker,
		MinPrice: &min,
		MaxPrice: &max,
		SortBy:   storage.SortByPrice,
	})
	if err != nil {
		t.Fatalf("list packages: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Price != 75 {
		t.Fatalf("filtered list = %d items total %d, want single 75 package", len(items), total)
	}
}
