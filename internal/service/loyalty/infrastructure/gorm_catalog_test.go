package infrastructure_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/dbtest"
	invdomain "lensmart/internal/service/inventory/domain"
	invinfra "lensmart/internal/service/inventory/infrastructure"
	"lensmart/internal/service/loyalty/domain"
	"lensmart/internal/service/loyalty/infrastructure"
)

func newCatalog(t *testing.T) (*infrastructure.GormLoyaltyCatalog, *invinfra.GormInventoryLedger) {
	t.Helper()
	db := dbtest.Open(t)
	products := invinfra.NewGormInventoryLedger(db)
	catalog := infrastructure.NewGormLoyaltyCatalog(db)
	ctx := context.Background()

	if err := products.Create(ctx, &invdomain.Product{ID: "frame-1", Name: "Frame", Price: decimal.NewFromInt(40), StockQty: 3}); err != nil {
		t.Fatal(err)
	}
	linked := "frame-1"
	for _, lp := range []*domain.LoyaltyProduct{
		{ID: "lp-frame", Name: "Free frame", ProductID: &linked, PointsCost: 60, IsActive: true},
		{ID: "lp-cloth", Name: "Cleaning cloth", PointsCost: 5, IsActive: true, StockQty: 2},
	} {
		if err := catalog.Create(ctx, lp); err != nil {
			t.Fatal(err)
		}
	}
	return catalog, products
}

func TestLinkedStockFollowsProduct(t *testing.T) {
	catalog, products := newCatalog(t)
	ctx := context.Background()

	lp, err := catalog.Get(ctx, "lp-frame")
	if err != nil {
		t.Fatal(err)
	}
	if !lp.Linked() || lp.StockQty != 3 {
		t.Fatalf("linked = %+v", lp)
	}

	if _, err := products.TryDecrement(ctx, "frame-1", 2); err != nil {
		t.Fatal(err)
	}
	lp, _ = catalog.Get(ctx, "lp-frame")
	if lp.StockQty != 1 {
		t.Errorf("projection = %d, want 1", lp.StockQty)
	}
}

func TestOwnStockDecrement(t *testing.T) {
	catalog, _ := newCatalog(t)
	ctx := context.Background()

	remaining, err := catalog.TryDecrementOwnStock(ctx, "lp-cloth", 2)
	if err != nil || remaining != 0 {
		t.Fatalf("TryDecrementOwnStock = %d, %v", remaining, err)
	}
	_, err = catalog.TryDecrementOwnStock(ctx, "lp-cloth", 1)
	var stockErr *apperr.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Shortfall() != 1 {
		t.Fatalf("err = %v", err)
	}
	if _, err := catalog.IncrementOwnStock(ctx, "lp-cloth", 4); err != nil {
		t.Fatal(err)
	}
	lp, _ := catalog.Get(ctx, "lp-cloth")
	if lp.StockQty != 4 {
		t.Errorf("stock = %d, want 4", lp.StockQty)
	}
}

func TestLinkedOwnStockIsRejected(t *testing.T) {
	catalog, _ := newCatalog(t)
	ctx := context.Background()

	if _, err := catalog.TryDecrementOwnStock(ctx, "lp-frame", 1); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("decrement err = %v", err)
	}
	if _, err := catalog.IncrementOwnStock(ctx, "lp-frame", 1); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("increment err = %v", err)
	}
	if _, err := catalog.TryDecrementOwnStock(ctx, "missing", 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestGetManyAndSetActive(t *testing.T) {
	catalog, _ := newCatalog(t)
	ctx := context.Background()

	if err := catalog.SetActive(ctx, "lp-cloth", false); err != nil {
		t.Fatal(err)
	}
	got, err := catalog.GetMany(ctx, []string{"lp-frame", "lp-cloth", "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("GetMany len = %d", len(got))
	}
	if got["lp-cloth"].IsActive || !got["lp-frame"].IsActive {
		t.Errorf("active flags = %v / %v", got["lp-cloth"].IsActive, got["lp-frame"].IsActive)
	}
	if err := catalog.SetActive(ctx, "nope", true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("SetActive missing = %v", err)
	}
	if _, err := catalog.Get(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get missing = %v", err)
	}
}
