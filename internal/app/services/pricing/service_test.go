package pricing

import (
	"context"
	"testing"

	"github.com/souq-network/marketplace/internal/app/auth"
	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/storage/memory"
	serrors "github.com/souq-network/marketplace/internal/errors"
)

var admin = auth.Principal{Subject: "admin", Role: auth.RoleAdmin}

func TestSeedCreatesZeroDefaults(t *testing.T) {
	svc := New(memory.New(), nil)

	if err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	prices, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(prices) != len(boost.Types) {
		t.Fatalf("expected %d entries, got %d", len(boost.Types), len(prices))
	}
	for _, p := range prices {
		if p.PricePerUnit != 0 {
			t.Fatalf("seeded price must be zero, got %d for %s", p.PricePerUnit, p.BoostType)
		}
	}

	// re-seeding must not clobber explicit prices
	if _, err := svc.Set(context.Background(), admin, boost.TypeFeatured, 100); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	perUnit, err := svc.PricePerUnit(context.Background(), boost.TypeFeatured)
	if err != nil {
		t.Fatalf("price per unit: %v", err)
	}
	if perUnit != 100 {
		t.Fatalf("re-seed overwrote price: %d", perUnit)
	}
}

func TestSetGuards(t *testing.T) {
	svc := New(memory.New(), nil)

	vendor := auth.Principal{Subject: "v1", Role: auth.RoleVendor}
	if _, err := svc.Set(context.Background(), vendor, boost.TypeFeatured, 10); !serrors.IsCode(err, serrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Set(context.Background(), admin, "banner", 10); !serrors.IsCode(err, serrors.CodeValidation) {
		t.Fatalf("expected validation for unknown type, got %v", err)
	}
	if _, err := svc.Set(context.Background(), admin, boost.TypeFeatured, -1); !serrors.IsCode(err, serrors.CodeValidation) {
		t.Fatalf("expected validation for negative price, got %v", err)
	}
}

func TestPriceUnknownType(t *testing.T) {
	svc := New(memory.New(), nil)
	if _, err := svc.Price(context.Background(), "banner"); !serrors.IsCode(err, serrors.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	if _, err := svc.Price(context.Background(), boost.TypeFeatured); !serrors.IsCode(err, serrors.CodeNotFound) {
		t.Fatalf("expected not found before seeding, got %v", err)
	}
}
