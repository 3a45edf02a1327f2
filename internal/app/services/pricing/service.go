// Package pricing manages the boost price catalog.
package pricing

import (
	"context"
	"errors"

	"github.com/souq-network/marketplace/internal/app/auth"
	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/domain/pricing"
	"github.com/souq-network/marketplace/internal/app/storage"
	serrors "github.com/souq-network/marketplace/internal/errors"
	"github.com/souq-network/marketplace/pkg/logger"
)

// Service exposes the per-type price catalog used by the admission
// controller.
type Service struct {
	store storage.PricingStore
	log   *logger.Logger
}

// New constructs a pricing service.
func New(store storage.PricingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("pricing")
	}
	return &Service{store: store, log: log}
}

// Seed inserts a zero-price entry for every boost type that has none, so
// lookups never miss on a fresh deployment.
func (s *Service) Seed(ctx context.Context) error {
	for _, t := range boost.Types {
		_, err := s.store.GetPrice(ctx, t)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return serrors.Internal("read price catalog", err)
		}
		if _, err := s.store.UpsertPrice(ctx, pricing.Price{BoostType: t}); err != nil {
			return serrors.Internal("seed price catalog", err)
		}
		s.log.WithField("boost_type", t).Info("seeded default price")
	}
	return nil
}

// Price returns the catalog entry for a boost type.
func (s *Service) Price(ctx context.Context, t boost.Type) (pricing.Price, error) {
	if !boost.ValidType(t) {
		return pricing.Price{}, serrors.Validationf("unknown boost type %q", t)
	}
	p, err := s.store.GetPrice(ctx, t)
	if errors.Is(err, storage.ErrNotFound) {
		return pricing.Price{}, serrors.NotFoundf("no price for boost type %q", t)
	}
	if err != nil {
		return pricing.Price{}, serrors.Internal("read price", err)
	}
	return p, nil
}

// PricePerUnit returns the catalog price for one duration unit of t. This is
// the slice the admission controller consumes.
func (s *Service) PricePerUnit(ctx context.Context, t boost.Type) (int64, error) {
	p, err := s.Price(ctx, t)
	if err != nil {
		return 0, err
	}
	return p.PricePerUnit, nil
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]pricing.Price, error) {
	prices, err := s.store.ListPrices(ctx)
	if err != nil {
		return nil, serrors.Internal("list prices", err)
	}
	return prices, nil
}

// Set updates the price for a boost type. Admin only.
func (s *Service) Set(ctx context.Context, principal auth.Principal, t boost.Type, pricePerUnit int64) (pricing.Price, error) {
	if !principal.IsAdmin() {
		return pricing.Price{}, serrors.Forbidden("pricing changes require the admin role")
	}
	if !boost.ValidType(t) {
		return pricing.Price{}, serrors.Validationf("unknown boost type %q", t)
	}
	if pricePerUnit < 0 {
		return pricing.Price{}, serrors.Validation("price_per_unit must not be negative")
	}

	p, err := s.store.UpsertPrice(ctx, pricing.Price{BoostType: t, PricePerUnit: pricePerUnit})
	if err != nil {
		return pricing.Price{}, serrors.Internal("set price", err)
	}
	s.log.WithField("boost_type", t).
		WithField("price_per_unit", pricePerUnit).
		Info("price updated")
	return p, nil
}
