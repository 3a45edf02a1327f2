// Package app wires stores, domain services and background runtime together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/souq-network/marketplace/internal/app/auth"
	boostsvc "github.com/souq-network/marketplace/internal/app/services/boosts"
	pricingsvc "github.com/souq-network/marketplace/internal/app/services/pricing"
	walletsvc "github.com/souq-network/marketplace/internal/app/services/wallet"
	"github.com/souq-network/marketplace/internal/app/storage"
	"github.com/souq-network/marketplace/internal/app/storage/memory"
	"github.com/souq-network/marketplace/internal/app/system"
	"github.com/souq-network/marketplace/internal/config"
	"github.com/souq-network/marketplace/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Boosts  storage.BoostStore
	Wallet  storage.WalletStore
	Pricing storage.PricingStore
	Vendors storage.VendorStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Boosts  *boostsvc.Service
	Wallet  *walletsvc.Service
	Pricing *pricingsvc.Service
	Auth    *auth.Manager
}

// New builds a fully initialised application with the provided stores.
func New(cfg *config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Boosts == nil {
		stores.Boosts = mem
	}
	if stores.Wallet == nil {
		stores.Wallet = mem
	}
	if stores.Pricing == nil {
		stores.Pricing = mem
	}
	if stores.Vendors == nil {
		stores.Vendors = mem
	}

	manager := system.NewManager()

	pricingService := pricingsvc.New(stores.Pricing, log)
	walletService := walletsvc.New(stores.Wallet, log)
	boostService := boostsvc.New(stores.Boosts, stores.Vendors, pricingService, log)

	seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pricingService.Seed(seedCtx); err != nil {
		return nil, fmt.Errorf("seed price catalog: %w", err)
	}

	tokenTTL := time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
	authManager := auth.NewManager(cfg.Auth.JWTSecret, tokenTTL)
	if cfg.Auth.AdminUser != "" {
		authManager.RegisterUser(cfg.Auth.AdminUser, cfg.Auth.AdminPassword, auth.RoleAdmin)
	} else {
		log.Warn("no admin user configured; admin operations unavailable via login")
	}

	sweeper := boostsvc.NewSweeper(boostService, cfg.Boosts.SweepSchedule, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager: manager,
		log:     log,
		Boosts:  boostService,
		Wallet:  walletService,
		Pricing: pricingService,
		Auth:    authManager,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
