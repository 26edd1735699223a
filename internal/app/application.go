package app

import (
	"context"
	"fmt"

	"github.com/corpulate/platform/internal/app/auth"
	"github.com/corpulate/platform/internal/app/services/accounts"
	addonsvc "github.com/corpulate/platform/internal/app/services/addons"
	packagesvc "github.com/corpulate/platform/internal/app/services/packages"
	requestsvc "github.com/corpulate/platform/internal/app/services/requests"
	"github.com/corpulate/platform/internal/app/storage"
	"github.com/corpulate/platform/internal/app/storage/memory"
	"github.com/corpulate/platform/internal/app/system"
	"github.com/corpulate/platform/internal/mailer"
	"github.com/corpulate/platform/internal/platform/cache"
	"github.com/corpulate/platform/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users    storage.UserStore
	Packages storage.PackageStore
	AddOns   storage.AddOnStore
	Requests storage.RequestStore
}

// Options carries the non-store dependencies of the application.
type Options struct {
	Tokens *auth.TokenManager
	Mailer mailer.Mailer
	Cache  *cache.Cache
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Tokens   *auth.TokenManager
	Accounts *accounts.Service
	Packages *packagesvc.Service
	AddOns   *addonsvc.Service
	Requests *requestsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Packages == nil {
		stores.Packages = mem
	}
	if stores.AddOns == nil {
		stores.AddOns = mem
	}
	if stores.Requests == nil {
		stores.Requests = mem
	}

	manager := system.NewManager()

	acctService := accounts.New(stores.Users, opts.Tokens, opts.Mailer, log)
	pkgService := packagesvc.New(stores.Packages, stores.Requests, log)
	addOnService := addonsvc.New(stores.AddOns, stores.Requests, log)
	reqService := requestsvc.New(stores.Requests, stores.Packages, stores.AddOns, log)

	if opts.Cache != nil {
		addOnService.AttachCache(opts.Cache)
		if err := manager.Register(opts.Cache); err != nil {
			return nil, fmt.Errorf("register cache: %w", err)
		}
	}

	for _, name := range []string{"accounts", "packages", "addons", "requests"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Tokens:   opts.Tokens,
		Accounts: acctService,
		Packages: pkgService,
		AddOns:   addOnService,
		Requests: reqService,
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
