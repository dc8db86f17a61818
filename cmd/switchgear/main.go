// Command switchgear runs the three HTTP surfaces described in
// spec.md §4: the public LNURL-Pay endpoint, the Discovery admin API,
// and the Offer admin API, sharing one backend pool, selector, and
// invoice dispatcher.
//
// Grounded on the teacher's cmd/api/main.go and cmd/worker/fund_card's
// run()-returns-error, config.Path/config.Load, copier.Copy-into-
// sub-config, and signal-driven graceful-shutdown shapes, generalized
// from one HTTP server + one worker to three independently configured
// servers plus one background reconciliation loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"switchgear/internal/auth"
	"switchgear/internal/config"
	"switchgear/internal/httpapi"
	"switchgear/internal/invoice"
	"switchgear/internal/lnnode"
	"switchgear/internal/pool"
	"switchgear/internal/selector"
	"switchgear/internal/store"
	"switchgear/internal/store/httpstore"
	"switchgear/internal/store/memory"
	"switchgear/internal/store/sqlstore"
	"switchgear/pkg/cache"
	"switchgear/pkg/logger"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

var Cfg config.Config

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	configPath := config.Path(root).Join("config.yaml")
	if p := os.Getenv("SWITCHGEAR_CONFIG"); p != "" {
		configPath = config.Path(p)
	}

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("switchgear starting",
		zap.Strings("partitions", Cfg.LnurlService.Partitions),
		zap.String("backend-selection", Cfg.LnurlService.BackendSelection.Type),
	)

	backendStore, closeBackends, err := newBackendStore(Cfg.Store.Discover)
	if err != nil {
		return fmt.Errorf("failed to build discovery backend store: %w", err)
	}
	defer closeBackends()

	offerStore, metadataStore, closeOffers, err := newOfferStores(Cfg.Store.Offer)
	if err != nil {
		return fmt.Errorf("failed to build offer stores: %w", err)
	}
	defer closeOffers()

	snaps := selector.NewPool()
	backendPool := pool.New(poolConfig(Cfg.LnurlService), backendStore, snaps, lnnode.Dial)

	sel := selector.New(snaps, selectorConfig(Cfg.LnurlService))
	dispatcher := invoice.NewDispatcher(sel, Cfg.LnurlService.LnClientTimeout(), invoiceBackoffConfig(Cfg.LnurlService.Backoff))

	discoveryVerifier, err := auth.NewVerifier(Cfg.DiscoveryService.AuthAuthority)
	if err != nil {
		return fmt.Errorf("failed to load discovery-service auth authority: %w", err)
	}
	offerVerifier, err := auth.NewVerifier(Cfg.OfferService.AuthAuthority)
	if err != nil {
		return fmt.Errorf("failed to load offer-service auth authority: %w", err)
	}

	lnurlHandler := httpapi.NewLNURLHandler(offerStore, metadataStore, dispatcher, snaps, lnurlConfig(Cfg.LnurlService))
	discoveryHandler := httpapi.NewDiscoveryHandler(backendStore, httpapi.DiscoveryConfig{MaxPageSize: Cfg.DiscoveryService.MaxPageSize})
	offerHandler := httpapi.NewOfferHandler(offerStore, metadataStore, httpapi.OfferConfig{MaxPageSize: Cfg.OfferService.MaxPageSize})

	lnurlServer := httpapi.NewServer("lnurl", Cfg.LnurlService.Address, Cfg.LnurlService.TLS, httpapi.NewLNURLRouter(lnurlHandler), logger.SinkLNURL)
	discoveryServer := httpapi.NewServer("discovery", Cfg.DiscoveryService.Address, Cfg.DiscoveryService.TLS, httpapi.NewDiscoveryRouter(discoveryHandler, discoveryVerifier), logger.SinkDiscovery)
	offerServer := httpapi.NewServer("offer", Cfg.OfferService.Address, Cfg.OfferService.TLS, httpapi.NewOfferRouter(offerHandler, offerVerifier), logger.SinkOffer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errs := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		backendPool.Run(ctx)
	}()

	for _, srv := range []*httpapi.Server{lnurlServer, discoveryServer, offerServer} {
		wg.Add(1)
		go func(s *httpapi.Server) {
			defer wg.Done()
			if err := s.Serve(ctx); err != nil {
				errs <- err
				stop()
			}
		}(srv)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	logger.Info("switchgear stopped")
	return nil
}

// newBackendStore builds the Discovery backend store named by cfg.Type
// ("memory", "sql", or "http"), wiring a redis change bus into a SQL
// store when change-bus-url is configured so sibling instances sharing
// the database learn of a mutation without waiting for their own poll.
func newBackendStore(cfg config.EntityStoreConfig) (store.BackendStore, func(), error) {
	switch cfg.Type {
	case "", "memory":
		return memory.NewBackendStore(), func() {}, nil
	case "sql":
		db, closeFn, err := openSQLStore(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return sqlstore.NewBackendStore(db), closeFn, nil
	case "http":
		var httpCfg httpstore.Config
		if err := copier.Copy(&httpCfg, &cfg.HTTP); err != nil {
			return nil, nil, fmt.Errorf("failed to copy discovery http store config: %w", err)
		}
		s, err := httpstore.NewBackendStore(httpCfg, Cfg.LnurlService.BackendUpdateFrequency())
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store.discover.type %q", cfg.Type)
	}
}

// newOfferStores builds the Offer and OfferMetadata stores named by
// cfg.Type, sharing a single SQL connection (and change bus, if any)
// between the two when cfg.Type is "sql".
func newOfferStores(cfg config.EntityStoreConfig) (store.OfferStore, store.MetadataStore, func(), error) {
	switch cfg.Type {
	case "", "memory":
		return memory.NewOfferStore(), memory.NewMetadataStore(), func() {}, nil
	case "sql":
		db, closeFn, err := openSQLStore(cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqlstore.NewOfferStore(db), sqlstore.NewMetadataStore(db), closeFn, nil
	case "http":
		var httpCfg httpstore.Config
		if err := copier.Copy(&httpCfg, &cfg.HTTP); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to copy offer http store config: %w", err)
		}
		offers, err := httpstore.NewOfferStore(httpCfg, Cfg.LnurlService.BackendUpdateFrequency())
		if err != nil {
			return nil, nil, nil, err
		}
		metadata, err := httpstore.NewMetadataStore(httpCfg, Cfg.LnurlService.BackendUpdateFrequency())
		if err != nil {
			return nil, nil, nil, err
		}
		return offers, metadata, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store.offer.type %q", cfg.Type)
	}
}

// openSQLStore opens the database/sql pool for dbCfg and, if
// change-bus-url is set, dials and attaches a redis change bus to it.
func openSQLStore(dbCfg config.DatabaseConfig) (*sqlstore.DB, func(), error) {
	db, err := sqlstore.Open(context.Background(), sqlstore.Dialect(dbCfg.Dialect), dbCfg.DSN, dbCfg.MaxConns)
	if err != nil {
		return nil, nil, err
	}

	var bus *cache.Bus
	if dbCfg.ChangeBusURL != "" {
		busCfg, err := cache.ParseURL(dbCfg.ChangeBusURL)
		if err != nil {
			return nil, nil, err
		}
		bus, err = cache.NewBus(busCfg)
		if err != nil {
			return nil, nil, err
		}
		db.AttachBus(bus)
	}

	return db, func() {
		db.Close()
		if bus != nil {
			bus.Close()
		}
	}, nil
}

func poolConfig(cfg config.LnurlServiceConfig) pool.Config {
	return pool.Config{
		HealthCheckFrequency:          cfg.HealthCheckFrequency(),
		ParallelHealthCheck:           cfg.ParallelHealthCheck,
		ConsecutiveSuccessToHealthy:   cfg.HealthCheckConsecutiveSuccess,
		ConsecutiveFailureToUnhealthy: cfg.HealthCheckConsecutiveFailure,
		BackendUpdateFrequency:        cfg.BackendUpdateFrequency(),
		ProbeTimeout:                  cfg.LnClientTimeout(),
		Partitions:                    cfg.Partitions,
	}
}

func selectorConfig(cfg config.LnurlServiceConfig) selector.Config {
	return selector.Config{
		Policy:         selector.PolicyType(cfg.BackendSelection.Type),
		MaxIterations:  cfg.BackendSelection.MaxIterations,
		CapacityBias:   cfg.SelectionCapacityBias,
		CommentAllowed: cfg.CommentAllowed,
	}
}

func invoiceBackoffConfig(cfg config.BackoffConfig) invoice.BackoffConfig {
	var out invoice.BackoffConfig
	if err := copier.Copy(&out, &cfg); err != nil {
		logger.Warn("failed to copy backoff config, falling back to exponential defaults", zap.Error(err))
		return invoice.BackoffConfig{Type: invoice.BackoffExponential}
	}
	out.Type = invoice.BackoffType(cfg.Type)
	return out
}

func lnurlConfig(cfg config.LnurlServiceConfig) httpapi.LNURLConfig {
	return httpapi.LNURLConfig{
		Partitions:        cfg.Partitions,
		AllowedHosts:      cfg.AllowedHosts,
		InvoiceExpirySecs: cfg.InvoiceExpirySecs,
		CommentAllowed:    cfg.CommentAllowed,
		Bech32QRScale:     cfg.Bech32QRScale,
		Bech32QRLight:     cfg.Bech32QRLight,
		Bech32QRDark:      cfg.Bech32QRDark,
	}
}
