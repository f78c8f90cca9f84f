// Package app assembles the service layer: ledger access, mirror stores and
// domain services, with lifecycle management for the moving parts.
package app

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/tunevault/service_layer/internal/config"
	"github.com/tunevault/service_layer/internal/httpapi"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/mirror"
	"github.com/tunevault/service_layer/internal/mirror/memory"
	"github.com/tunevault/service_layer/internal/mirror/postgres"
	"github.com/tunevault/service_layer/internal/reconcile"
	"github.com/tunevault/service_layer/internal/services/listeners"
	"github.com/tunevault/service_layer/internal/services/pricing"
	"github.com/tunevault/service_layer/internal/services/purchase"
	"github.com/tunevault/service_layer/internal/services/staking"
	"github.com/tunevault/service_layer/internal/services/tokenize"
	"github.com/tunevault/service_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// shared in-memory implementation.
type Stores struct {
	Vaults  mirror.VaultStore
	Curves  mirror.CurveStore
	Songs   mirror.SongStore
	Rewards mirror.RewardStore
	Revenue mirror.RevenueStore
	Users   mirror.UserStore
	Sagas   mirror.SagaStore
}

// Ledger groups the ledger-facing dependencies. Nil fields are built from
// configuration; tests inject fakes here.
type Ledger struct {
	Executor  Executor
	Inspector Inspector
	Events    reconcile.EventSource
}

// Executor submits signed mutating calls in strict order.
type Executor interface {
	Execute(ctx context.Context, call *ledger.MoveCall) (*ledger.TxResult, error)
}

// Inspector runs read-only simulation calls.
type Inspector interface {
	Inspect(ctx context.Context, call *ledger.MoveCall) ([]byte, error)
}

// Application ties the services together and manages their lifecycle.
type Application struct {
	log        *logger.Logger
	cfg        config.Config
	db         *sql.DB
	redis      *redis.Client
	dispatcher *ledger.Dispatcher
	reconciler *reconcile.Reconciler

	Pricing   *pricing.Service
	Tokenize  *tokenize.Service
	Purchase  *purchase.Service
	Staking   *staking.Service
	Listeners *listeners.Service
	Handler   http.Handler
}

// New builds a fully initialised application from configuration, with the
// given store and ledger overrides.
func New(cfg config.Config, stores Stores, led Ledger, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	a := &Application{log: log, cfg: cfg}

	if err := a.initStores(&stores); err != nil {
		return nil, err
	}
	if err := a.initLedger(&led); err != nil {
		return nil, err
	}

	contracts := ledger.Contracts{
		PackageID:           cfg.Ledger.PackageID,
		TreasuryCapID:       cfg.Ledger.TreasuryCapID,
		TrackSupplyRegistry: cfg.Ledger.TrackSupplyRegistry,
		VaultRegistry:       cfg.Ledger.VaultRegistry,
		YieldProtocolID:     cfg.Ledger.YieldProtocolID,
	}

	var cache pricing.QuoteCache
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		cache = pricing.NewRedisQuoteCache(a.redis, cfg.Redis.QuoteTTL)
	}

	a.Pricing = pricing.New(contracts, led.Executor, led.Inspector,
		stores.Curves, stores.Vaults, cache, log.WithField("service", "pricing"))
	a.Staking = staking.New(contracts, led.Executor, led.Inspector,
		stores.Vaults, stores.Rewards, stores.Users, log.WithField("service", "staking"))
	a.Tokenize = tokenize.New(contracts, led.Executor, a.Pricing, a.Staking,
		stores.Vaults, stores.Songs, stores.Sagas, log.WithField("service", "tokenize"))
	a.Purchase = purchase.New(contracts, led.Executor, a.Pricing,
		stores.Songs, stores.Revenue, log.WithField("service", "purchase"))
	a.Listeners = listeners.New(stores.Users, stores.Rewards, stores.Revenue,
		log.WithField("service", "listeners"))

	if led.Events != nil && cfg.Reconcile.Enabled {
		a.reconciler = reconcile.New(led.Events, cfg.Ledger.PackageID,
			stores.Songs, stores.Sagas, log.WithField("service", "reconcile"))
	}

	a.Handler = httpapi.NewHandler(httpapi.Deps{
		Tokenizer: a.Tokenize,
		Purchaser: a.Purchase,
		Pricer:    a.Pricing,
		Staker:    a.Staking,
		Listeners: a.Listeners,
		Log:       log.WithField("service", "httpapi"),
	})

	return a, nil
}

func (a *Application) initStores(stores *Stores) error {
	if a.cfg.Database.DSN != "" {
		db, err := sql.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
		if err != nil {
			return err
		}
		a.db = db
		pg := postgres.New(db)
		fillStores(stores, pg, pg, pg, pg, pg, pg, pg)
		return nil
	}

	mem := memory.New()
	fillStores(stores, mem, mem, mem, mem, mem, mem, mem)
	return nil
}

func fillStores(stores *Stores, vaults mirror.VaultStore, curves mirror.CurveStore,
	songs mirror.SongStore, rewards mirror.RewardStore, revenue mirror.RevenueStore,
	users mirror.UserStore, sagas mirror.SagaStore) {
	if stores.Vaults == nil {
		stores.Vaults = vaults
	}
	if stores.Curves == nil {
		stores.Curves = curves
	}
	if stores.Songs == nil {
		stores.Songs = songs
	}
	if stores.Rewards == nil {
		stores.Rewards = rewards
	}
	if stores.Revenue == nil {
		stores.Revenue = revenue
	}
	if stores.Users == nil {
		stores.Users = users
	}
	if stores.Sagas == nil {
		stores.Sagas = sagas
	}
}

func (a *Application) initLedger(led *Ledger) error {
	if led.Executor != nil && led.Inspector != nil && led.Events != nil {
		return nil
	}

	client, err := ledger.NewClient(ledger.ClientConfig{
		RPCURL:  a.cfg.Ledger.RPCURL,
		Timeout: a.cfg.Ledger.RequestTimeout,
	})
	if err != nil {
		return err
	}

	signer, err := ledger.NewSigner(a.cfg.Ledger.PrivateKey)
	if err != nil {
		return err
	}
	a.log.Infof("signer address %s", signer.Address())

	a.dispatcher = ledger.NewDispatcher(client, signer, ledger.DispatcherConfig{
		SubmitRatePerSec: a.cfg.Ledger.SubmitRatePerSec,
	}, a.log.WithField("service", "dispatch"))

	if led.Executor == nil {
		led.Executor = a.dispatcher
	}
	if led.Inspector == nil {
		led.Inspector = a.dispatcher
	}
	if led.Events == nil {
		led.Events = client
	}
	return nil
}

// Start begins background work: the reconciler schedule.
func (a *Application) Start() error {
	if a.reconciler != nil {
		return a.reconciler.Start(a.cfg.Reconcile.Schedule)
	}
	return nil
}

// Stop shuts everything down in dependency order: scheduler first, then the
// dispatch queue, then connections.
func (a *Application) Stop(ctx context.Context) error {
	if a.reconciler != nil {
		a.reconciler.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("redis close failed")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}
	return nil
}
