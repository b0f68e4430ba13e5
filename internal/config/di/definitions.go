package di

import (
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/api"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/indexer"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/metrics"
	paymentmemory "github.com/ZilDuck/zilliqa-nft-marketplace/internal/payment/memory"
	registrymemory "github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry/memory"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/repository"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage/badger"
	storagememory "github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage/memory"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage/sqlite"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/zilliqa"
	"github.com/sarulabs/di/v2"
	"go.uber.org/zap"
)

var (
	ErrUnknownStorage     = errors.New("unknown storage backend")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrMissingAddress     = errors.New("marketplace address not configured")
	ErrSearchNotAvailable = errors.New("elastic search hosts not configured")
)

// Store is the configured marketplace backend.
type Store interface {
	storage.Store
}

func Definitions(cfg *config.Config) []di.Def {
	return []di.Def{
		{
			Name: "events",
			Build: func(ctn di.Container) (interface{}, error) {
				return event.NewManager(), nil
			},
		},
		{
			Name: "metrics",
			Build: func(ctn di.Container) (interface{}, error) {
				return metrics.NewMetrics(), nil
			},
		},
		{
			Name: "store",
			Build: func(ctn di.Container) (interface{}, error) {
				return newStore(cfg.Marketplace)
			},
			Close: closeIfCloser,
		},
		{
			Name: "zilliqa.provider",
			Build: func(ctn di.Container) (interface{}, error) {
				client, err := zilliqa.NewClient(cfg.Zilliqa.Url, cfg.Zilliqa.Timeout, cfg.Zilliqa.Debug)
				if err != nil {
					return nil, err
				}
				return zilliqa.NewProvider(client), nil
			},
		},
		{
			Name: "zilliqa.signer",
			Build: func(ctn di.Container) (interface{}, error) {
				return zilliqa.NewSigner(ctn.Get("zilliqa.provider").(*zilliqa.Provider), zilliqa.SignerConfig{
					ChainId:         cfg.Zilliqa.ChainId,
					PrivateKey:      cfg.Zilliqa.PrivateKey,
					GasPrice:        cfg.Zilliqa.GasPrice,
					ConfirmAttempts: cfg.Zilliqa.ConfirmAttempts,
					ConfirmInterval: 3 * time.Second,
				})
			},
		},
		{
			Name: "registry",
			Build: func(ctn di.Container) (interface{}, error) {
				switch cfg.Marketplace.Registry {
				case config.BackendMemory:
					return registrymemory.NewRegistry(marketplaceAddress(ctn, cfg)), nil
				case config.BackendZilliqa:
					return zilliqa.NewRegistry(
						ctn.Get("zilliqa.provider").(*zilliqa.Provider),
						ctn.Get("zilliqa.signer").(*zilliqa.Signer),
					).WithTransferGasLimit(cfg.Zilliqa.GasLimit), nil
				}
				return nil, ErrUnknownBackend
			},
		},
		{
			Name: "payments",
			Build: func(ctn di.Container) (interface{}, error) {
				switch cfg.Marketplace.Payments {
				case config.BackendMemory:
					return paymentmemory.NewLedger(), nil
				case config.BackendZilliqa:
					return zilliqa.NewPayer(ctn.Get("zilliqa.signer").(*zilliqa.Signer)), nil
				}
				return nil, ErrUnknownBackend
			},
		},
		{
			Name: "marketplace",
			Build: func(ctn di.Container) (interface{}, error) {
				address := marketplaceAddress(ctn, cfg)
				if address == "" {
					return nil, ErrMissingAddress
				}

				svc := marketplace.NewMarketplace(
					address,
					ctn.Get("store").(Store),
					ctn.Get("registry").(marketplace.AssetRegistry),
					ctn.Get("payments").(marketplace.PaymentChannel),
					ctn.Get("events").(event.Manager),
				)

				return metrics.NewInstrumentedService(svc, ctn.Get("metrics").(metrics.Metrics)), nil
			},
		},
		{
			Name: "elastic",
			Build: func(ctn di.Container) (interface{}, error) {
				if len(cfg.ElasticSearch.Hosts) == 0 {
					return nil, ErrSearchNotAvailable
				}
				return elastic_search.New(cfg.ElasticSearch, cfg.Aws)
			},
		},
		{
			Name: "listing.repo",
			Build: func(ctn di.Container) (interface{}, error) {
				return repository.NewListingRepository(ctn.Get("elastic").(elastic_search.Index)), nil
			},
		},
		{
			Name: "action.repo",
			Build: func(ctn di.Container) (interface{}, error) {
				return repository.NewMarketplaceActionRepository(ctn.Get("elastic").(elastic_search.Index)), nil
			},
		},
		{
			Name: "indexer",
			Build: func(ctn di.Container) (interface{}, error) {
				return indexer.NewMarketplaceIndexer(ctn.Get("elastic").(elastic_search.Index)), nil
			},
		},
		{
			Name: "messenger",
			Build: func(ctn di.Container) (interface{}, error) {
				return messenger.NewMessenger(cfg.Rabbit.Uri), nil
			},
			Close: func(obj interface{}) error {
				return obj.(messenger.MessageService).Close()
			},
		},
		{
			Name: "publisher",
			Build: func(ctn di.Container) (interface{}, error) {
				return messenger.NewEventPublisher(ctn.Get("messenger").(messenger.MessageService), cfg.Index), nil
			},
		},
		{
			Name: "api",
			Build: func(ctn di.Container) (interface{}, error) {
				var listingRepo repository.ListingRepository
				var actionRepo repository.MarketplaceActionRepository
				if len(cfg.ElasticSearch.Hosts) != 0 {
					listingRepo = ctn.Get("listing.repo").(repository.ListingRepository)
					actionRepo = ctn.Get("action.repo").(repository.MarketplaceActionRepository)
				}

				return api.NewServer(
					ctn.Get("marketplace").(marketplace.Service),
					listingRepo,
					actionRepo,
					ctn.Get("metrics").(metrics.Metrics),
					api.NewAuthenticator(cfg.Api.JwtSecret),
				), nil
			},
		},
	}
}

func newStore(cfg config.MarketplaceConfig) (Store, error) {
	zap.L().With(zap.String("storage", cfg.Storage), zap.String("path", cfg.StoragePath)).Info("Marketplace: Opening store")

	switch cfg.Storage {
	case config.StorageMemory:
		return storagememory.NewStore(), nil
	case config.StorageBadger:
		return badger.Open(filepath.Join(cfg.StoragePath, "badger"))
	case config.StorageSqlite:
		return sqlite.Open(filepath.Join(cfg.StoragePath, "marketplace.db"))
	}

	return nil, ErrUnknownStorage
}

// marketplaceAddress is the configured address, or the signing account's when
// the marketplace acts on chain and none is configured.
func marketplaceAddress(ctn di.Container, cfg *config.Config) string {
	if cfg.Marketplace.Address != "" {
		return cfg.Marketplace.Address
	}
	if cfg.Marketplace.Registry == config.BackendZilliqa || cfg.Marketplace.Payments == config.BackendZilliqa {
		return ctn.Get("zilliqa.signer").(*zilliqa.Signer).Address()
	}
	return ""
}

func closeIfCloser(obj interface{}) error {
	if c, ok := obj.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
