package di

import (
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/api"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/indexer"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/metrics"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/repository"
	"github.com/sarulabs/di/v2"
)

// Container gives typed access to the services built from Definitions.
type Container struct {
	di.Container
}

func NewContainer(cfg *config.Config) (*Container, error) {
	builder, err := di.NewBuilder()
	if err != nil {
		return nil, err
	}

	if err = builder.Add(Definitions(cfg)...); err != nil {
		return nil, err
	}

	return &Container{builder.Build()}, nil
}

func (c *Container) GetEvents() event.Manager {
	return c.Get("events").(event.Manager)
}

func (c *Container) GetMetrics() metrics.Metrics {
	return c.Get("metrics").(metrics.Metrics)
}

func (c *Container) GetStore() Store {
	return c.Get("store").(Store)
}

func (c *Container) GetMarketplace() marketplace.Service {
	return c.Get("marketplace").(marketplace.Service)
}

func (c *Container) GetElastic() (elastic_search.Index, error) {
	obj, err := c.SafeGet("elastic")
	if err != nil {
		return nil, err
	}
	return obj.(elastic_search.Index), nil
}

func (c *Container) GetListingRepo() repository.ListingRepository {
	return c.Get("listing.repo").(repository.ListingRepository)
}

func (c *Container) GetActionRepo() repository.MarketplaceActionRepository {
	return c.Get("action.repo").(repository.MarketplaceActionRepository)
}

func (c *Container) GetIndexer() indexer.MarketplaceIndexer {
	return c.Get("indexer").(indexer.MarketplaceIndexer)
}

func (c *Container) GetMessenger() messenger.MessageService {
	return c.Get("messenger").(messenger.MessageService)
}

func (c *Container) GetPublisher() messenger.EventPublisher {
	return c.Get("publisher").(messenger.EventPublisher)
}

func (c *Container) GetApi() api.Server {
	return c.Get("api").(api.Server)
}
