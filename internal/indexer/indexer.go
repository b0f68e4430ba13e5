package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"go.uber.org/zap"
)

// MarketplaceIndexer projects committed marketplace events into the search
// indices: one document per action and one per open listing.
type MarketplaceIndexer interface {
	Listen(events event.Manager)
	Index(eventType event.Type, action entity.MarketplaceAction)
	Run(ctx context.Context, interval time.Duration) error
	Flush(ctx context.Context) error
	Reindex(ctx context.Context, listings []entity.Listing) (int, error)
}

type marketplaceIndexer struct {
	elastic elastic_search.Index

	// guards the request queue between queueing and persisting
	mu sync.Mutex
}

func NewMarketplaceIndexer(elastic elastic_search.Index) MarketplaceIndexer {
	return &marketplaceIndexer{elastic: elastic}
}

func (i *marketplaceIndexer) Listen(events event.Manager) {
	events.AddListener(func(eventType event.Type, msg interface{}) {
		action, ok := msg.(entity.MarketplaceAction)
		if !ok {
			zap.L().With(zap.String("type", string(eventType))).Error("Indexer: Unexpected event payload")
			return
		}
		i.Index(eventType, action)
	}, event.MarketplaceEvents()...)
}

func (i *marketplaceIndexer) Index(eventType event.Type, action entity.MarketplaceAction) {
	i.mu.Lock()
	defer i.mu.Unlock()

	zap.L().With(
		zap.String("type", string(eventType)),
		zap.String("txId", action.TxID),
		zap.String("contract", action.Contract),
		zap.Uint64("tokenId", action.TokenId),
	).Debug("Indexer: Index marketplace action")

	i.elastic.AddIndexRequest(elastic_search.MarketplaceActionIndex.Get(), action, elastic_search.ActionCreate)

	switch eventType {
	case event.ItemListedEvent:
		i.elastic.AddIndexRequest(elastic_search.ListingIndex.Get(), action.Listing(), elastic_search.ListingCreate)
	case event.ListingUpdatedEvent:
		i.elastic.AddIndexRequest(elastic_search.ListingIndex.Get(), action.Listing(), elastic_search.ListingUpdate)
	case event.ItemCanceledEvent, event.ItemBoughtEvent:
		i.elastic.AddDeleteRequest(elastic_search.ListingIndex.Get(), action.Listing(), elastic_search.ListingRemove)
	}

	if _, err := i.elastic.BatchPersist(context.Background()); err != nil {
		zap.L().With(zap.Error(err)).Error("Indexer: Failed to batch persist")
	}
}

// Run flushes queued requests every interval until ctx is done, then once more.
func (i *marketplaceIndexer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return i.Flush(context.Background())
		case <-ticker.C:
			if err := i.Flush(ctx); err != nil {
				zap.L().With(zap.Error(err)).Error("Indexer: Failed to flush")
			}
		}
	}
}

func (i *marketplaceIndexer) Flush(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.elastic.GetRequests()) == 0 {
		return nil
	}

	_, err := i.elastic.Persist(ctx)
	return err
}

// Reindex replaces every listing document with listings, the authoritative set.
func (i *marketplaceIndexer) Reindex(ctx context.Context, listings []entity.Listing) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	zap.L().With(zap.Int("listings", len(listings))).Info("Indexer: Reindex listings")

	if err := i.elastic.DeleteIndexContents(ctx, elastic_search.ListingIndex.Get()); err != nil {
		return 0, err
	}

	for _, l := range listings {
		i.elastic.AddIndexRequest(elastic_search.ListingIndex.Get(), l, elastic_search.ListingImport)
	}

	return i.elastic.Persist(ctx)
}
