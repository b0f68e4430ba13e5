package repository

import (
	"context"
	"strings"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/olivere/elastic/v7"
)

type MarketplaceActionRepository interface {
	GetActions(ctx context.Context, contract string, tokenId uint64, size, page int) ([]entity.MarketplaceAction, int64, error)
	GetActionsByAccount(ctx context.Context, account string, size, page int) ([]entity.MarketplaceAction, int64, error)
}

type marketplaceActionRepository struct {
	elastic elastic_search.Index
}

func NewMarketplaceActionRepository(elastic elastic_search.Index) MarketplaceActionRepository {
	return marketplaceActionRepository{elastic}
}

// GetActions returns the history of one asset, newest first.
func (r marketplaceActionRepository) GetActions(ctx context.Context, contract string, tokenId uint64, size, pageNum int) ([]entity.MarketplaceAction, int64, error) {
	query := elastic.NewBoolQuery().Must(
		elastic.NewTermQuery("contract", strings.ToLower(contract)),
		elastic.NewTermQuery("tokenId", tokenId),
	)

	return r.find(ctx, query, size, pageNum)
}

// GetActionsByAccount returns everything an account did as seller or buyer, newest first.
func (r marketplaceActionRepository) GetActionsByAccount(ctx context.Context, account string, size, pageNum int) ([]entity.MarketplaceAction, int64, error) {
	account = strings.ToLower(account)
	query := elastic.NewBoolQuery().Should(
		elastic.NewTermQuery("seller", account),
		elastic.NewTermQuery("buyer", account),
	).MinimumNumberShouldMatch(1)

	return r.find(ctx, query, size, pageNum)
}

func (r marketplaceActionRepository) find(ctx context.Context, query elastic.Query, size, pageNum int) ([]entity.MarketplaceAction, int64, error) {
	size, from := page(size, pageNum)

	results, err := search(ctx, r.elastic.GetClient().
		Search(elastic_search.MarketplaceActionIndex.Get()).
		Query(query).
		Sort("time", false).
		From(from).
		Size(size).
		TrackTotalHits(true))
	if err != nil {
		return nil, 0, err
	}

	return decodeHits[entity.MarketplaceAction](results)
}
