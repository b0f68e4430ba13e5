package repository

import (
	"context"
	"strings"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/olivere/elastic/v7"
)

type ListingRepository interface {
	GetActiveListings(ctx context.Context, contract string, size, page int) ([]entity.Listing, int64, error)
	GetListingsBySeller(ctx context.Context, seller string, size, page int) ([]entity.Listing, int64, error)
}

type listingRepository struct {
	elastic elastic_search.Index
}

func NewListingRepository(elastic elastic_search.Index) ListingRepository {
	return listingRepository{elastic}
}

// GetActiveListings pages through open listings, cheapest first. An empty
// contract lists every collection.
func (r listingRepository) GetActiveListings(ctx context.Context, contract string, size, pageNum int) ([]entity.Listing, int64, error) {
	var query elastic.Query = elastic.NewMatchAllQuery()
	if contract != "" {
		query = elastic.NewTermQuery("contract", strings.ToLower(contract))
	}

	return r.find(ctx, query, size, pageNum)
}

func (r listingRepository) GetListingsBySeller(ctx context.Context, seller string, size, pageNum int) ([]entity.Listing, int64, error) {
	return r.find(ctx, elastic.NewTermQuery("seller", strings.ToLower(seller)), size, pageNum)
}

func (r listingRepository) find(ctx context.Context, query elastic.Query, size, pageNum int) ([]entity.Listing, int64, error) {
	size, from := page(size, pageNum)

	results, err := search(ctx, r.elastic.GetClient().
		Search(elastic_search.ListingIndex.Get()).
		Query(query).
		Sort("price", true).
		Sort("tokenId", true).
		From(from).
		Size(size).
		TrackTotalHits(true))
	if err != nil {
		return nil, 0, err
	}

	return decodeHits[entity.Listing](results)
}
