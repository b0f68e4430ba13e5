package repository

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/require"
)

const contract = "0x1111111111111111111111111111111111111111"

type searchCall struct {
	path string
	body map[string]interface{}
}

func newSearchServer(t *testing.T, docs []interface{}, calls chan<- searchCall) elastic_search.Index {
	t.Setenv("NETWORK", "zilliqa")
	t.Setenv("INDEX_NAME", "test")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(b, &body)
		calls <- searchCall{path: r.URL.Path, body: body}

		hits := make([]map[string]interface{}, 0, len(docs))
		for _, d := range docs {
			hits = append(hits, map[string]interface{}{"_index": "x", "_id": "y", "_source": d})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"took": 1,
			"hits": map[string]interface{}{
				"total": map[string]interface{}{"value": 42, "relation": "eq"},
				"hits":  hits,
			},
		})
	}))
	t.Cleanup(server.Close)

	client, err := elastic.NewClient(elastic.SetURL(server.URL), elastic.SetSniff(false), elastic.SetHealthcheck(false))
	require.NoError(t, err)

	return elastic_search.NewIndex(client, "false", 10)
}

func TestGetActiveListings(t *testing.T) {
	calls := make(chan searchCall, 1)
	idx := newSearchServer(t, []interface{}{
		entity.Listing{Contract: contract, TokenId: 1, Seller: "0xaa", Price: big.NewInt(5)},
		entity.Listing{Contract: contract, TokenId: 2, Seller: "0xbb", Price: big.NewInt(7)},
	}, calls)

	listings, total, err := NewListingRepository(idx).GetActiveListings(context.Background(), strings.ToUpper(contract), 2, 3)
	require.NoError(t, err)
	require.Equal(t, int64(42), total)
	require.Len(t, listings, 2)
	require.Equal(t, uint64(2), listings[1].TokenId)
	require.Equal(t, "7", listings[1].Price.String())

	call := <-calls
	require.Equal(t, "/zilliqa.test.listing/_search", call.path)
	require.EqualValues(t, 4, call.body["from"])
	require.EqualValues(t, 2, call.body["size"])

	query, _ := json.Marshal(call.body["query"])
	require.Contains(t, string(query), `"term":{"contract":"`+contract+`"}`)
}

func TestGetActiveListingsWithoutContractMatchesAll(t *testing.T) {
	calls := make(chan searchCall, 1)
	idx := newSearchServer(t, nil, calls)

	listings, _, err := NewListingRepository(idx).GetActiveListings(context.Background(), "", 0, 0)
	require.NoError(t, err)
	require.Empty(t, listings)

	call := <-calls
	require.EqualValues(t, 0, call.body["from"])
	require.EqualValues(t, maxPageSize, call.body["size"])
	require.Contains(t, call.body["query"], "match_all")
}

func TestGetActions(t *testing.T) {
	calls := make(chan searchCall, 1)
	sale := entity.MarketplaceAction{
		TxID:     "tx",
		Action:   entity.SaleAction,
		Contract: contract,
		TokenId:  9,
		Seller:   "0xaa",
		Buyer:    "0xbb",
		Price:    big.NewInt(10),
		Paid:     big.NewInt(12),
		Time:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	idx := newSearchServer(t, []interface{}{sale}, calls)

	actions, _, err := NewMarketplaceActionRepository(idx).GetActions(context.Background(), contract, 9, 10, 1)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, entity.SaleAction, actions[0].Action)
	require.Equal(t, "12", actions[0].Paid.String())
	require.True(t, sale.Time.Equal(actions[0].Time))

	call := <-calls
	require.Equal(t, "/zilliqa.test.marketplaceaction/_search", call.path)
	sort, _ := json.Marshal(call.body["sort"])
	require.Contains(t, string(sort), `"time":{"order":"desc"}`)
}

func TestSearchRetriesWhenThrottled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		cancel()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client, err := elastic.NewClient(elastic.SetURL(server.URL), elastic.SetSniff(false), elastic.SetHealthcheck(false))
	require.NoError(t, err)

	_, err = search(ctx, client.Search("any"))
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 1, atomic.LoadInt32(&requests))
}

func TestGetListingsBySeller(t *testing.T) {
	calls := make(chan searchCall, 1)
	idx := newSearchServer(t, []interface{}{
		entity.Listing{Contract: contract, TokenId: 4, Seller: "0xaa", Price: big.NewInt(5)},
	}, calls)

	listings, _, err := NewListingRepository(idx).GetListingsBySeller(context.Background(), "0xAA", 10, 2)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	call := <-calls
	require.EqualValues(t, 10, call.body["from"])
	query, _ := json.Marshal(call.body["query"])
	require.Contains(t, string(query), `"term":{"seller":"0xaa"}`)
}

func TestGetActionsByAccountMatchesSellerOrBuyer(t *testing.T) {
	calls := make(chan searchCall, 1)
	idx := newSearchServer(t, nil, calls)

	_, total, err := NewMarketplaceActionRepository(idx).GetActionsByAccount(context.Background(), "0xBB", 5, 1)
	require.NoError(t, err)
	require.Equal(t, int64(42), total)

	call := <-calls
	query, _ := json.Marshal(call.body["query"])
	require.Contains(t, string(query), `{"term":{"seller":"0xbb"}}`)
	require.Contains(t, string(query), `{"term":{"buyer":"0xbb"}}`)
	require.Contains(t, string(query), `"minimum_should_match":"1"`)
}

func TestPagesPastTheResultWindowOnlyCount(t *testing.T) {
	calls := make(chan searchCall, 1)
	idx := newSearchServer(t, nil, calls)

	listings, total, err := NewListingRepository(idx).GetActiveListings(context.Background(), contract, 100, 92233720368547760)
	require.NoError(t, err)
	require.Empty(t, listings)
	require.Equal(t, int64(42), total)

	call := <-calls
	require.EqualValues(t, 0, call.body["from"])
	require.EqualValues(t, 0, call.body["size"])
}

func TestPage(t *testing.T) {
	tests := []struct {
		name       string
		size, page int
		wantSize   int
		wantFrom   int
	}{
		{"first page", 10, 1, 10, 0},
		{"page below one", 10, -3, 10, 0},
		{"size capped", 500, 2, maxPageSize, maxPageSize},
		{"last page in window", 100, 100, 100, 9900},
		{"first page past window", 100, 101, 0, 0},
		{"huge page", 1, int(^uint(0) >> 1), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, from := page(tt.size, tt.page)
			require.Equal(t, tt.wantSize, size)
			require.Equal(t, tt.wantFrom, from)
			require.LessOrEqual(t, from+size, maxResultWindow)
		})
	}
}
