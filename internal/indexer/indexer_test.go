package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/require"
)

const (
	listingIndex = "zilliqa.test.listing"
	actionIndex  = "zilliqa.test.marketplaceaction"
)

type op struct {
	kind  string
	index string
	id    string
}

type cluster struct {
	mu             sync.Mutex
	ops            []op
	deletedByQuery []string
}

func (c *cluster) serve(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if strings.HasSuffix(r.URL.Path, "/_delete_by_query") {
		c.deletedByQuery = append(c.deletedByQuery, strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"took": 1, "deleted": 0})
		return
	}

	items := make([]map[string]map[string]interface{}, 0)
	scanner := bufio.NewScanner(r.Body)
	for scanner.Scan() {
		var action map[string]map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &action); err != nil {
			continue
		}
		for kind, meta := range action {
			o := op{kind: kind, index: meta["_index"].(string), id: meta["_id"].(string)}
			c.ops = append(c.ops, o)
			items = append(items, map[string]map[string]interface{}{kind: {"_index": o.index, "_id": o.id, "status": 200}})
			if kind == "index" {
				scanner.Scan()
			}
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"took": 1, "errors": false, "items": items})
}

func (c *cluster) snapshot() []op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]op(nil), c.ops...)
}

func newIndexer(t *testing.T) (*cluster, elastic_search.Index, MarketplaceIndexer) {
	t.Setenv("NETWORK", "zilliqa")
	t.Setenv("INDEX_NAME", "test")

	c := &cluster{}
	server := httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(server.Close)

	client, err := elastic.NewClient(elastic.SetURL(server.URL), elastic.SetSniff(false), elastic.SetHealthcheck(false))
	require.NoError(t, err)

	idx := elastic_search.NewIndex(client, "false", 50)
	return c, idx, NewMarketplaceIndexer(idx)
}

func action(tx string, a entity.ActionType, tokenId uint64) entity.MarketplaceAction {
	return entity.MarketplaceAction{
		TxID:     tx,
		Action:   a,
		Contract: "0x1111111111111111111111111111111111111111",
		TokenId:  tokenId,
		Seller:   "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Price:    big.NewInt(100),
		Time:     time.Now(),
	}
}

func TestIndexQueuesActionAndListingRequests(t *testing.T) {
	_, idx, indexer := newIndexer(t)

	listed := action("tx-1", entity.ListingAction, 1)
	indexer.Index(event.ItemListedEvent, listed)

	req := idx.GetRequest(listed.Listing().Slug())
	require.NotNil(t, req)
	require.Equal(t, elastic_search.IndexRequest, req.Type)
	require.Equal(t, listingIndex, req.Index)
	require.NotNil(t, idx.GetRequest(listed.Slug()))

	sold := action("tx-2", entity.SaleAction, 1)
	indexer.Index(event.ItemBoughtEvent, sold)

	req = idx.GetRequest(listed.Listing().Slug())
	require.Equal(t, elastic_search.DeleteRequest, req.Type)
	require.Equal(t, elastic_search.ListingRemove, req.Action)
	require.Len(t, idx.GetRequests(), 3)
}

func TestWithdrawalOnlyRecordsTheAction(t *testing.T) {
	_, idx, indexer := newIndexer(t)

	withdrawal := entity.MarketplaceAction{TxID: "tx-3", Action: entity.WithdrawalAction, Seller: "0xaa", Price: big.NewInt(5)}
	indexer.Index(event.ProceedsWithdrawnEvent, withdrawal)

	requests := idx.GetRequests()
	require.Len(t, requests, 1)
	require.Equal(t, actionIndex, requests[0].Index)
}

func TestListenProjectsEmittedEvents(t *testing.T) {
	c, _, indexer := newIndexer(t)
	events := event.NewManager()
	indexer.Listen(events)

	events.EmitEvent(event.ItemListedEvent, action("tx-1", entity.ListingAction, 1))
	events.EmitEvent(event.ItemCanceledEvent, action("tx-2", entity.DelistingAction, 1))

	removed := op{kind: "delete", index: listingIndex, id: action("", "", 1).Listing().Slug()}
	require.Eventually(t, func() bool {
		_ = indexer.Flush(context.Background())
		for _, o := range c.snapshot() {
			if o == removed {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestRunFlushesOnShutdown(t *testing.T) {
	c, _, indexer := newIndexer(t)
	indexer.Index(event.ItemListedEvent, action("tx-1", entity.ListingAction, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, indexer.Run(ctx, time.Hour))
	require.Len(t, c.snapshot(), 2)
}

func TestReindexReplacesListings(t *testing.T) {
	c, _, indexer := newIndexer(t)

	listings := []entity.Listing{action("", "", 1).Listing(), action("", "", 2).Listing()}
	n, err := indexer.Reindex(context.Background(), listings)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Equal(t, []string{listingIndex}, c.deletedByQuery)
	require.ElementsMatch(t, []op{
		{kind: "index", index: listingIndex, id: listings[0].Slug()},
		{kind: "index", index: listingIndex, id: listings[1].Slug()},
	}, c.ops)
}
