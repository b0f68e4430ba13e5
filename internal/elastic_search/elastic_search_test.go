package elastic_search

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/require"
)

const (
	testListingIndex = "zilliqa.test.listing"
	testActionIndex  = "zilliqa.test.marketplaceaction"
)

type bulkLine struct {
	op    string
	index string
	id    string
}

type fakeCluster struct {
	mu       sync.Mutex
	lines    []bulkLine
	statusOf map[string]int
	requests int
}

func newFakeCluster(t *testing.T) (*fakeCluster, *elastic.Client) {
	c := &fakeCluster{statusOf: map[string]int{}}
	server := httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(server.Close)

	client, err := elastic.NewClient(
		elastic.SetURL(server.URL),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	require.NoError(t, err)

	return c, client
}

func (c *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++

	w.Header().Set("Content-Type", "application/json")
	if !strings.HasSuffix(r.URL.Path, "/_bulk") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	items := make([]map[string]map[string]interface{}, 0)
	hasErrors := false

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var action map[string]map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &action); err != nil {
			continue
		}
		for op, meta := range action {
			if op != "index" && op != "delete" {
				continue
			}
			line := bulkLine{op: op, index: fmt.Sprint(meta["_index"]), id: fmt.Sprint(meta["_id"])}
			c.lines = append(c.lines, line)

			status, ok := c.statusOf[line.id]
			if !ok {
				status = 200
			}
			if status >= 300 {
				hasErrors = true
			}
			item := map[string]interface{}{"_index": line.index, "_id": line.id, "status": status}
			if status >= 300 && status != 404 {
				item["error"] = map[string]interface{}{"type": "mapper_parsing_exception", "reason": "boom"}
			}
			items = append(items, map[string]map[string]interface{}{op: item})

			// index lines are followed by their document
			if op == "index" {
				scanner.Scan()
			}
		}
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{"took": 1, "errors": hasErrors, "items": items})
}

func listing(tokenId uint64) entity.Listing {
	return entity.Listing{
		Contract: "0x1111111111111111111111111111111111111111",
		TokenId:  tokenId,
		Seller:   "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Price:    big.NewInt(100),
	}
}

func TestLatestRequestForADocumentWins(t *testing.T) {
	_, client := newFakeCluster(t)
	idx := NewIndex(client, "wait_for", 10)

	idx.AddIndexRequest(testListingIndex, listing(1), ListingCreate)
	idx.AddDeleteRequest(testListingIndex, listing(1), ListingRemove)
	idx.AddIndexRequest(testListingIndex, listing(2), ListingCreate)

	require.Len(t, idx.GetRequests(), 2)
	require.True(t, idx.HasRequest(listing(1)))

	req := idx.GetRequest(listing(1).Slug())
	require.NotNil(t, req)
	require.Equal(t, DeleteRequest, req.Type)
	require.Equal(t, ListingRemove, req.Action)

	idx.ClearRequests()
	require.Empty(t, idx.GetRequests())
	require.Nil(t, idx.GetRequest(listing(1).Slug()))
}

func TestPersistSendsBulkAndClearsQueue(t *testing.T) {
	cluster, client := newFakeCluster(t)
	idx := NewIndex(client, "wait_for", 2)

	action := entity.MarketplaceAction{TxID: "tx-1", Action: entity.SaleAction, Contract: listing(1).Contract, TokenId: 1}
	idx.AddDeleteRequest(testListingIndex, listing(1), ListingRemove)
	idx.AddIndexRequest(testListingIndex, listing(2), ListingCreate)
	idx.AddIndexRequest(testActionIndex, action, ActionCreate)

	persisted, err := idx.Persist(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, persisted)
	require.Empty(t, idx.GetRequests())

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	require.Equal(t, 2, cluster.requests, "bulk split by bulk count")
	require.ElementsMatch(t, []bulkLine{
		{op: "delete", index: testListingIndex, id: listing(1).Slug()},
		{op: "index", index: testListingIndex, id: listing(2).Slug()},
		{op: "index", index: testActionIndex, id: action.Slug()},
	}, cluster.lines)
}

func TestPersistIgnoresMissingDocumentsOnDelete(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.statusOf[listing(1).Slug()] = 404
	idx := NewIndex(client, "false", 10)

	idx.AddDeleteRequest(testListingIndex, listing(1), ListingRemove)

	_, err := idx.Persist(context.Background())
	require.NoError(t, err)
}

func TestPersistReportsFailedItems(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.statusOf[listing(2).Slug()] = 400
	idx := NewIndex(client, "false", 10)

	idx.AddIndexRequest(testListingIndex, listing(1), ListingCreate)
	idx.AddIndexRequest(testListingIndex, listing(2), ListingCreate)

	persisted, err := idx.Persist(context.Background())
	require.ErrorIs(t, err, ErrPersistFailed)
	require.Equal(t, 1, persisted)
}

func TestBatchPersistWaitsForEnoughRequests(t *testing.T) {
	cluster, client := newFakeCluster(t)
	idx := NewIndex(client, "false", 10)

	idx.AddIndexRequest(testListingIndex, listing(1), ListingCreate)

	persisted, err := idx.BatchPersist(context.Background())
	require.NoError(t, err)
	require.False(t, persisted)
	require.Len(t, idx.GetRequests(), 1)

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	require.Zero(t, cluster.requests)
}
