package elastic_search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/aws/aws-sdk-go/aws/credentials"
	v4 "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/olivere/elastic/v7"
	"github.com/patrickmn/go-cache"
	"github.com/sha1sum/aws_signing_client"
	"go.uber.org/zap"
)

var (
	ErrPersistFailed = errors.New("failed to persist requests")
)

type Index interface {
	GetClient() *elastic.Client

	InstallMappings(ctx context.Context, mappingDir string, reindex bool) error

	AddIndexRequest(index string, entity entity.Entity, reqAction RequestAction)
	AddDeleteRequest(index string, entity entity.Entity, reqAction RequestAction)
	HasRequest(entity entity.Entity) bool
	GetRequests() []Request
	GetRequest(id string) *Request
	ClearRequests()

	BatchPersist(ctx context.Context) (bool, error)
	Persist(ctx context.Context) (int, error)

	DeleteIndexContents(ctx context.Context, index string) error
}

type index struct {
	client      *elastic.Client
	cache       *cache.Cache
	refresh     string
	bulkCount   int
	batchLength int
}

type Request struct {
	Index  string
	Entity entity.Entity
	Type   RequestType
	Action RequestAction
}

type RequestType string

const (
	IndexRequest  RequestType = "index"
	DeleteRequest RequestType = "delete"
)

type RequestAction string

const (
	ListingCreate RequestAction = "ListingCreate"
	ListingUpdate RequestAction = "ListingUpdate"
	ListingRemove RequestAction = "ListingRemove"
	ActionCreate  RequestAction = "ActionCreate"
	ListingImport RequestAction = "ListingImport"
)

const (
	batchPersistLength = 250
	tooManyRequests    = 429
)

func New(cfg config.ElasticSearchConfig, aws config.AwsConfig) (Index, error) {
	client, err := newClient(cfg, aws)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("ElasticSearch: Failed to create client")
		return nil, err
	}

	return NewIndex(client, cfg.Refresh, cfg.BulkPersistCount), nil
}

// NewIndex queues requests for client. Requests for the same document
// replace each other until they are persisted.
func NewIndex(client *elastic.Client, refresh string, bulkCount int) Index {
	if bulkCount <= 0 {
		bulkCount = 300
	}

	return index{
		client:      client,
		cache:       cache.New(cache.NoExpiration, 10*time.Minute),
		refresh:     refresh,
		bulkCount:   bulkCount,
		batchLength: batchPersistLength,
	}
}

func newClient(cfg config.ElasticSearchConfig, aws config.AwsConfig) (*elastic.Client, error) {
	opts := []elastic.ClientOptionFunc{
		elastic.SetURL(strings.Join(cfg.Hosts, ",")),
		elastic.SetSniff(cfg.Sniff),
		elastic.SetHealthcheck(cfg.HealthCheck),
	}

	if cfg.Debug {
		opts = append(opts, elastic.SetTraceLog(ElasticLogger{}))
	}

	if cfg.Aws {
		creds := credentials.NewStaticCredentials(aws.AccessKey, aws.SecretKey, aws.Token)
		awsClient, err := aws_signing_client.New(v4.NewSigner(creds), nil, "es", aws.Region)
		if err != nil {
			return nil, err
		}

		opts = append(opts, elastic.SetHttpClient(awsClient))
		opts = append(opts, elastic.SetScheme("https"))
		return elastic.NewClient(opts...)
	}

	if cfg.Username != "" {
		opts = append(opts, elastic.SetBasicAuth(cfg.Username, cfg.Password))
	}

	return elastic.NewClient(opts...)
}

func (i index) GetClient() *elastic.Client {
	return i.client
}

// InstallMappings creates one index per json file in mappingDir, named after
// the file. Existing indices are dropped first when reindex is set.
func (i index) InstallMappings(ctx context.Context, mappingDir string, reindex bool) error {
	zap.L().With(zap.String("dir", mappingDir)).Info("ElasticSearch: Install Mappings")

	files, err := os.ReadDir(mappingDir)
	if err != nil {
		return err
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}

		b, err := os.ReadFile(filepath.Join(mappingDir, f.Name()))
		if err != nil {
			return fmt.Errorf("mapping %s: %w", f.Name(), err)
		}

		name := Indices(strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())))
		if err = i.createIndex(ctx, name.Get(), b, reindex); err != nil {
			return fmt.Errorf("index %s: %w", name.Get(), err)
		}
	}

	return nil
}

func (i index) createIndex(ctx context.Context, index string, mapping []byte, reindex bool) error {
	exists, err := i.client.IndexExists(index).Do(ctx)
	if err != nil {
		return err
	}

	if exists && reindex {
		zap.S().Infof("ElasticSearch: Deleting index %s", index)
		if _, err = i.client.DeleteIndex(index).Do(ctx); err != nil {
			return err
		}
		exists = false
	}

	if !exists {
		createIndex, err := i.client.CreateIndex(index).BodyString(string(mapping)).Do(ctx)
		if err != nil {
			return err
		}

		if createIndex.Acknowledged {
			zap.S().Infof("ElasticSearch: Created index %s", index)
		}
	}

	return nil
}

func (i index) AddIndexRequest(index string, entity entity.Entity, reqAction RequestAction) {
	zap.L().With(
		zap.String("index", index),
		zap.String("slug", entity.Slug()),
		zap.String("action", string(reqAction)),
	).Debug("ElasticSearch: AddIndexRequest")

	i.addRequest(index, entity, IndexRequest, reqAction)
}

func (i index) AddDeleteRequest(index string, entity entity.Entity, reqAction RequestAction) {
	zap.L().With(
		zap.String("index", index),
		zap.String("slug", entity.Slug()),
		zap.String("action", string(reqAction)),
	).Debug("ElasticSearch: AddDeleteRequest")

	i.addRequest(index, entity, DeleteRequest, reqAction)
}

func (i index) HasRequest(entity entity.Entity) bool {
	_, found := i.cache.Get(entity.Slug())

	return found
}

func (i index) addRequest(index string, entity entity.Entity, reqType RequestType, reqAction RequestAction) {
	i.cache.Set(entity.Slug(), Request{index, entity, reqType, reqAction}, cache.NoExpiration)
}

func (i index) GetRequests() []Request {
	requests := make([]Request, 0)

	for _, item := range i.cache.Items() {
		requests = append(requests, item.Object.(Request))
	}

	return requests
}

func (i index) GetRequest(id string) *Request {
	if item, found := i.cache.Get(id); found {
		req := item.(Request)
		return &req
	}
	return nil
}

func (i index) ClearRequests() {
	i.cache.Flush()
}

// BatchPersist only persists once enough requests have queued up.
func (i index) BatchPersist(ctx context.Context) (bool, error) {
	actions := i.cache.ItemCount()
	if actions < i.batchLength {
		return false, nil
	}

	start := time.Now()
	if _, err := i.Persist(ctx); err != nil {
		return false, err
	}

	zap.L().With(
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("actions", actions),
	).Info("ElasticSearch: Persisting data")

	return true, nil
}

func (i index) Persist(ctx context.Context) (int, error) {
	requests := i.GetRequests()
	persisted := 0

	bulk := i.client.Bulk()
	for _, r := range requests {
		switch r.Type {
		case IndexRequest:
			bulk.Add(elastic.NewBulkIndexRequest().Index(r.Index).Id(r.Entity.Slug()).Doc(r.Entity))
		case DeleteRequest:
			bulk.Add(elastic.NewBulkDeleteRequest().Index(r.Index).Id(r.Entity.Slug()))
		}

		if bulk.NumberOfActions() >= i.bulkCount {
			n, err := i.persist(ctx, bulk, 1)
			persisted += n
			if err != nil {
				return persisted, err
			}
			bulk = i.client.Bulk()
		}
	}

	if bulk.NumberOfActions() != 0 {
		n, err := i.persist(ctx, bulk, 1)
		persisted += n
		if err != nil {
			return persisted, err
		}
	}

	for _, r := range requests {
		i.cache.Delete(r.Entity.Slug())
	}

	return persisted, nil
}

const persistAttempts = 3

func (i index) persist(ctx context.Context, bulk *elastic.BulkService, attempt int) (int, error) {
	actions := bulk.NumberOfActions()
	zap.S().Debugf("ElasticSearch: Persisting %d actions", actions)

	response, err := bulk.Refresh(i.refresh).Do(ctx)
	if err != nil {
		if attempt >= persistAttempts {
			zap.L().With(zap.Error(err)).Error("ElasticSearch: Failed to persist requests")
			return 0, fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}

		wait := time.Second
		if elastic.IsStatusCode(err, tooManyRequests) {
			zap.L().With(zap.Error(err)).Warn("ElasticSearch: 429 (Too Many Requests)")
			wait = 5 * time.Second
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(wait):
		}
		return i.persist(ctx, bulk, attempt+1)
	}

	failed := 0
	for _, item := range response.Failed() {
		// deleting a document that was never indexed is not a failure
		if item.Status == 404 {
			continue
		}
		failed++
		zap.L().With(
			zap.Any("error", item.Error),
			zap.String("index", item.Index),
			zap.String("id", item.Id),
		).Error("ElasticSearch: Failed to persist request")
	}
	if failed != 0 {
		return actions - failed, fmt.Errorf("%w: %d of %d", ErrPersistFailed, failed, actions)
	}

	return actions, nil
}

// DeleteIndexContents removes every document from index.
func (i index) DeleteIndexContents(ctx context.Context, index string) error {
	_, err := i.client.DeleteByQuery(index).
		Query(elastic.NewMatchAllQuery()).
		Refresh("true").
		Do(ctx)
	if err != nil {
		return err
	}

	zap.S().Infof("ElasticSearch: Deleted contents of %s", index)

	return nil
}
