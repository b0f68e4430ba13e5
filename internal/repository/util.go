package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/olivere/elastic/v7"
	"go.uber.org/zap"
)

const (
	tooManyRequests = 429
	maxPageSize     = 100

	// maxResultWindow is the default index.max_result_window. Elasticsearch
	// refuses searches where from+size goes past it.
	maxResultWindow = 10000
)

func search(ctx context.Context, searchService *elastic.SearchService) (*elastic.SearchResult, error) {
	result, err := searchService.Do(ctx)
	if err != nil && elastic.IsStatusCode(err, tooManyRequests) {
		zap.L().Warn("Elastic: 429 (Too Many Requests)")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
		return search(ctx, searchService)
	}

	return result, err
}

// page turns a 1 based page number and size into a search offset. A page past
// the result window comes back with size 0 so the search only counts hits.
func page(size, page int) (int, int) {
	if size <= 0 || size > maxPageSize {
		size = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	if page-1 > (maxResultWindow-size)/size {
		return 0, 0
	}
	return size, (page - 1) * size
}

func decodeHits[T any](results *elastic.SearchResult) ([]T, int64, error) {
	items := make([]T, 0, len(results.Hits.Hits))
	for _, hit := range results.Hits.Hits {
		var item T
		if err := json.Unmarshal(hit.Source, &item); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}

	return items, results.TotalHits(), nil
}
