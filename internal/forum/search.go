package forum

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/cache"
)

// SeriesSearchCachePrefix namespaces cached series search results
const SeriesSearchCachePrefix = "forum:series-search:"

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// SearchSeries finds series to attach to threads and posts by title
func (s *Service) SearchSeries(ctx context.Context, query string, limit int) ([]SeriesRefOut, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.ValidationField("q", "Query must not be empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	key := SeriesSearchCachePrefix + cache.HashKey(strings.ToLower(query), strconv.Itoa(limit))
	var cached []SeriesRefOut
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	}

	series, err := s.series.SearchTitles(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search series: %w", err)
	}
	result := make([]SeriesRefOut, 0, len(series))
	for _, item := range series {
		result = append(result, seriesRef(item))
	}

	if err := s.cache.SetJSON(ctx, key, result, 0); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Failed to cache series search", zap.Error(err))
	}
	return result, nil
}
