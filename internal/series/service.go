package series

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/cache"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/forum"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/internal/storage"
	"github.com/toonranks/toonranks/pkg/logging"
	"github.com/toonranks/toonranks/pkg/telemetry"
)

const (
	rankingCachePrefix     = "series:rankings:"
	defaultRankingPageSize = 12
	maxRankingPageSize     = 50
	minScore               = 1
	maxScore               = 10
)

// Service manages series and their ratings
type Service struct {
	repo   *db.Repository
	series *db.SeriesRepository
	votes  *db.VoteRepository
	store  storage.ObjectStore
	cache  *cache.Cache
	logger *zap.Logger
}

// NewService creates the series service. c may be nil.
func NewService(repo *db.Repository, store storage.ObjectStore, c *cache.Cache) *Service {
	return &Service{
		repo:   repo,
		series: db.NewSeriesRepository(repo),
		votes:  db.NewVoteRepository(repo),
		store:  store,
		cache:  c,
		logger: logging.WithComponent("series"),
	}
}

func (s *Service) get(ctx context.Context, id int64) (*models.Series, error) {
	series, err := s.series.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}
	if series == nil {
		return nil, apperr.NotFound("Series not found")
	}
	return series, nil
}

// invalidate drops cached rankings and forum series searches
func (s *Service) invalidate(ctx context.Context) {
	for _, prefix := range []string{rankingCachePrefix, forum.SeriesSearchCachePrefix} {
		if err := s.cache.DeletePrefix(ctx, prefix); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Warn("Failed to invalidate cache", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

// List returns every series ordered by title
func (s *Service) List(ctx context.Context) ([]SeriesOut, error) {
	series, err := s.series.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	out := make([]SeriesOut, 0, len(series))
	for _, item := range series {
		out = append(out, toOut(item))
	}
	return out, nil
}

// ranking computes the full ranking for a type filter, using the cache when enabled
func (s *Service) ranking(ctx context.Context, seriesType models.SeriesType) ([]RankedSeries, error) {
	key := rankingCachePrefix + strings.ToLower(string(seriesType))
	var cached []RankedSeries
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	}

	series, err := s.series.List(ctx, seriesType)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	ids := make([]int64, 0, len(series))
	for _, item := range series {
		ids = append(ids, item.ID)
	}
	details, err := s.series.Details(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load series details: %w", err)
	}
	result := rank(series, details)

	if err := s.cache.SetJSON(ctx, key, result, 0); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Failed to cache rankings", zap.Error(err))
	}
	return result, nil
}

// Rankings returns one page of the ranking, optionally restricted to a type
func (s *Service) Rankings(ctx context.Context, typeFilter string, page, pageSize int) ([]RankedSeries, error) {
	ctx, span := telemetry.StartSpan(ctx, "series.Rankings")
	defer span.End()

	var seriesType models.SeriesType
	if strings.TrimSpace(typeFilter) != "" {
		t, ok := models.ParseSeriesType(typeFilter)
		if !ok {
			return nil, apperr.ValidationField("type", "Unknown series type")
		}
		seriesType = t
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultRankingPageSize
	}
	if pageSize > maxRankingPageSize {
		return nil, apperr.ValidationField("page_size", fmt.Sprintf("page_size must be at most %d", maxRankingPageSize))
	}

	all, err := s.ranking(ctx, seriesType)
	if err != nil {
		return nil, err
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []RankedSeries{}, nil
	}
	return all[start:min(start+pageSize, len(all))], nil
}

// Summary returns one series with its overall rank
func (s *Service) Summary(ctx context.Context, id int64) (*RankedSeries, error) {
	all, err := s.ranking(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, apperr.NotFound("Series not found")
}

// Search matches series by any descriptive field; results are ranked among themselves
func (s *Service) Search(ctx context.Context, query string) ([]RankedSeries, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.ValidationField("query", "Query must not be empty")
	}
	series, err := s.series.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search series: %w", err)
	}
	ids := make([]int64, 0, len(series))
	for _, item := range series {
		ids = append(ids, item.ID)
	}
	details, err := s.series.Details(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load series details: %w", err)
	}
	return rank(series, details), nil
}

// Detail returns the synopsis and aggregates of a series. Votes of the viewer
// are included when viewer is not nil.
func (s *Service) Detail(ctx context.Context, viewer *models.User, id int64) (*DetailOut, error) {
	series, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	detail, err := s.series.Detail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load series detail: %w", err)
	}
	if detail == nil {
		detail = &models.SeriesDetail{SeriesID: id}
	}

	out := &DetailOut{
		SeriesID:           id,
		Synopsis:           detail.Synopsis,
		Author:             series.Author,
		Artist:             series.Artist,
		StoryTotal:         detail.StoryTotal,
		StoryCount:         detail.StoryCount,
		CharactersTotal:    detail.CharactersTotal,
		CharactersCount:    detail.CharactersCount,
		WorldbuildingTotal: detail.WorldbuildingTotal,
		WorldbuildingCount: detail.WorldbuildingCount,
		ArtTotal:           detail.ArtTotal,
		ArtCount:           detail.ArtCount,
		DramaOrFightTotal:  detail.DramaOrFightTotal,
		DramaOrFightCount:  detail.DramaOrFightCount,
		Averages:           make(map[string]float64, len(models.VoteCategories)),
		VoteScores:         map[string]int{},
		VoteCounts:         map[string]int64{},
	}
	for _, c := range models.VoteCategories {
		out.Averages[string(c)] = detail.Average(c)
	}

	if viewer != nil {
		votes, err := s.votes.ByUserSeries(ctx, viewer.ID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load votes: %w", err)
		}
		for _, v := range votes {
			out.VoteScores[string(v.Category)] = v.Score
		}
	}

	counts, err := s.votes.CategoryCounts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	for c, n := range counts {
		out.VoteCounts[string(c)] = n
	}
	return out, nil
}

// Vote records the actor's score for one category. Each category can be
// voted once per user; the first vote on a series bumps its voter count.
func (s *Service) Vote(ctx context.Context, actor *models.User, id int64, category string, score int) (*DetailOut, error) {
	ctx, span := telemetry.StartSpan(ctx, "series.Vote")
	defer span.End()

	cat := models.VoteCategory(category)
	if _, _, ok := cat.Columns(); !ok || score < minScore || score > maxScore {
		return nil, apperr.Validation("Invalid vote")
	}
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}

	err := s.repo.Transaction(ctx, func(tx *db.Repository) error {
		votes := db.NewVoteRepository(tx)
		series := db.NewSeriesRepository(tx)

		exists, err := votes.Exists(ctx, actor.ID, id, cat)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Forbidden("You already voted on this category")
		}
		prior, err := votes.CountByUserSeries(ctx, actor.ID, id)
		if err != nil {
			return err
		}

		if err := series.AddScore(ctx, id, cat, score); err != nil {
			return fmt.Errorf("add score: %w", err)
		}
		if prior == 0 {
			if err := series.IncrementVoteCount(ctx, id); err != nil {
				return fmt.Errorf("increment vote count: %w", err)
			}
		}
		err = votes.Create(ctx, &models.UserVote{
			UserID:    actor.ID,
			SeriesID:  id,
			Category:  cat,
			Score:     score,
			CreatedAt: time.Now().UTC(),
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Forbidden("You already voted on this category")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return s.Detail(ctx, actor, id)
}

func requireAdmin(actor *models.User) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}

// Create adds a series and uploads its cover
func (s *Service) Create(ctx context.Context, actor *models.User, in CreateInput, cover *Cover) (*SeriesOut, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.ValidationField("title", "Title is required")
	}
	seriesType, ok := models.ParseSeriesType(in.Type)
	if !ok {
		return nil, apperr.ValidationField("type", "Type must be MANGA, MANHWA or MANHUA")
	}
	status, ok := models.ParseSeriesStatus(in.Status)
	if !ok {
		return nil, apperr.ValidationField("status", "Unknown status")
	}
	if cover == nil || len(cover.Data) == 0 {
		return nil, apperr.ValidationField("cover", "Cover image is required")
	}
	if existing, err := s.series.GetByTitle(ctx, title); err != nil {
		return nil, fmt.Errorf("failed to check title: %w", err)
	} else if existing != nil {
		return nil, apperr.Conflict("A series with this title already exists")
	}

	key := storage.NewKey("series", title, cover.Filename)
	url, err := s.store.Put(ctx, key, bytes.NewReader(cover.Data), int64(len(cover.Data)), cover.ContentType)
	if err != nil {
		return nil, apperr.Upstream("Failed to store cover image", err)
	}

	series := &models.Series{
		Title:     title,
		Genre:     strings.TrimSpace(in.Genre),
		Type:      seriesType,
		Status:    status,
		Author:    strings.TrimSpace(in.Author),
		Artist:    strings.TrimSpace(in.Artist),
		CoverURL:  url,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.series.Create(ctx, series); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned cover", zap.String("key", key), zap.Error(delErr))
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("A series with this title already exists")
		}
		return nil, fmt.Errorf("failed to create series: %w", err)
	}

	s.invalidate(ctx)
	s.logger.Info("Series created", zap.Int64("series_id", series.ID), zap.String("title", title))
	out := toOut(*series)
	return &out, nil
}

// Update changes the descriptive fields of a series
func (s *Service) Update(ctx context.Context, actor *models.User, id int64, in UpdateInput) (*SeriesOut, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	series, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperr.ValidationField("title", "Title is required")
		}
		series.Title = title
	}
	if in.Type != nil {
		t, ok := models.ParseSeriesType(*in.Type)
		if !ok {
			return nil, apperr.ValidationField("type", "Type must be MANGA, MANHWA or MANHUA")
		}
		series.Type = t
	}
	if in.Status != nil {
		st, ok := models.ParseSeriesStatus(*in.Status)
		if !ok {
			return nil, apperr.ValidationField("status", "Unknown status")
		}
		series.Status = st
	}
	if in.Genre != nil {
		series.Genre = strings.TrimSpace(*in.Genre)
	}
	if in.Author != nil {
		series.Author = strings.TrimSpace(*in.Author)
	}
	if in.Artist != nil {
		series.Artist = strings.TrimSpace(*in.Artist)
	}

	if err := s.series.Save(ctx, series); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("A series with this title already exists")
		}
		return nil, fmt.Errorf("failed to update series: %w", err)
	}
	s.invalidate(ctx)
	out := toOut(*series)
	return &out, nil
}

// SetSynopsis creates or replaces the synopsis of a series
func (s *Service) SetSynopsis(ctx context.Context, actor *models.User, id int64, synopsis string) (*DetailOut, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.series.UpsertSynopsis(ctx, id, strings.TrimSpace(synopsis)); err != nil {
		return nil, fmt.Errorf("failed to save synopsis: %w", err)
	}
	return s.Detail(ctx, actor, id)
}

// Delete removes a series and everything attached to it, then its cover
func (s *Service) Delete(ctx context.Context, actor *models.User, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	series, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		return db.NewSeriesRepository(tx).Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}

	if key, ok := s.store.KeyFromURL(series.CoverURL); ok {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to delete cover", zap.String("key", key), zap.Error(err))
		}
	}
	s.invalidate(ctx)
	s.logger.Info("Series deleted", zap.Int64("series_id", id))
	return nil
}
