// Package readinglist manages the named series collections owned by users.
package readinglist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/pkg/logging"
	"github.com/toonranks/toonranks/pkg/telemetry"
)

const maxNameLength = 50

// ItemOut is one series in a list
type ItemOut struct {
	SeriesID int64  `json:"series_id"`
	Title    string `json:"title,omitempty"`
	CoverURL string `json:"cover_url,omitempty"`
}

// ListOut is the public view of a reading list
type ListOut struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Items     []ItemOut `json:"items"`
}

// Service manages reading lists
type Service struct {
	repo     *db.Repository
	lists    *db.ReadingListRepository
	series   *db.SeriesRepository
	maxLists int
	logger   *zap.Logger
}

// NewService creates the reading list service; maxLists caps lists per user
func NewService(repo *db.Repository, maxLists int) *Service {
	return &Service{
		repo:     repo,
		lists:    db.NewReadingListRepository(repo),
		series:   db.NewSeriesRepository(repo),
		maxLists: maxLists,
		logger:   logging.WithComponent("readinglist"),
	}
}

// Mine returns the actor's lists with their items
func (s *Service) Mine(ctx context.Context, actor *models.User) ([]ListOut, error) {
	lists, err := s.lists.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reading lists: %w", err)
	}
	return s.load(ctx, lists)
}

// Create adds a list for the actor
func (s *Service) Create(ctx context.Context, actor *models.User, name string) (*ListOut, error) {
	ctx, span := telemetry.StartSpan(ctx, "readinglist.Create")
	defer span.End()

	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return nil, apperr.ValidationField("name", fmt.Sprintf("Name must be between 1 and %d characters", maxNameLength))
	}

	list := &models.ReadingList{UserID: actor.ID, Name: name, CreatedAt: time.Now().UTC()}
	err := s.repo.Transaction(ctx, func(tx *db.Repository) error {
		lists := db.NewReadingListRepository(tx)
		count, err := lists.CountByUser(ctx, actor.ID)
		if err != nil {
			return err
		}
		if count >= int64(s.maxLists) {
			return apperr.QuotaExceeded(fmt.Sprintf("You can only create up to %d lists.", s.maxLists))
		}
		taken, err := lists.NameTaken(ctx, actor.ID, name)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("You already have a list with that name.")
		}
		if err := lists.Create(ctx, list); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("You already have a list with that name.")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reading list created", zap.Int64("user_id", actor.ID), zap.Int64("list_id", list.ID))
	return &ListOut{ID: list.ID, Name: list.Name, CreatedAt: list.CreatedAt, Items: []ItemOut{}}, nil
}

func (s *Service) owned(ctx context.Context, actor *models.User, listID int64) (*models.ReadingList, error) {
	list, err := s.lists.GetOwned(ctx, listID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reading list: %w", err)
	}
	if list == nil {
		return nil, apperr.NotFound("List not found.")
	}
	return list, nil
}

func (s *Service) one(ctx context.Context, list *models.ReadingList) (*ListOut, error) {
	out, err := s.load(ctx, []models.ReadingList{*list})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// AddItem puts a series into one of the actor's lists. Adding a series twice is a no-op.
func (s *Service) AddItem(ctx context.Context, actor *models.User, listID, seriesID int64) (*ListOut, error) {
	list, err := s.owned(ctx, actor, listID)
	if err != nil {
		return nil, err
	}
	series, err := s.series.GetByID(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}
	if series == nil {
		return nil, apperr.NotFound("Series not found.")
	}
	if err := s.lists.AddItem(ctx, list.ID, seriesID); err != nil {
		return nil, fmt.Errorf("failed to add item: %w", err)
	}
	return s.one(ctx, list)
}

// RemoveItem takes a series out of one of the actor's lists
func (s *Service) RemoveItem(ctx context.Context, actor *models.User, listID, seriesID int64) (*ListOut, error) {
	list, err := s.owned(ctx, actor, listID)
	if err != nil {
		return nil, err
	}
	removed, err := s.lists.RemoveItem(ctx, list.ID, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove item: %w", err)
	}
	if !removed {
		return nil, apperr.NotFound("Series not found in this list.")
	}
	return s.one(ctx, list)
}

// Delete removes one of the actor's lists with its items
func (s *Service) Delete(ctx context.Context, actor *models.User, listID int64) error {
	list, err := s.owned(ctx, actor, listID)
	if err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tx *db.Repository) error {
		return db.NewReadingListRepository(tx).Delete(ctx, list.ID)
	})
}

// load attaches items and their series to lists with two queries
func (s *Service) load(ctx context.Context, lists []models.ReadingList) ([]ListOut, error) {
	ids := make([]int64, 0, len(lists))
	for _, l := range lists {
		ids = append(ids, l.ID)
	}
	items, err := s.lists.Items(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load reading list items: %w", err)
	}
	seriesIDs := make([]int64, 0, len(items))
	for _, it := range items {
		seriesIDs = append(seriesIDs, it.SeriesID)
	}
	series, err := s.series.ByIDs(ctx, seriesIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}

	byList := make(map[int64][]ItemOut, len(lists))
	for _, it := range items {
		item := ItemOut{SeriesID: it.SeriesID}
		if sr, ok := series[it.SeriesID]; ok {
			item.Title = sr.Title
			item.CoverURL = sr.CoverURL
		}
		byList[it.ListID] = append(byList[it.ListID], item)
	}

	out := make([]ListOut, 0, len(lists))
	for _, l := range lists {
		listItems := byList[l.ID]
		if listItems == nil {
			listItems = []ItemOut{}
		}
		out = append(out, ListOut{ID: l.ID, Name: l.Name, CreatedAt: l.CreatedAt, Items: listItems})
	}
	return out, nil
}
