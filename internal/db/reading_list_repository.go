package db

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/toonranks/toonranks/internal/models"
)

// ReadingListRepository provides reading list operations
type ReadingListRepository struct {
	*Repository
}

// NewReadingListRepository creates a new reading list repository
func NewReadingListRepository(repo *Repository) *ReadingListRepository {
	return &ReadingListRepository{Repository: repo}
}

// ListByUser returns a user's lists, oldest first
func (r *ReadingListRepository) ListByUser(ctx context.Context, userID int64) ([]models.ReadingList, error) {
	var lists []models.ReadingList
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").Order("id ASC").
		Find(&lists).Error
	return lists, err
}

// GetOwned returns the list only when it belongs to userID
func (r *ReadingListRepository) GetOwned(ctx context.Context, id, userID int64) (*models.ReadingList, error) {
	var list models.ReadingList
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&list).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &list, nil
}

// CountByUser counts a user's lists
func (r *ReadingListRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReadingList{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// NameTaken reports whether the user already has a list with this name
func (r *ReadingListRepository) NameTaken(ctx context.Context, userID int64, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReadingList{}).
		Where("user_id = ? AND name = ?", userID, name).
		Count(&count).Error
	return count > 0, err
}

// Create creates a list
func (r *ReadingListRepository) Create(ctx context.Context, list *models.ReadingList) error {
	return r.db.WithContext(ctx).Create(list).Error
}

// Delete removes a list and its items
func (r *ReadingListRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Where("list_id = ?", id).Delete(&models.ReadingListItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&models.ReadingList{}, id).Error
}

// Items returns the items of the given lists
func (r *ReadingListRepository) Items(ctx context.Context, listIDs []int64) ([]models.ReadingListItem, error) {
	if len(listIDs) == 0 {
		return nil, nil
	}
	var items []models.ReadingListItem
	err := r.db.WithContext(ctx).
		Where("list_id IN ?", listIDs).
		Order("created_at ASC").Order("id ASC").
		Find(&items).Error
	return items, err
}

// AddItem adds a series to a list; adding an existing series is a no-op
func (r *ReadingListRepository) AddItem(ctx context.Context, listID, seriesID int64) error {
	item := models.ReadingListItem{ListID: listID, SeriesID: seriesID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&item).Error
}

// RemoveItem removes a series from a list and reports whether it was present
func (r *ReadingListRepository) RemoveItem(ctx context.Context, listID, seriesID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("list_id = ? AND series_id = ?", listID, seriesID).
		Delete(&models.ReadingListItem{})
	return res.RowsAffected > 0, res.Error
}
