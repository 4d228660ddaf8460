package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/toonranks/toonranks/internal/models"
)

// SeriesRepository provides series-related database operations
type SeriesRepository struct {
	*Repository
}

// NewSeriesRepository creates a new series repository
func NewSeriesRepository(repo *Repository) *SeriesRepository {
	return &SeriesRepository{Repository: repo}
}

// GetByID retrieves a series by ID
func (r *SeriesRepository) GetByID(ctx context.Context, id int64) (*models.Series, error) {
	var series models.Series
	if err := r.db.WithContext(ctx).First(&series, id).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &series, nil
}

// GetByTitle retrieves a series by exact title
func (r *SeriesRepository) GetByTitle(ctx context.Context, title string) (*models.Series, error) {
	var series models.Series
	if err := r.db.WithContext(ctx).Where("title = ?", title).First(&series).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &series, nil
}

// List returns all series, optionally restricted to one type
func (r *SeriesRepository) List(ctx context.Context, seriesType models.SeriesType) ([]models.Series, error) {
	var series []models.Series
	q := r.db.WithContext(ctx).Order("title ASC")
	if seriesType != "" {
		q = q.Where("type = ?", seriesType)
	}
	err := q.Find(&series).Error
	return series, err
}

// ByIDs loads series keyed by id
func (r *SeriesRepository) ByIDs(ctx context.Context, ids []int64) (map[int64]models.Series, error) {
	result := make(map[int64]models.Series, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var series []models.Series
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&series).Error; err != nil {
		return nil, err
	}
	for _, s := range series {
		result[s.ID] = s
	}
	return result, nil
}

// SearchTitles matches titles case-insensitively
func (r *SeriesRepository) SearchTitles(ctx context.Context, query string, limit int) ([]models.Series, error) {
	var series []models.Series
	err := r.db.WithContext(ctx).
		Where(sprintfLike("title"), likePattern(query)).
		Order("title ASC").
		Limit(limit).
		Find(&series).Error
	return series, err
}

// Search matches the query against every descriptive column
func (r *SeriesRepository) Search(ctx context.Context, query string) ([]models.Series, error) {
	pattern := likePattern(query)
	cond := r.db.Where(sprintfLike("title"), pattern)
	for _, col := range []string{"genre", "type", "author", "artist", "status"} {
		cond = cond.Or(sprintfLike(col), pattern)
	}
	var series []models.Series
	err := r.db.WithContext(ctx).Where(cond).Order("title ASC").Find(&series).Error
	return series, err
}

// Create creates a new series
func (r *SeriesRepository) Create(ctx context.Context, series *models.Series) error {
	return r.db.WithContext(ctx).Create(series).Error
}

// Save writes every column of an existing series
func (r *SeriesRepository) Save(ctx context.Context, series *models.Series) error {
	return r.db.WithContext(ctx).Save(series).Error
}

// Delete removes a series together with its detail and votes
func (r *SeriesRepository) Delete(ctx context.Context, id int64) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("series_id = ?", id).Delete(&models.UserVote{}).Error; err != nil {
		return err
	}
	if err := db.Where("series_id = ?", id).Delete(&models.SeriesDetail{}).Error; err != nil {
		return err
	}
	if err := db.Where("series_id = ?", id).Delete(&models.ReadingListItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("series_id = ?", id).Delete(&models.SeriesRef{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Series{}, id).Error
}

// IncrementVoteCount bumps the number of distinct voters
func (r *SeriesRepository) IncrementVoteCount(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&models.Series{}).
		Where("id = ?", id).
		UpdateColumn("vote_count", gorm.Expr("vote_count + 1")).Error
}

// Detail returns the detail row of a series, or nil
func (r *SeriesRepository) Detail(ctx context.Context, seriesID int64) (*models.SeriesDetail, error) {
	var detail models.SeriesDetail
	if err := r.db.WithContext(ctx).Where("series_id = ?", seriesID).First(&detail).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &detail, nil
}

// Details returns detail rows keyed by series id
func (r *SeriesRepository) Details(ctx context.Context, seriesIDs []int64) (map[int64]models.SeriesDetail, error) {
	result := make(map[int64]models.SeriesDetail, len(seriesIDs))
	if len(seriesIDs) == 0 {
		return result, nil
	}
	var details []models.SeriesDetail
	if err := r.db.WithContext(ctx).Where("series_id IN ?", seriesIDs).Find(&details).Error; err != nil {
		return nil, err
	}
	for _, d := range details {
		result[d.SeriesID] = d
	}
	return result, nil
}

// UpsertSynopsis creates the detail row if needed and sets its synopsis
func (r *SeriesRepository) UpsertSynopsis(ctx context.Context, seriesID int64, synopsis string) error {
	detail := models.SeriesDetail{SeriesID: seriesID, Synopsis: synopsis}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "series_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"synopsis"}),
	}).Create(&detail).Error
}

// AddScore adds one score to the aggregates of a category
func (r *SeriesRepository) AddScore(ctx context.Context, seriesID int64, category models.VoteCategory, score int) error {
	totalCol, countCol, ok := category.Columns()
	if !ok {
		return gorm.ErrInvalidField
	}
	detail := models.SeriesDetail{SeriesID: seriesID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&detail).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.SeriesDetail{}).
		Where("series_id = ?", seriesID).
		UpdateColumns(map[string]interface{}{
			totalCol: gorm.Expr(totalCol+" + ?", score),
			countCol: gorm.Expr(countCol + " + 1"),
		}).Error
}

// VoteRepository provides user vote operations
type VoteRepository struct {
	*Repository
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(repo *Repository) *VoteRepository {
	return &VoteRepository{Repository: repo}
}

// Exists reports whether the user already voted this category of the series
func (r *VoteRepository) Exists(ctx context.Context, userID, seriesID int64, category models.VoteCategory) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserVote{}).
		Where("user_id = ? AND series_id = ? AND category = ?", userID, seriesID, category).
		Count(&count).Error
	return count > 0, err
}

// CountByUserSeries counts the categories a user has voted on for a series
func (r *VoteRepository) CountByUserSeries(ctx context.Context, userID, seriesID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserVote{}).
		Where("user_id = ? AND series_id = ?", userID, seriesID).
		Count(&count).Error
	return count, err
}

// Create records a vote
func (r *VoteRepository) Create(ctx context.Context, vote *models.UserVote) error {
	return r.db.WithContext(ctx).Create(vote).Error
}

// ByUserSeries returns a user's votes on a series
func (r *VoteRepository) ByUserSeries(ctx context.Context, userID, seriesID int64) ([]models.UserVote, error) {
	var votes []models.UserVote
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND series_id = ?", userID, seriesID).
		Find(&votes).Error
	return votes, err
}

// CategoryCounts returns the number of voters per category of a series
func (r *VoteRepository) CategoryCounts(ctx context.Context, seriesID int64) (map[models.VoteCategory]int64, error) {
	var rows []struct {
		Category models.VoteCategory
		Total    int64
	}
	if err := r.db.WithContext(ctx).Model(&models.UserVote{}).
		Select("category, COUNT(DISTINCT user_id) AS total").
		Where("series_id = ?", seriesID).
		Group("category").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[models.VoteCategory]int64, len(models.VoteCategories))
	for _, c := range models.VoteCategories {
		result[c] = 0
	}
	for _, row := range rows {
		result[row.Category] = row.Total
	}
	return result, nil
}
