package db

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/toonranks/toonranks/internal/models"
)

// ThreadFilter narrows thread listings
type ThreadFilter struct {
	Query    string
	AuthorID *int64
}

// ThreadRepository provides thread-related database operations
type ThreadRepository struct {
	*Repository
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(repo *Repository) *ThreadRepository {
	return &ThreadRepository{Repository: repo}
}

// GetByID retrieves a thread by ID
func (r *ThreadRepository) GetByID(ctx context.Context, id int64) (*models.Thread, error) {
	var thread models.Thread
	if err := r.db.WithContext(ctx).First(&thread, id).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &thread, nil
}

// GetForUpdate retrieves a thread inside a transaction. On postgres the row
// stays locked until the transaction ends.
func (r *ThreadRepository) GetForUpdate(ctx context.Context, id int64) (*models.Thread, error) {
	var thread models.Thread
	if err := r.locking(ctx).First(&thread, id).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &thread, nil
}

// Create creates a new thread
func (r *ThreadRepository) Create(ctx context.Context, thread *models.Thread) error {
	return r.db.WithContext(ctx).Create(thread).Error
}

// CountByAuthor counts threads started by a user
func (r *ThreadRepository) CountByAuthor(ctx context.Context, authorID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("author_id = ?", authorID).
		Count(&count).Error
	return count, err
}

func (r *ThreadRepository) filtered(ctx context.Context, f ThreadFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Thread{})
	if f.Query != "" {
		q = q.Where(sprintfLike("title"), likePattern(f.Query))
	}
	if f.AuthorID != nil {
		q = q.Where("author_id = ?", *f.AuthorID)
	}
	return q
}

// List returns one page of threads, most recently active first, plus the total match count
func (r *ThreadRepository) List(ctx context.Context, f ThreadFilter, offset, limit int) ([]models.Thread, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var threads []models.Thread
	q := r.filtered(ctx, f).Order("last_post_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	if err := q.Find(&threads).Error; err != nil {
		return nil, 0, err
	}
	return threads, total, nil
}

// BumpOnReply increments post_count and advances last_post_at in a single
// statement. It returns gorm.ErrRecordNotFound when the thread is gone.
func (r *ThreadRepository) BumpOnReply(ctx context.Context, id int64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"post_count":   gorm.Expr("post_count + 1"),
			"last_post_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecomputeCounters rebuilds post_count and last_post_at from the posts table.
// last_post_at falls back to the thread creation time when no posts remain.
func (r *ThreadRepository) RecomputeCounters(ctx context.Context, id int64) error {
	var thread models.Thread
	if err := r.db.WithContext(ctx).Select("id", "created_at").First(&thread, id).Error; err != nil {
		return err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("thread_id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}

	lastPostAt := thread.CreatedAt
	var latest []models.Post
	if err := r.db.WithContext(ctx).
		Select("id", "created_at").
		Where("thread_id = ?", id).
		Order("created_at DESC").Order("id DESC").
		Limit(1).
		Find(&latest).Error; err != nil {
		return err
	}
	if len(latest) == 1 {
		lastPostAt = latest[0].CreatedAt
	}

	return r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"post_count":   count,
			"last_post_at": lastPostAt,
		}).Error
}

// Update applies column updates to a thread
func (r *ThreadRepository) Update(ctx context.Context, id int64, values map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", id).Updates(values).Error
}

// Delete removes a thread row
func (r *ThreadRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Thread{}, id).Error
}

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// GetByID retrieves a post by ID
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &post, nil
}

// GetForUpdate retrieves a post inside a transaction, locking the row on postgres
func (r *PostRepository) GetForUpdate(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.locking(ctx).First(&post, id).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &post, nil
}

// Create creates a new post
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// ListByThread returns every post of a thread in chronological order
func (r *PostRepository) ListByThread(ctx context.Context, threadID int64) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").Order("id ASC").
		Find(&posts).Error
	return posts, err
}

// Original returns the earliest post of a thread
func (r *PostRepository) Original(ctx context.Context, threadID int64) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").Order("id ASC").
		First(&post).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &post, nil
}

// roots selects the top-level replies of a thread: posts without a parent or
// answering the original post directly, never the original post itself.
func (r *PostRepository) roots(ctx context.Context, threadID, originalID int64) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Post{}).
		Where("thread_id = ? AND id <> ?", threadID, originalID).
		Where("parent_id IS NULL OR parent_id = ?", originalID)
}

// CountRoots counts top-level replies
func (r *PostRepository) CountRoots(ctx context.Context, threadID, originalID int64) (int64, error) {
	var count int64
	err := r.roots(ctx, threadID, originalID).Count(&count).Error
	return count, err
}

// ListRoots returns a page of top-level replies, oldest first
func (r *PostRepository) ListRoots(ctx context.Context, threadID, originalID int64, offset, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := r.roots(ctx, threadID, originalID).
		Order("created_at ASC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&posts).Error
	return posts, err
}

// ChildrenOf returns the direct children of the given posts
func (r *PostRepository) ChildrenOf(ctx context.Context, parentIDs []int64) ([]models.Post, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Where("parent_id IN ?", parentIDs).
		Order("created_at ASC").Order("id ASC").
		Find(&posts).Error
	return posts, err
}

// SubtreeIDs returns rootID and every descendant id, expanding one layer per query
func (r *PostRepository) SubtreeIDs(ctx context.Context, rootID int64) ([]int64, error) {
	ids := []int64{rootID}
	seen := map[int64]bool{rootID: true}
	frontier := []int64{rootID}
	for len(frontier) > 0 {
		var next []int64
		if err := r.db.WithContext(ctx).Model(&models.Post{}).
			Where("parent_id IN ?", frontier).
			Pluck("id", &next).Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range next {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
				frontier = append(frontier, id)
			}
		}
	}
	return ids, nil
}

// IDsByThread lists the ids of all posts in a thread
func (r *PostRepository) IDsByThread(ctx context.Context, threadID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("thread_id = ?", threadID).
		Pluck("id", &ids).Error
	return ids, err
}

// UpdateContent replaces the markdown of a post
func (r *PostRepository) UpdateContent(ctx context.Context, id int64, content string) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content_markdown": content,
			"updated_at":       r.db.NowFunc(),
		}).Error
}

// SetHeartCount stores the reconciled heart count of a post
func (r *PostRepository) SetHeartCount(ctx context.Context, id int64, count int64) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("heart_count", count).Error
}

// DeleteByIDs removes posts by id
func (r *PostRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Post{}).Error
}

// SeriesRefRepository provides series reference operations
type SeriesRefRepository struct {
	*Repository
}

// NewSeriesRefRepository creates a new series ref repository
func NewSeriesRefRepository(repo *Repository) *SeriesRefRepository {
	return &SeriesRefRepository{Repository: repo}
}

// ReplaceForThread swaps the header refs of a thread for the given series ids
func (r *SeriesRefRepository) ReplaceForThread(ctx context.Context, threadID int64, seriesIDs []int64) error {
	if err := r.DeleteForThread(ctx, threadID); err != nil {
		return err
	}
	refs := make([]models.SeriesRef, 0, len(seriesIDs))
	for _, sid := range seriesIDs {
		refs = append(refs, models.SeriesRef{ThreadID: sql.NullInt64{Int64: threadID, Valid: true}, SeriesID: sid})
	}
	return r.createAll(ctx, refs)
}

// ReplaceForPost swaps the refs of a post for the given series ids
func (r *SeriesRefRepository) ReplaceForPost(ctx context.Context, postID int64, seriesIDs []int64) error {
	if err := r.DeleteForPosts(ctx, []int64{postID}); err != nil {
		return err
	}
	refs := make([]models.SeriesRef, 0, len(seriesIDs))
	for _, sid := range seriesIDs {
		refs = append(refs, models.SeriesRef{PostID: sql.NullInt64{Int64: postID, Valid: true}, SeriesID: sid})
	}
	return r.createAll(ctx, refs)
}

func (r *SeriesRefRepository) createAll(ctx context.Context, refs []models.SeriesRef) error {
	if len(refs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&refs).Error
}

// ForThreads returns header refs for the given threads
func (r *SeriesRefRepository) ForThreads(ctx context.Context, threadIDs []int64) ([]models.SeriesRef, error) {
	if len(threadIDs) == 0 {
		return nil, nil
	}
	var refs []models.SeriesRef
	err := r.db.WithContext(ctx).Where("thread_id IN ?", threadIDs).Order("id ASC").Find(&refs).Error
	return refs, err
}

// ForPosts returns refs attached to the given posts
func (r *SeriesRefRepository) ForPosts(ctx context.Context, postIDs []int64) ([]models.SeriesRef, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	var refs []models.SeriesRef
	err := r.db.WithContext(ctx).Where("post_id IN ?", postIDs).Order("id ASC").Find(&refs).Error
	return refs, err
}

// DeleteForThread removes header refs of a thread
func (r *SeriesRefRepository) DeleteForThread(ctx context.Context, threadID int64) error {
	return r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&models.SeriesRef{}).Error
}

// DeleteForPosts removes refs attached to the given posts
func (r *SeriesRefRepository) DeleteForPosts(ctx context.Context, postIDs []int64) error {
	if len(postIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("post_id IN ?", postIDs).Delete(&models.SeriesRef{}).Error
}

// ReactionRepository provides reaction operations
type ReactionRepository struct {
	*Repository
}

// NewReactionRepository creates a new reaction repository
func NewReactionRepository(repo *Repository) *ReactionRepository {
	return &ReactionRepository{Repository: repo}
}

// Find returns the reaction of a user on a post, or nil
func (r *ReactionRepository) Find(ctx context.Context, postID, userID int64, kind string) (*models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ? AND kind = ?", postID, userID, kind).
		First(&reaction).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &reaction, nil
}

// Create creates a reaction
func (r *ReactionRepository) Create(ctx context.Context, reaction *models.Reaction) error {
	return r.db.WithContext(ctx).Create(reaction).Error
}

// Delete removes a reaction by id
func (r *ReactionRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Reaction{}, id).Error
}

// Count counts reactions of a kind on a post
func (r *ReactionRepository) Count(ctx context.Context, postID int64, kind string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Reaction{}).
		Where("post_id = ? AND kind = ?", postID, kind).
		Count(&count).Error
	return count, err
}

// ReactedPostIDs returns which of the given posts the user reacted to
func (r *ReactionRepository) ReactedPostIDs(ctx context.Context, userID int64, kind string, postIDs []int64) (map[int64]bool, error) {
	result := make(map[int64]bool)
	if len(postIDs) == 0 {
		return result, nil
	}
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&models.Reaction{}).
		Where("user_id = ? AND kind = ? AND post_id IN ?", userID, kind, postIDs).
		Pluck("post_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

// DeleteForPosts removes reactions on the given posts
func (r *ReactionRepository) DeleteForPosts(ctx context.Context, postIDs []int64) error {
	if len(postIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("post_id IN ?", postIDs).Delete(&models.Reaction{}).Error
}

// MediaRepository provides media operations
type MediaRepository struct {
	*Repository
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(repo *Repository) *MediaRepository {
	return &MediaRepository{Repository: repo}
}

// Create creates a media row
func (r *MediaRepository) Create(ctx context.Context, media *models.Media) error {
	return r.db.WithContext(ctx).Create(media).Error
}

// ListByThread returns media owned by a thread
func (r *MediaRepository) ListByThread(ctx context.Context, threadID int64) ([]models.Media, error) {
	var media []models.Media
	err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Find(&media).Error
	return media, err
}

// DetachPosts clears the post link of media attached to deleted posts
func (r *MediaRepository) DetachPosts(ctx context.Context, postIDs []int64) error {
	if len(postIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Media{}).
		Where("post_id IN ?", postIDs).
		Update("post_id", nil).Error
}

// DeleteByThread removes media rows owned by a thread
func (r *MediaRepository) DeleteByThread(ctx context.Context, threadID int64) error {
	return r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&models.Media{}).Error
}
