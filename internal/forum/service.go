package forum

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/cache"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/metrics"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/internal/moderation"
	"github.com/toonranks/toonranks/internal/storage"
	"github.com/toonranks/toonranks/pkg/config"
	"github.com/toonranks/toonranks/pkg/logging"
	"github.com/toonranks/toonranks/pkg/telemetry"
)

const (
	minTitleLen = 3
	maxTitleLen = 200
)

// Service runs forum operations
type Service struct {
	repo    *db.Repository
	threads *db.ThreadRepository
	posts   *db.PostRepository
	users   *db.UserRepository
	series  *db.SeriesRepository
	loader  *Loader
	filter  *moderation.Filter
	store   storage.ObjectStore
	cache   *cache.Cache
	cfg     config.ForumConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates the forum service. store and c may be nil.
func NewService(repo *db.Repository, filter *moderation.Filter, store storage.ObjectStore, c *cache.Cache, cfg config.ForumConfig) *Service {
	if filter == nil {
		filter = moderation.NewFilter(nil, nil)
	}
	return &Service{
		repo:    repo,
		threads: db.NewThreadRepository(repo),
		posts:   db.NewPostRepository(repo),
		users:   db.NewUserRepository(repo),
		series:  db.NewSeriesRepository(repo),
		loader:  NewLoader(repo),
		filter:  filter,
		store:   store,
		cache:   c,
		cfg:     cfg,
		logger:  logging.WithComponent("forum"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func canModify(actor *models.User, authorID int64, valid bool) bool {
	return actor.IsAdmin() || (valid && actor != nil && authorID == actor.ID)
}

func viewerID(viewer *models.User) int64 {
	if viewer == nil {
		return 0
	}
	return viewer.ID
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n < minTitleLen || n > maxTitleLen {
		return "", apperr.ValidationField("title", fmt.Sprintf("Title must be between %d and %d characters", minTitleLen, maxTitleLen))
	}
	return title, nil
}

func requireContent(field, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperr.ValidationField(field, "Content must not be empty")
	}
	return content, nil
}

// checkSeriesIDs removes duplicates and rejects ids of unknown series
func (s *Service) checkSeriesIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	found, err := s.series.ByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to check series ids: %w", err)
	}
	for _, id := range unique {
		if _, ok := found[id]; !ok {
			return nil, apperr.ValidationField("series_ids", fmt.Sprintf("Unknown series id %d", id))
		}
	}
	return unique, nil
}

func (s *Service) pageSize(requested int) int {
	switch {
	case requested <= 0:
		return s.cfg.DefaultPageSize
	case requested > s.cfg.MaxPageSize:
		return s.cfg.MaxPageSize
	}
	return requested
}

func totalPages(total int64, size int) int {
	if total == 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func (s *Service) getThread(ctx context.Context, id int64) (*models.Thread, error) {
	thread, err := s.threads.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	if thread == nil {
		return nil, apperr.NotFound("Thread not found")
	}
	return thread, nil
}

func (s *Service) threadOut(ctx context.Context, id int64) (ThreadOut, error) {
	thread, err := s.getThread(ctx, id)
	if err != nil {
		return ThreadOut{}, err
	}
	out, err := s.loader.LoadThreads(ctx, []models.Thread{*thread})
	if err != nil {
		return ThreadOut{}, err
	}
	return out[0], nil
}

// ListThreads returns one page of threads, most recently active first
func (s *Service) ListThreads(ctx context.Context, p ListParams) (*ThreadPage, error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.ListThreads")
	defer span.End()

	page := p.Page
	if page < 1 {
		page = 1
	}
	size := s.pageSize(p.PageSize)
	result := &ThreadPage{Items: []ThreadOut{}, Page: page, PageSize: size}

	filter := db.ThreadFilter{Query: strings.TrimSpace(p.Query), AuthorID: p.AuthorID}
	if name := strings.TrimSpace(p.Author); name != "" && filter.AuthorID == nil {
		user, err := s.users.GetByUsername(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve author: %w", err)
		}
		if user == nil {
			return result, nil
		}
		filter.AuthorID = &user.ID
	}

	threads, total, err := s.threads.List(ctx, filter, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	items, err := s.loader.LoadThreads(ctx, threads)
	if err != nil {
		return nil, err
	}
	result.Items = items
	result.Total = total
	result.TotalPages = totalPages(total, size)
	return result, nil
}

// CreateThread creates a thread together with its original post
func (s *Service) CreateThread(ctx context.Context, actor *models.User, in CreateThreadInput) (out ThreadOut, err error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.CreateThread")
	defer span.End()
	defer func() { metrics.RecordForumOp("create_thread", err) }()

	title, err := normalizeTitle(in.Title)
	if err != nil {
		return ThreadOut{}, err
	}
	body, err := requireContent("first_post_markdown", in.FirstPostMarkdown)
	if err != nil {
		return ThreadOut{}, err
	}
	if err := s.filter.CheckText("title", title); err != nil {
		return ThreadOut{}, err
	}
	if err := s.filter.CheckMarkdown(ctx, "first_post_markdown", body); err != nil {
		return ThreadOut{}, err
	}
	seriesIDs, err := s.checkSeriesIDs(ctx, in.SeriesIDs)
	if err != nil {
		return ThreadOut{}, err
	}

	var threadID int64
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		threads := db.NewThreadRepository(tx)

		count, err := threads.CountByAuthor(ctx, actor.ID)
		if err != nil {
			return err
		}
		if count >= int64(s.cfg.MaxThreadsPerUser) {
			return apperr.QuotaExceeded(fmt.Sprintf("Thread limit reached (%d). Delete an existing thread to create a new one.", s.cfg.MaxThreadsPerUser))
		}

		now := s.now()
		author := models.NullID(actor.ID)
		thread := &models.Thread{
			Title:      title,
			AuthorID:   author,
			CreatedAt:  now,
			UpdatedAt:  now,
			PostCount:  1,
			LastPostAt: now,
		}
		if err := threads.Create(ctx, thread); err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		post := &models.Post{
			ThreadID:        thread.ID,
			AuthorID:        author,
			ContentMarkdown: body,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := db.NewPostRepository(tx).Create(ctx, post); err != nil {
			return fmt.Errorf("create original post: %w", err)
		}
		if err := db.NewSeriesRefRepository(tx).ReplaceForThread(ctx, thread.ID, seriesIDs); err != nil {
			return fmt.Errorf("attach series: %w", err)
		}
		threadID = thread.ID
		return nil
	})
	if err != nil {
		return ThreadOut{}, err
	}

	s.logger.Info("Thread created", zap.Int64("thread_id", threadID), zap.Int64("author_id", actor.ID))
	return s.threadOut(ctx, threadID)
}

// GetThread returns a thread with every post in chronological order
func (s *Service) GetThread(ctx context.Context, viewer *models.User, id int64) (*ThreadView, error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.GetThread")
	defer span.End()

	thread, err := s.threadOut(ctx, id)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.ListByThread(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	out, err := s.loader.LoadPosts(ctx, posts, viewerID(viewer))
	if err != nil {
		return nil, err
	}
	return &ThreadView{Thread: thread, Posts: out}, nil
}

// GetThreadPaged returns the original post followed by one page of top-level
// replies, each immediately followed by its descendants. Roots are ordered
// oldest first whatever the thread's display direction; descendants are
// expanded one tree layer per query.
func (s *Service) GetThreadPaged(ctx context.Context, viewer *models.User, id int64, page, pageSize int) (*PagedThreadView, error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.GetThreadPaged")
	defer span.End()

	thread, err := s.threadOut(ctx, id)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	size := s.pageSize(pageSize)

	original, err := s.posts.Original(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load original post: %w", err)
	}
	var originalID int64
	if original != nil {
		originalID = original.ID
	}

	totalRoots, err := s.posts.CountRoots(ctx, id, originalID)
	if err != nil {
		return nil, fmt.Errorf("failed to count replies: %w", err)
	}
	roots, err := s.posts.ListRoots(ctx, id, originalID, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}

	children := make(map[int64][]models.Post)
	frontier := make([]int64, 0, len(roots))
	for _, r := range roots {
		frontier = append(frontier, r.ID)
	}
	for len(frontier) > 0 {
		layer, err := s.posts.ChildrenOf(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to expand replies: %w", err)
		}
		frontier = frontier[:0]
		for _, p := range layer {
			children[p.ParentID.Int64] = append(children[p.ParentID.Int64], p)
			frontier = append(frontier, p.ID)
		}
	}

	ordered := make([]models.Post, 0, 1+len(roots)+len(children))
	if original != nil {
		ordered = append(ordered, *original)
	}
	for _, root := range roots {
		ordered = append(ordered, root)
		queue := []int64{root.ID}
		for len(queue) > 0 {
			parent := queue[0]
			queue = queue[1:]
			for _, child := range children[parent] {
				ordered = append(ordered, child)
				queue = append(queue, child.ID)
			}
		}
	}

	posts, err := s.loader.LoadPosts(ctx, ordered, viewerID(viewer))
	if err != nil {
		return nil, err
	}

	view := &PagedThreadView{
		Thread:     thread,
		Posts:      posts,
		Page:       page,
		PageSize:   size,
		TotalRoots: totalRoots,
		TotalPages: totalPages(totalRoots, size),
	}
	if original != nil {
		view.OriginalPost = &posts[0]
	}
	return view, nil
}

// UpdateThread changes the title, the original post or the header refs
func (s *Service) UpdateThread(ctx context.Context, actor *models.User, id int64, in UpdateThreadInput) (out ThreadOut, err error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.UpdateThread")
	defer span.End()
	defer func() { metrics.RecordForumOp("update_thread", err) }()

	thread, err := s.getThread(ctx, id)
	if err != nil {
		return ThreadOut{}, err
	}
	if !canModify(actor, thread.AuthorID.Int64, thread.AuthorID.Valid) {
		return ThreadOut{}, apperr.Forbidden("Only the thread owner or an admin may edit this thread.")
	}
	if thread.Locked && !actor.IsAdmin() {
		return ThreadOut{}, apperr.ThreadLocked()
	}

	values := map[string]interface{}{}
	if in.Title != nil {
		title, err := normalizeTitle(*in.Title)
		if err != nil {
			return ThreadOut{}, err
		}
		if err := s.filter.CheckText("title", title); err != nil {
			return ThreadOut{}, err
		}
		values["title"] = title
	}
	var body string
	if in.FirstPostMarkdown != nil {
		if body, err = requireContent("first_post_markdown", *in.FirstPostMarkdown); err != nil {
			return ThreadOut{}, err
		}
		if err := s.filter.CheckMarkdown(ctx, "first_post_markdown", body); err != nil {
			return ThreadOut{}, err
		}
	}
	var seriesIDs []int64
	if in.SeriesIDs != nil {
		if seriesIDs, err = s.checkSeriesIDs(ctx, *in.SeriesIDs); err != nil {
			return ThreadOut{}, err
		}
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		values["updated_at"] = s.now()
		if err := db.NewThreadRepository(tx).Update(ctx, id, values); err != nil {
			return fmt.Errorf("update thread: %w", err)
		}
		if in.FirstPostMarkdown != nil {
			posts := db.NewPostRepository(tx)
			original, err := posts.Original(ctx, id)
			if err != nil {
				return err
			}
			if original != nil {
				if err := posts.UpdateContent(ctx, original.ID, body); err != nil {
					return fmt.Errorf("update original post: %w", err)
				}
			}
		}
		if in.SeriesIDs != nil {
			if err := db.NewSeriesRefRepository(tx).ReplaceForThread(ctx, id, seriesIDs); err != nil {
				return fmt.Errorf("replace series refs: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return ThreadOut{}, err
	}
	return s.threadOut(ctx, id)
}

// SetLocked sets or, when value is nil, flips the locked flag
func (s *Service) SetLocked(ctx context.Context, actor *models.User, id int64, value *bool) (ThreadOut, error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.SetLocked")
	defer span.End()
	return s.setFlag(ctx, actor, id, "locked", value, func(t *models.Thread) bool { return t.Locked })
}

// SetLatestFirst sets or, when value is nil, flips the display direction flag
func (s *Service) SetLatestFirst(ctx context.Context, actor *models.User, id int64, value *bool) (ThreadOut, error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.SetLatestFirst")
	defer span.End()
	return s.setFlag(ctx, actor, id, "latest_first", value, func(t *models.Thread) bool { return t.LatestFirst })
}

func (s *Service) setFlag(ctx context.Context, actor *models.User, id int64, column string, value *bool, current func(*models.Thread) bool) (out ThreadOut, err error) {
	defer func() { metrics.RecordForumOp("set_"+column, err) }()

	if !actor.IsAdmin() {
		return ThreadOut{}, apperr.Forbidden("Admin access required")
	}
	thread, err := s.getThread(ctx, id)
	if err != nil {
		return ThreadOut{}, err
	}
	next := !current(thread)
	if value != nil {
		next = *value
	}
	if err := s.threads.Update(ctx, id, map[string]interface{}{column: next}); err != nil {
		return ThreadOut{}, fmt.Errorf("update thread: %w", err)
	}
	s.logger.Info("Thread flag changed", zap.Int64("thread_id", id), zap.String("flag", column), zap.Bool("value", next))
	return s.threadOut(ctx, id)
}

// DeleteThread removes a thread with its posts, refs, reactions and media.
// Stored media objects are removed after the rows are gone.
func (s *Service) DeleteThread(ctx context.Context, actor *models.User, id int64) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.DeleteThread")
	defer span.End()
	defer func() { metrics.RecordForumOp("delete_thread", err) }()

	thread, err := s.getThread(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(actor, thread.AuthorID.Int64, thread.AuthorID.Valid) {
		return apperr.Forbidden("Admins or the thread owner may delete this thread.")
	}

	var media []models.Media
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		posts := db.NewPostRepository(tx)
		refs := db.NewSeriesRefRepository(tx)
		mediaRepo := db.NewMediaRepository(tx)

		ids, err := posts.IDsByThread(ctx, id)
		if err != nil {
			return err
		}
		if media, err = mediaRepo.ListByThread(ctx, id); err != nil {
			return err
		}
		if err := db.NewReactionRepository(tx).DeleteForPosts(ctx, ids); err != nil {
			return fmt.Errorf("delete reactions: %w", err)
		}
		if err := refs.DeleteForPosts(ctx, ids); err != nil {
			return fmt.Errorf("delete post refs: %w", err)
		}
		if err := refs.DeleteForThread(ctx, id); err != nil {
			return fmt.Errorf("delete thread refs: %w", err)
		}
		if err := mediaRepo.DeleteByThread(ctx, id); err != nil {
			return fmt.Errorf("delete media: %w", err)
		}
		if err := posts.DeleteByIDs(ctx, ids); err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}
		return db.NewThreadRepository(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.removeObjects(ctx, media)
	s.logger.Info("Thread deleted", zap.Int64("thread_id", id), zap.Int64("by", actor.ID))
	return nil
}

func (s *Service) removeObjects(ctx context.Context, media []models.Media) {
	if s.store == nil {
		return
	}
	for _, m := range media {
		if err := s.store.Delete(ctx, m.StorageKey); err != nil {
			s.logger.Warn("Failed to delete media object",
				zap.String("key", m.StorageKey),
				zap.Error(err),
			)
		}
	}
}
