package forum

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/metrics"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/pkg/telemetry"
)

// postInThread loads a post through posts and checks it belongs to threadID
func postInThread(ctx context.Context, posts *db.PostRepository, threadID, postID int64) (*models.Post, error) {
	post, err := posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil || post.ThreadID != threadID {
		return nil, apperr.NotFound("Post not found")
	}
	return post, nil
}

// checkParent verifies a reply target exists in the same thread
func checkParent(ctx context.Context, posts *db.PostRepository, threadID, parentID int64) error {
	parent, err := posts.GetForUpdate(ctx, parentID)
	if err != nil {
		return fmt.Errorf("failed to load parent post: %w", err)
	}
	if parent == nil {
		return apperr.NotFound("Parent post not found")
	}
	if parent.ThreadID != threadID {
		return apperr.ValidationField("parent_id", "Parent post is from another thread")
	}
	return nil
}

// CreatePost adds a reply to a thread
func (s *Service) CreatePost(ctx context.Context, actor *models.User, threadID int64, in CreatePostInput) (out PostOut, err error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.CreatePost")
	defer span.End()
	defer func() { metrics.RecordForumOp("create_post", err) }()

	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return PostOut{}, err
	}
	if thread.Locked && !actor.IsAdmin() {
		return PostOut{}, apperr.ThreadLocked()
	}

	content, err := requireContent("content_markdown", in.ContentMarkdown)
	if err != nil {
		return PostOut{}, err
	}
	if err := s.filter.CheckMarkdown(ctx, "content_markdown", content); err != nil {
		return PostOut{}, err
	}

	if in.ParentID != nil {
		if err := checkParent(ctx, s.posts, threadID, *in.ParentID); err != nil {
			return PostOut{}, err
		}
	}

	seriesIDs, err := s.checkSeriesIDs(ctx, in.SeriesIDs)
	if err != nil {
		return PostOut{}, err
	}

	post := &models.Post{
		ThreadID:        threadID,
		AuthorID:        models.NullID(actor.ID),
		ContentMarkdown: content,
	}
	if in.ParentID != nil {
		post.ParentID = models.NullID(*in.ParentID)
	}

	// Thread and parent are read again under lock; a reply never outlives either.
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		now := s.now()
		threads := db.NewThreadRepository(tx)
		posts := db.NewPostRepository(tx)

		current, err := threads.GetForUpdate(ctx, threadID)
		if err != nil {
			return fmt.Errorf("failed to load thread: %w", err)
		}
		if current == nil {
			return apperr.NotFound("Thread not found")
		}
		if current.Locked && !actor.IsAdmin() {
			return apperr.ThreadLocked()
		}
		if in.ParentID != nil {
			if err := checkParent(ctx, posts, threadID, *in.ParentID); err != nil {
				return err
			}
		}

		post.CreatedAt = now
		post.UpdatedAt = now
		if err := posts.Create(ctx, post); err != nil {
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return apperr.NotFound("Thread or parent post not found")
			}
			return fmt.Errorf("create post: %w", err)
		}
		if err := db.NewSeriesRefRepository(tx).ReplaceForPost(ctx, post.ID, seriesIDs); err != nil {
			return fmt.Errorf("attach series: %w", err)
		}
		if err := threads.BumpOnReply(ctx, threadID, now); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Thread not found")
			}
			return fmt.Errorf("bump thread: %w", err)
		}
		return nil
	})
	if err != nil {
		return PostOut{}, err
	}

	return s.loader.LoadPost(ctx, post, actor.ID)
}

// UpdatePost replaces the content of a post and, when given, its series refs
func (s *Service) UpdatePost(ctx context.Context, actor *models.User, threadID, postID int64, in UpdatePostInput) (out PostOut, err error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.UpdatePost")
	defer span.End()
	defer func() { metrics.RecordForumOp("update_post", err) }()

	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return PostOut{}, err
	}
	post, err := postInThread(ctx, s.posts, threadID, postID)
	if err != nil {
		return PostOut{}, err
	}
	if !canModify(actor, post.AuthorID.Int64, post.AuthorID.Valid) {
		return PostOut{}, apperr.Forbidden("Only the post owner or an admin may edit this post.")
	}
	if thread.Locked && !actor.IsAdmin() {
		return PostOut{}, apperr.ThreadLocked()
	}

	content, err := requireContent("content_markdown", in.ContentMarkdown)
	if err != nil {
		return PostOut{}, err
	}
	if err := s.filter.CheckMarkdown(ctx, "content_markdown", content); err != nil {
		return PostOut{}, err
	}
	var seriesIDs []int64
	if in.SeriesIDs != nil {
		if seriesIDs, err = s.checkSeriesIDs(ctx, *in.SeriesIDs); err != nil {
			return PostOut{}, err
		}
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		posts := db.NewPostRepository(tx)
		current, err := posts.GetForUpdate(ctx, postID)
		if err != nil {
			return fmt.Errorf("failed to load post: %w", err)
		}
		if current == nil || current.ThreadID != threadID {
			return apperr.NotFound("Post not found")
		}
		if err := posts.UpdateContent(ctx, postID, content); err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		if in.SeriesIDs != nil {
			if err := db.NewSeriesRefRepository(tx).ReplaceForPost(ctx, postID, seriesIDs); err != nil {
				return fmt.Errorf("replace series refs: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return PostOut{}, err
	}

	updated, err := postInThread(ctx, s.posts, threadID, postID)
	if err != nil {
		return PostOut{}, err
	}
	return s.loader.LoadPost(ctx, updated, actor.ID)
}

// DeletePost removes a reply and its descendants, then recomputes the thread
// counters from the remaining rows. ownerOnly restricts deletion to the
// author, otherwise admins may delete too. The original post can only go
// away with its thread.
func (s *Service) DeletePost(ctx context.Context, actor *models.User, threadID, postID int64, ownerOnly bool) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.DeletePost")
	defer span.End()
	defer func() { metrics.RecordForumOp("delete_post", err) }()

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil {
		return apperr.NotFound("Post not found")
	}
	if post.ThreadID != threadID {
		return apperr.Validation("Post is not in this thread")
	}

	isAuthor := post.AuthorID.Valid && post.AuthorID.Int64 == actor.ID
	if ownerOnly && !isAuthor {
		return apperr.Forbidden("Only the post owner may delete this post.")
	}
	if !ownerOnly && !isAuthor && !actor.IsAdmin() {
		return apperr.Forbidden("Admins or the post owner may delete this post.")
	}

	original, err := s.posts.Original(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to load original post: %w", err)
	}
	if original != nil && original.ID == post.ID {
		return apperr.Validation("Delete the thread to remove the original post.")
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		posts := db.NewPostRepository(tx)
		ids, err := posts.SubtreeIDs(ctx, postID)
		if err != nil {
			return err
		}
		if err := db.NewReactionRepository(tx).DeleteForPosts(ctx, ids); err != nil {
			return fmt.Errorf("delete reactions: %w", err)
		}
		if err := db.NewSeriesRefRepository(tx).DeleteForPosts(ctx, ids); err != nil {
			return fmt.Errorf("delete refs: %w", err)
		}
		if err := db.NewMediaRepository(tx).DetachPosts(ctx, ids); err != nil {
			return fmt.Errorf("detach media: %w", err)
		}
		if err := posts.DeleteByIDs(ctx, ids); err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}
		return db.NewThreadRepository(tx).RecomputeCounters(ctx, threadID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Post deleted",
		zap.Int64("thread_id", threadID),
		zap.Int64("post_id", postID),
		zap.Int64("by", actor.ID),
	)
	return nil
}

// ToggleHeart adds the actor's heart to a post or removes it. The returned
// count comes from the reactions table, not the cached column.
func (s *Service) ToggleHeart(ctx context.Context, actor *models.User, threadID, postID int64) (res HeartResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "forum.ToggleHeart")
	defer span.End()
	defer func() { metrics.RecordForumOp("toggle_heart", err) }()

	if _, err := postInThread(ctx, s.posts, threadID, postID); err != nil {
		return HeartResult{}, err
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		posts := db.NewPostRepository(tx)
		reactions := db.NewReactionRepository(tx)

		current, err := posts.GetForUpdate(ctx, postID)
		if err != nil {
			return fmt.Errorf("failed to load post: %w", err)
		}
		if current == nil || current.ThreadID != threadID {
			return apperr.NotFound("Post not found")
		}

		existing, err := reactions.Find(ctx, postID, actor.ID, models.ReactionHeart)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := reactions.Delete(ctx, existing.ID); err != nil {
				return fmt.Errorf("remove heart: %w", err)
			}
			res.Hearted = false
		} else {
			if err := s.addHeart(ctx, tx, postID, actor.ID); err != nil {
				return err
			}
			res.Hearted = true
		}

		count, err := reactions.Count(ctx, postID, models.ReactionHeart)
		if err != nil {
			return err
		}
		res.HeartCount = count
		return posts.SetHeartCount(ctx, postID, count)
	})
	if err != nil {
		return HeartResult{}, err
	}
	return res, nil
}

// addHeart records a heart inside a savepoint. A unique violation means a
// concurrent toggle stored the same heart first, which leaves the post hearted.
func (s *Service) addHeart(ctx context.Context, tx *db.Repository, postID, userID int64) error {
	err := tx.Transaction(ctx, func(sp *db.Repository) error {
		return db.NewReactionRepository(sp).Create(ctx, &models.Reaction{
			PostID:    postID,
			UserID:    userID,
			Kind:      models.ReactionHeart,
			CreatedAt: s.now(),
		})
	})
	switch {
	case err == nil, errors.Is(err, gorm.ErrDuplicatedKey):
		return nil
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.NotFound("Post not found")
	default:
		return fmt.Errorf("add heart: %w", err)
	}
}
