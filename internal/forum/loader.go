package forum

import (
	"context"
	"fmt"

	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/models"
)

// Loader assembles thread and post views with batched lookups
type Loader struct {
	users     *db.UserRepository
	series    *db.SeriesRepository
	refs      *db.SeriesRefRepository
	reactions *db.ReactionRepository
}

// NewLoader creates a loader bound to repo
func NewLoader(repo *db.Repository) *Loader {
	return &Loader{
		users:     db.NewUserRepository(repo),
		series:    db.NewSeriesRepository(repo),
		refs:      db.NewSeriesRefRepository(repo),
		reactions: db.NewReactionRepository(repo),
	}
}

// LoadThreads builds thread views in the order given
func (l *Loader) LoadThreads(ctx context.Context, threads []models.Thread) ([]ThreadOut, error) {
	result := make([]ThreadOut, 0, len(threads))
	if len(threads) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(threads))
	var authorIDs []int64
	for _, t := range threads {
		ids = append(ids, t.ID)
		if t.AuthorID.Valid {
			authorIDs = append(authorIDs, t.AuthorID.Int64)
		}
	}

	names, err := l.users.UsernamesByIDs(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread authors: %w", err)
	}
	refs, err := l.refs.ForThreads(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread refs: %w", err)
	}
	refMap, err := l.resolveRefs(ctx, refs, func(r models.SeriesRef) int64 { return r.ThreadID.Int64 })
	if err != nil {
		return nil, err
	}

	for _, t := range threads {
		out := ThreadOut{
			ID:          t.ID,
			Title:       t.Title,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
			PostCount:   t.PostCount,
			LastPostAt:  t.LastPostAt,
			SeriesRefs:  refMap[t.ID],
			Locked:      t.Locked,
			LatestFirst: t.LatestFirst,
		}
		out.AuthorID, out.AuthorUsername = author(t.AuthorID.Int64, t.AuthorID.Valid, names)
		if out.SeriesRefs == nil {
			out.SeriesRefs = []SeriesRefOut{}
		}
		result = append(result, out)
	}
	return result, nil
}

// LoadPosts builds post views in the order given. viewerID 0 means anonymous.
func (l *Loader) LoadPosts(ctx context.Context, posts []models.Post, viewerID int64) ([]PostOut, error) {
	result := make([]PostOut, 0, len(posts))
	if len(posts) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(posts))
	var authorIDs []int64
	for _, p := range posts {
		ids = append(ids, p.ID)
		if p.AuthorID.Valid {
			authorIDs = append(authorIDs, p.AuthorID.Int64)
		}
	}

	names, err := l.users.UsernamesByIDs(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load post authors: %w", err)
	}
	refs, err := l.refs.ForPosts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load post refs: %w", err)
	}
	refMap, err := l.resolveRefs(ctx, refs, func(r models.SeriesRef) int64 { return r.PostID.Int64 })
	if err != nil {
		return nil, err
	}

	hearted := map[int64]bool{}
	if viewerID != 0 {
		if hearted, err = l.reactions.ReactedPostIDs(ctx, viewerID, models.ReactionHeart, ids); err != nil {
			return nil, fmt.Errorf("failed to load viewer hearts: %w", err)
		}
	}

	for _, p := range posts {
		result = append(result, l.buildPost(&p, names, refMap[p.ID], hearted[p.ID]))
	}
	return result, nil
}

// LoadPost builds the view of a single post
func (l *Loader) LoadPost(ctx context.Context, post *models.Post, viewerID int64) (PostOut, error) {
	out, err := l.LoadPosts(ctx, []models.Post{*post}, viewerID)
	if err != nil {
		return PostOut{}, err
	}
	return out[0], nil
}

func (l *Loader) buildPost(p *models.Post, names map[int64]string, refs []SeriesRefOut, hearted bool) PostOut {
	out := PostOut{
		ID:              p.ID,
		ThreadID:        p.ThreadID,
		ContentMarkdown: p.ContentMarkdown,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		SeriesRefs:      refs,
		ParentID:        p.ParentID.Int64,
		HeartCount:      p.HeartCount,
		Hearted:         hearted,
	}
	out.AuthorID, out.AuthorUsername = author(p.AuthorID.Int64, p.AuthorID.Valid, names)
	if out.SeriesRefs == nil {
		out.SeriesRefs = []SeriesRefOut{}
	}
	return out
}

// resolveRefs joins refs with their series and groups them by owner
func (l *Loader) resolveRefs(ctx context.Context, refs []models.SeriesRef, owner func(models.SeriesRef) int64) (map[int64][]SeriesRefOut, error) {
	result := make(map[int64][]SeriesRefOut)
	if len(refs) == 0 {
		return result, nil
	}

	seriesIDs := make([]int64, 0, len(refs))
	for _, r := range refs {
		seriesIDs = append(seriesIDs, r.SeriesID)
	}
	series, err := l.series.ByIDs(ctx, seriesIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load referenced series: %w", err)
	}

	for _, r := range refs {
		s, ok := series[r.SeriesID]
		if !ok {
			continue // Series deleted since the ref was written
		}
		result[owner(r)] = append(result[owner(r)], seriesRef(s))
	}
	return result, nil
}

func seriesRef(s models.Series) SeriesRefOut {
	return SeriesRefOut{
		SeriesID: s.ID,
		Title:    s.Title,
		CoverURL: s.CoverURL,
		Type:     string(s.Type),
		Status:   s.Status,
	}
}

func author(id int64, valid bool, names map[int64]string) (*int64, *string) {
	if !valid {
		return nil, nil
	}
	authorID := id
	name, ok := names[id]
	if !ok {
		return &authorID, nil
	}
	return &authorID, &name
}
