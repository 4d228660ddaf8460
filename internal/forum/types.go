// Package forum implements threads, replies, series references and hearts.
package forum

import "time"

// SeriesRefOut is a series reference attached to a thread header or a post
type SeriesRefOut struct {
	SeriesID int64  `json:"series_id"`
	Title    string `json:"title,omitempty"`
	CoverURL string `json:"cover_url,omitempty"`
	Type     string `json:"type,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ThreadOut is the public view of a thread header
type ThreadOut struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	AuthorID       *int64         `json:"author_id"`
	AuthorUsername *string        `json:"author_username"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	PostCount      int            `json:"post_count"`
	LastPostAt     time.Time      `json:"last_post_at"`
	SeriesRefs     []SeriesRefOut `json:"series_refs"`
	Locked         bool           `json:"locked"`
	LatestFirst    bool           `json:"latest_first"`
}

// PostOut is the public view of a post. ParentID is 0 for top-level posts.
type PostOut struct {
	ID              int64          `json:"id"`
	ThreadID        int64          `json:"thread_id"`
	AuthorID        *int64         `json:"author_id"`
	AuthorUsername  *string        `json:"author_username"`
	ContentMarkdown string         `json:"content_markdown"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	SeriesRefs      []SeriesRefOut `json:"series_refs"`
	ParentID        int64          `json:"parent_id"`
	HeartCount      int            `json:"heart_count"`
	Hearted         bool           `json:"hearted"`
}

// ThreadPage is one page of a thread listing
type ThreadPage struct {
	Items      []ThreadOut `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// ThreadView is a thread with all its posts in chronological order
type ThreadView struct {
	Thread ThreadOut `json:"thread"`
	Posts  []PostOut `json:"posts"`
}

// PagedThreadView is a thread with one page of top-level replies. Posts starts
// with the original post; every root is followed by its whole subtree.
type PagedThreadView struct {
	Thread       ThreadOut `json:"thread"`
	OriginalPost *PostOut  `json:"original_post"`
	Posts        []PostOut `json:"posts"`
	Page         int       `json:"page"`
	PageSize     int       `json:"page_size"`
	TotalRoots   int64     `json:"total_roots"`
	TotalPages   int       `json:"total_pages"`
}

// HeartResult is the state of a heart after a toggle
type HeartResult struct {
	Hearted    bool  `json:"hearted"`
	HeartCount int64 `json:"heart_count"`
}

// ListParams filters and pages a thread listing
type ListParams struct {
	Query    string
	Author   string
	AuthorID *int64
	Page     int
	PageSize int
}

// CreateThreadInput is the payload for a new thread
type CreateThreadInput struct {
	Title             string
	FirstPostMarkdown string
	SeriesIDs         []int64
}

// UpdateThreadInput changes a thread; nil fields are left untouched
type UpdateThreadInput struct {
	Title             *string
	FirstPostMarkdown *string
	SeriesIDs         *[]int64
}

// CreatePostInput is the payload for a reply
type CreatePostInput struct {
	ContentMarkdown string
	SeriesIDs       []int64
	ParentID        *int64
}

// UpdatePostInput changes a post; SeriesIDs replaces the post's refs when set
type UpdatePostInput struct {
	ContentMarkdown string
	SeriesIDs       *[]int64
}
