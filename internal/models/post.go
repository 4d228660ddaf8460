package models

import (
	"database/sql"
	"time"
)

// Thread represents a forum discussion thread
type Thread struct {
	ID          int64         `gorm:"primaryKey;autoIncrement;column:id"`
	Title       string        `gorm:"type:varchar(200);not null;column:title"`
	AuthorID    sql.NullInt64 `gorm:"index;column:author_id"`
	CreatedAt   time.Time     `gorm:"not null;column:created_at"`
	UpdatedAt   time.Time     `gorm:"not null;column:updated_at"`
	PostCount   int           `gorm:"not null;default:0;column:post_count"`
	LastPostAt  time.Time     `gorm:"not null;index;column:last_post_at"`
	Locked      bool          `gorm:"not null;default:false;column:locked"`
	LatestFirst bool          `gorm:"not null;default:false;column:latest_first"`
}

// TableName specifies the table name for Thread
func (Thread) TableName() string {
	return "forum_threads"
}

// Post represents a message in a thread; ParentID is null for top-level posts.
// Removing a thread or a parent post removes the rows that hang off it.
type Post struct {
	ID              int64         `gorm:"primaryKey;autoIncrement;column:id"`
	ThreadID        int64         `gorm:"not null;index:idx_forum_posts_thread_created,priority:1;column:thread_id"`
	AuthorID        sql.NullInt64 `gorm:"index;column:author_id"`
	ParentID        sql.NullInt64 `gorm:"index;column:parent_id"`
	ContentMarkdown string        `gorm:"type:text;not null;column:content_markdown"`
	CreatedAt       time.Time     `gorm:"not null;index:idx_forum_posts_thread_created,priority:2;column:created_at"`
	UpdatedAt       time.Time     `gorm:"not null;column:updated_at"`
	HeartCount      int           `gorm:"not null;default:0;column:heart_count"`

	Thread *Thread `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE"`
	Parent *Post   `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "forum_posts"
}

// SeriesRef attaches a series to either a thread header or a post, never both
type SeriesRef struct {
	ID       int64         `gorm:"primaryKey;autoIncrement;column:id"`
	ThreadID sql.NullInt64 `gorm:"index;column:thread_id"`
	PostID   sql.NullInt64 `gorm:"index;column:post_id"`
	SeriesID int64         `gorm:"not null;index;column:series_id"`

	Thread *Thread `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE"`
	Post   *Post   `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for SeriesRef
func (SeriesRef) TableName() string {
	return "forum_series_refs"
}

// ReactionHeart is the only reaction kind currently offered
const ReactionHeart = "HEART"

// Reaction is a user's reaction to a post
type Reaction struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	PostID    int64     `gorm:"not null;uniqueIndex:idx_forum_reaction_once;column:post_id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_forum_reaction_once;column:user_id"`
	Kind      string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_forum_reaction_once;column:kind"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`

	Post *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Reaction
func (Reaction) TableName() string {
	return "forum_reactions"
}

// NullID wraps an id for a nullable reference column
func NullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: true}
}
