package models

import (
	"database/sql"
	"time"
)

// Media is an uploaded image attached to a thread and optionally a post
type Media struct {
	ID         int64         `gorm:"primaryKey;autoIncrement;column:id"`
	ThreadID   int64         `gorm:"not null;index;column:thread_id"`
	PostID     sql.NullInt64 `gorm:"index;column:post_id"`
	UploaderID sql.NullInt64 `gorm:"column:uploader_id"`
	URL        string        `gorm:"type:varchar(1024);not null;column:url"`
	StorageKey string        `gorm:"type:varchar(1024);not null;column:storage_key"`
	Mime       string        `gorm:"type:varchar(64);not null;column:mime"`
	SizeBytes  int64         `gorm:"not null;column:size_bytes"`
	Width      sql.NullInt32 `gorm:"column:width"`
	Height     sql.NullInt32 `gorm:"column:height"`
	CreatedAt  time.Time     `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Media
func (Media) TableName() string {
	return "forum_media"
}
