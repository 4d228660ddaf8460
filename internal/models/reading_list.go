package models

import "time"

// ReadingList is a named, user-owned collection of series
type ReadingList struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_reading_list_user_name;column:user_id"`
	Name      string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_reading_list_user_name;column:name"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for ReadingList
func (ReadingList) TableName() string {
	return "reading_lists"
}

// ReadingListItem links a series into a reading list
type ReadingListItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ListID    int64     `gorm:"not null;uniqueIndex:idx_reading_list_item;column:list_id"`
	SeriesID  int64     `gorm:"not null;uniqueIndex:idx_reading_list_item;column:series_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for ReadingListItem
func (ReadingListItem) TableName() string {
	return "reading_list_items"
}
