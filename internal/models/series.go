package models

import (
	"strings"
	"time"
)

// SeriesType is the publication format of a series
type SeriesType string

const (
	SeriesManga  SeriesType = "MANGA"
	SeriesManhwa SeriesType = "MANHWA"
	SeriesManhua SeriesType = "MANHUA"
)

// ParseSeriesType returns the canonical type and whether it was recognized
func ParseSeriesType(s string) (SeriesType, bool) {
	switch t := SeriesType(strings.ToUpper(strings.TrimSpace(s))); t {
	case SeriesManga, SeriesManhwa, SeriesManhua:
		return t, true
	}
	return "", false
}

// Publication statuses
const (
	StatusOngoing  = "ONGOING"
	StatusComplete = "COMPLETE"
	StatusHiatus   = "HIATUS"
	StatusUnknown  = "UNKNOWN"
)

// ParseSeriesStatus returns the canonical status; blank maps to UNKNOWN
func ParseSeriesStatus(s string) (string, bool) {
	switch st := strings.ToUpper(strings.TrimSpace(s)); st {
	case "":
		return StatusUnknown, true
	case StatusOngoing, StatusComplete, StatusHiatus, StatusUnknown:
		return st, true
	}
	return "", false
}

// Series represents a manga/manhwa/manhua title
type Series struct {
	ID        int64      `gorm:"primaryKey;autoIncrement;column:id"`
	Title     string     `gorm:"type:varchar(255);uniqueIndex;not null;column:title"`
	Genre     string     `gorm:"type:varchar(100);column:genre"`
	Type      SeriesType `gorm:"type:varchar(16);not null;column:type"`
	Status    string     `gorm:"type:varchar(32);column:status"`
	Author    string     `gorm:"type:varchar(255);column:author"`
	Artist    string     `gorm:"type:varchar(255);column:artist"`
	CoverURL  string     `gorm:"type:varchar(512);column:cover_url"`
	VoteCount int        `gorm:"not null;default:0;column:vote_count"`
	CreatedAt time.Time  `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Series
func (Series) TableName() string {
	return "series"
}

// SeriesDetail holds the synopsis and per-category vote aggregates of a series
type SeriesDetail struct {
	ID                 int64   `gorm:"primaryKey;autoIncrement;column:id"`
	SeriesID           int64   `gorm:"uniqueIndex;not null;column:series_id"`
	Synopsis           string  `gorm:"type:text;column:synopsis"`
	StoryTotal         float64 `gorm:"not null;default:0;column:story_total"`
	StoryCount         int     `gorm:"not null;default:0;column:story_count"`
	CharactersTotal    float64 `gorm:"not null;default:0;column:characters_total"`
	CharactersCount    int     `gorm:"not null;default:0;column:characters_count"`
	WorldbuildingTotal float64 `gorm:"not null;default:0;column:worldbuilding_total"`
	WorldbuildingCount int     `gorm:"not null;default:0;column:worldbuilding_count"`
	ArtTotal           float64 `gorm:"not null;default:0;column:art_total"`
	ArtCount           int     `gorm:"not null;default:0;column:art_count"`
	DramaOrFightTotal  float64 `gorm:"not null;default:0;column:drama_or_fight_total"`
	DramaOrFightCount  int     `gorm:"not null;default:0;column:drama_or_fight_count"`
}

// TableName specifies the table name for SeriesDetail
func (SeriesDetail) TableName() string {
	return "series_details"
}

// VoteCategory is one of the five rating axes
type VoteCategory string

const (
	CategoryStory         VoteCategory = "Story"
	CategoryCharacters    VoteCategory = "Characters"
	CategoryWorldBuilding VoteCategory = "World Building"
	CategoryArt           VoteCategory = "Art"
	CategoryDramaFighting VoteCategory = "Drama / Fighting"
)

// VoteCategories lists the rating axes in display order
var VoteCategories = []VoteCategory{
	CategoryStory,
	CategoryCharacters,
	CategoryWorldBuilding,
	CategoryArt,
	CategoryDramaFighting,
}

// Columns returns the total and count column names for a category
func (c VoteCategory) Columns() (total, count string, ok bool) {
	switch c {
	case CategoryStory:
		return "story_total", "story_count", true
	case CategoryCharacters:
		return "characters_total", "characters_count", true
	case CategoryWorldBuilding:
		return "worldbuilding_total", "worldbuilding_count", true
	case CategoryArt:
		return "art_total", "art_count", true
	case CategoryDramaFighting:
		return "drama_or_fight_total", "drama_or_fight_count", true
	}
	return "", "", false
}

// Average returns the mean score of a category, 0 when nobody voted
func (d *SeriesDetail) Average(c VoteCategory) float64 {
	var total float64
	var count int
	switch c {
	case CategoryStory:
		total, count = d.StoryTotal, d.StoryCount
	case CategoryCharacters:
		total, count = d.CharactersTotal, d.CharactersCount
	case CategoryWorldBuilding:
		total, count = d.WorldbuildingTotal, d.WorldbuildingCount
	case CategoryArt:
		total, count = d.ArtTotal, d.ArtCount
	case CategoryDramaFighting:
		total, count = d.DramaOrFightTotal, d.DramaOrFightCount
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// UserVote records one user's score for one category of one series
type UserVote struct {
	ID        int64        `gorm:"primaryKey;autoIncrement;column:id"`
	UserID    int64        `gorm:"not null;uniqueIndex:idx_user_series_category;column:user_id"`
	SeriesID  int64        `gorm:"not null;uniqueIndex:idx_user_series_category;index;column:series_id"`
	Category  VoteCategory `gorm:"type:varchar(32);not null;uniqueIndex:idx_user_series_category;column:category"`
	Score     int          `gorm:"not null;column:score"`
	CreatedAt time.Time    `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for UserVote
func (UserVote) TableName() string {
	return "user_votes"
}
