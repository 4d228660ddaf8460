// Package series serves the catalogue, rankings and five-category voting.
package series

import "github.com/toonranks/toonranks/internal/models"

// SeriesOut is the public view of a series
type SeriesOut struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Genre     string `json:"genre"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Author    string `json:"author"`
	Artist    string `json:"artist"`
	CoverURL  string `json:"cover_url"`
	VoteCount int    `json:"vote_count"`
}

// RankedSeries is a series with its score; Rank is nil while nobody voted
type RankedSeries struct {
	SeriesOut
	FinalScore float64 `json:"final_score"`
	Rank       *int    `json:"rank"`
}

// DetailOut is the synopsis and vote aggregates of a series
type DetailOut struct {
	SeriesID           int64              `json:"series_id"`
	Synopsis           string             `json:"synopsis"`
	Author             string             `json:"author"`
	Artist             string             `json:"artist"`
	StoryTotal         float64            `json:"story_total"`
	StoryCount         int                `json:"story_count"`
	CharactersTotal    float64            `json:"characters_total"`
	CharactersCount    int                `json:"characters_count"`
	WorldbuildingTotal float64            `json:"worldbuilding_total"`
	WorldbuildingCount int                `json:"worldbuilding_count"`
	ArtTotal           float64            `json:"art_total"`
	ArtCount           int                `json:"art_count"`
	DramaOrFightTotal  float64            `json:"drama_or_fight_total"`
	DramaOrFightCount  int                `json:"drama_or_fight_count"`
	Averages           map[string]float64 `json:"averages"`
	VoteScores         map[string]int     `json:"vote_scores"`
	VoteCounts         map[string]int64   `json:"vote_counts"`
}

// CreateInput is the payload for a new series
type CreateInput struct {
	Title  string
	Genre  string
	Type   string
	Status string
	Author string
	Artist string
}

// UpdateInput changes a series; nil fields are left untouched
type UpdateInput struct {
	Title  *string `json:"title"`
	Genre  *string `json:"genre"`
	Type   *string `json:"type"`
	Status *string `json:"status"`
	Author *string `json:"author"`
	Artist *string `json:"artist"`
}

// Cover is an uploaded cover image
type Cover struct {
	Filename    string
	ContentType string
	Data        []byte
}

func toOut(s models.Series) SeriesOut {
	return SeriesOut{
		ID:        s.ID,
		Title:     s.Title,
		Genre:     s.Genre,
		Type:      string(s.Type),
		Status:    s.Status,
		Author:    s.Author,
		Artist:    s.Artist,
		CoverURL:  s.CoverURL,
		VoteCount: s.VoteCount,
	}
}
