package series

import (
	"cmp"
	"slices"

	"github.com/toonranks/toonranks/internal/models"
)

// FinalScore is the mean of the five category averages. Categories without
// votes count as zero.
func FinalScore(d *models.SeriesDetail) float64 {
	if d == nil {
		return 0
	}
	var sum float64
	for _, c := range models.VoteCategories {
		sum += d.Average(c)
	}
	return sum / float64(len(models.VoteCategories))
}

// rank orders scored series by descending score and numbers them from 1.
// Unscored series follow with a nil rank, in their incoming order.
func rank(series []models.Series, details map[int64]models.SeriesDetail) []RankedSeries {
	var ranked, unranked []RankedSeries
	for _, s := range series {
		item := RankedSeries{SeriesOut: toOut(s)}
		if d, ok := details[s.ID]; ok {
			item.FinalScore = FinalScore(&d)
		}
		if item.FinalScore > 0 {
			ranked = append(ranked, item)
		} else {
			unranked = append(unranked, item)
		}
	}

	slices.SortStableFunc(ranked, func(a, b RankedSeries) int {
		return cmp.Compare(b.FinalScore, a.FinalScore)
	})
	for i := range ranked {
		n := i + 1
		ranked[i].Rank = &n
	}
	return append(ranked, unranked...)
}
