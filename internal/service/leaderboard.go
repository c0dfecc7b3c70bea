package service

import (
	"sort"

	"quizclash/internal/model"
)

// Rank orders a room snapshot for display: score descending, ties kept in
// join order. The sort is stable so identical inputs always rank the same
// way, which keeps reconnecting clients consistent with each other.
func Rank(records []model.PlayerScore) []model.PlayerScore {
	ranked := make([]model.PlayerScore, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
