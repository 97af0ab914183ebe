package domain

import (
	"cmp"
	"slices"
)

// FeatureCount is a genre or artist with the number of evaluations it appeared in.
type FeatureCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// UserPreferences is a preference profile derived from a user's evaluations.
// It is rebuilt on every request and never mutated once returned.
type UserPreferences struct {
	LikedGenres     []FeatureCount `json:"liked_genres"`
	LikedArtists    []FeatureCount `json:"liked_artists"`
	DislikedGenres  []FeatureCount `json:"disliked_genres"`
	DislikedArtists []FeatureCount `json:"disliked_artists"`
	TotalLikes      int            `json:"total_likes"`
	TotalDislikes   int            `json:"total_dislikes"`
}

// TopGenres returns up to limit liked genres, most frequent first.
func (p *UserPreferences) TopGenres(limit int) []string {
	return topValues(p.LikedGenres, limit)
}

// TopArtists returns up to limit liked artists, most frequent first.
func (p *UserPreferences) TopArtists(limit int) []string {
	return topValues(p.LikedArtists, limit)
}

func topValues(counts []FeatureCount, limit int) []string {
	if limit < 0 || limit > len(counts) {
		limit = len(counts)
	}
	out := make([]string, 0, limit)
	for _, fc := range counts[:limit] {
		out = append(out, fc.Value)
	}
	return out
}

// RankByFrequency counts the non-empty values and orders them by count,
// descending. Values with equal counts keep the order in which they were
// first seen.
func RankByFrequency(values []string) []FeatureCount {
	index := make(map[string]int)
	counts := make([]FeatureCount, 0)
	for _, v := range values {
		if v == "" {
			continue
		}
		if i, ok := index[v]; ok {
			counts[i].Count++
			continue
		}
		index[v] = len(counts)
		counts = append(counts, FeatureCount{Value: v, Count: 1})
	}
	slices.SortStableFunc(counts, func(a, b FeatureCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return counts
}
