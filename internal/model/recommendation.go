package model

import "math"

// ScoredModule is one entry returned by the external recommender.  Score is
// a probability-like value in [0,1].
type ScoredModule struct {
	ModuleID    uint64
	Score       float64
	Explanation string
	Details     map[string]any
}

// ScoreBand classifies a match percentage.  The frontend keys its advice
// text to these bands.
type ScoreBand string

const (
	BandStrong  ScoreBand = "strong"  // 96 and up
	BandGood    ScoreBand = "good"    // 85-95
	BandPartial ScoreBand = "partial" // 70-84
	BandWeak    ScoreBand = "weak"    // below 70
)

// Percent converts a recommender score into the integer percentage shown to
// users.  Out of range scores are clamped.
func Percent(score float64) int {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 100
	}
	return int(math.Round(score * 100))
}

// BandFor maps a percentage onto its band.
func BandFor(percent int) ScoreBand {
	switch {
	case percent >= 96:
		return BandStrong
	case percent >= 85:
		return BandGood
	case percent >= 70:
		return BandPartial
	default:
		return BandWeak
	}
}

// Recommendation is a catalog module paired with its display score.
type Recommendation struct {
	Module      Module         `json:"vkm"`
	Score       int            `json:"score"`
	Band        ScoreBand      `json:"band"`
	Explanation string         `json:"explanation"`
	Details     map[string]any `json:"details,omitempty"`
}
