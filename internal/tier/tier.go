// Package tier assigns each reference to a size-based acceptance
// class and holds the per-class acceptance thresholds the scorer
// gates admissibility on.
package tier

import "github.com/rulebook-forge/compmatch/internal/models"

// Thresholds holds the four acceptance gates for one tier. Lower
// distance is better for the hash thresholds; higher similarity is
// better for the feature/fallback thresholds.
type Thresholds struct {
	PHashMax   int
	DHashMax   int
	FeatureMin float64
	FallbackMin float64
}

var table = map[models.Tier]Thresholds{
	models.TierIcon:  {PHashMax: 16, DHashMax: 16, FeatureMin: 0.08, FallbackMin: 0.82},
	models.TierMid:   {PHashMax: 12, DHashMax: 12, FeatureMin: 0.12, FallbackMin: 0.85},
	models.TierBoard: {PHashMax: 10, DHashMax: 10, FeatureMin: 0.15, FallbackMin: 0.88},
}

// For returns the acceptance thresholds for a tier.
func For(t models.Tier) Thresholds {
	return table[t]
}

// Classify assigns a tier from a reference's pixel dimensions,
// applying the rules in order: BOARD first (large board-game boards),
// then ICON (small, texture-poor components), then MID.
func Classify(width, height int) models.Tier {
	minDim := width
	if height < minDim {
		minDim = height
	}
	area := width * height

	switch {
	case area >= 250_000 || minDim >= 600:
		return models.TierBoard
	case minDim < 140 || area < 25_000:
		return models.TierIcon
	default:
		return models.TierMid
	}
}
