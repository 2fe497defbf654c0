package tier

import (
	"testing"

	"github.com/rulebook-forge/compmatch/internal/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name          string
		width, height int
		want          models.Tier
	}{
		{"tiny icon", 64, 64, models.TierIcon},
		{"narrow strip", 800, 50, models.TierIcon},
		{"typical mid", 300, 300, models.TierMid},
		{"large board by area", 600, 500, models.TierBoard},
		{"large board by min dim", 700, 900, models.TierBoard},
		{"just under mid/icon boundary", 139, 400, models.TierIcon},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Classify(c.width, c.height); got != c.want {
				t.Errorf("Classify(%d,%d) = %s, want %s", c.width, c.height, got, c.want)
			}
		})
	}
}

func TestMonotonicity(t *testing.T) {
	// Loosening every threshold (higher caps, lower floors) must never
	// shrink the admissible set for a fixed score.
	tight := Thresholds{PHashMax: 5, DHashMax: 5, FeatureMin: 0.5, FallbackMin: 0.9}
	loose := Thresholds{PHashMax: 20, DHashMax: 20, FeatureMin: 0.1, FallbackMin: 0.5}

	score := models.CandidateScore{PHashDist: 10, DHashDist: 10, FeatureSim: 0.2, FallbackSim: 0.6}

	admissible := func(s models.CandidateScore, th Thresholds) bool {
		return s.PHashDist <= th.PHashMax || s.DHashDist <= th.DHashMax ||
			s.FeatureSim >= th.FeatureMin || s.FallbackSim >= th.FallbackMin
	}

	if admissible(score, tight) && !admissible(score, loose) {
		t.Fatalf("loosening thresholds made an admissible pair inadmissible")
	}
}

func TestForReturnsAllTiers(t *testing.T) {
	for _, tr := range models.AllTiers {
		th := For(tr)
		if th.PHashMax <= 0 || th.DHashMax <= 0 {
			t.Errorf("tier %s has unset thresholds: %+v", tr, th)
		}
	}
}
