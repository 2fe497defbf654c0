// Package scoring computes the combined distance between a reference
// and a candidate from their four signals, and decides admissibility
// against a tier's acceptance gates.
//
// Weights:
//   - Hash agreement (min of phash/dhash distance): 55%
//   - Texture/fallback similarity:                  45%
package scoring

import (
	"github.com/rulebook-forge/compmatch/internal/models"
	"github.com/rulebook-forge/compmatch/internal/signature"
	"github.com/rulebook-forge/compmatch/internal/tier"
)

const (
	// WeightHash is the combined-score weight given to the better of
	// the two hash distances.
	WeightHash = 0.55
	// WeightTexture is the combined-score weight given to the
	// effective feature/fallback similarity.
	WeightTexture = 0.45
	// TextureScale puts (1 - similarity) on roughly the same numeric
	// range as the hash distances (0-64) so neither signal dominates
	// by construction.
	TextureScale = 20.0

	// featureFloor is the minimum feature similarity treated as
	// meaningful; below it the fallback signature is used instead,
	// since sparse/noisy descriptor sets produce near-zero similarity
	// that would otherwise always lose to the fallback even when the
	// fallback itself is weak.
	featureFloor = 0.05
)

// Score computes the full CandidateScore for one (reference, candidate)
// pair, including per-tier admissibility. A matching content hash
// (byte-identical decoded pixels) short-circuits straight to a
// zero-distance, fully-admissible score, skipping the Hamming/feature
// distance work entirely.
func Score(ref models.Reference, cand models.Candidate) models.CandidateScore {
	if ref.Signatures.ContentHash == cand.Signatures.ContentHash {
		return identicalScore(ref, cand)
	}

	phashDist := signature.HammingDistance(ref.Signatures.PHash, cand.Signatures.PHash)
	dhashDist := signature.HammingDistance(ref.Signatures.DHash, cand.Signatures.DHash)
	featureSim := signature.FeatureSimilarity(ref.Signatures.Features, cand.Signatures.Features)
	fallbackSim := signature.FallbackSimilarity(ref.Signatures.Fallback, cand.Signatures.Fallback)

	effectiveFeatureSim := featureSim
	if featureSim < featureFloor {
		effectiveFeatureSim = fallbackSim
	}

	minHashDist := phashDist
	if dhashDist < minHashDist {
		minHashDist = dhashDist
	}

	combined := WeightHash*float64(minHashDist) + WeightTexture*(1-effectiveFeatureSim)*TextureScale

	s := models.CandidateScore{
		RefID:          ref.RefID,
		CandidateID:    cand.CandidateID,
		PHashDist:      phashDist,
		DHashDist:      dhashDist,
		FeatureSim:     featureSim,
		FallbackSim:    fallbackSim,
		Combined:       combined,
		AdmissibleTier: map[models.Tier]bool{},
	}
	for _, t := range models.AllTiers {
		s.AdmissibleTier[t] = Admissible(s, t)
	}
	return s
}

func identicalScore(ref models.Reference, cand models.Candidate) models.CandidateScore {
	s := models.CandidateScore{
		RefID:          ref.RefID,
		CandidateID:    cand.CandidateID,
		PHashDist:      0,
		DHashDist:      0,
		FeatureSim:     1,
		FallbackSim:    1,
		Combined:       0,
		AdmissibleTier: map[models.Tier]bool{},
	}
	for _, t := range models.AllTiers {
		s.AdmissibleTier[t] = true
	}
	return s
}

// Admissible reports whether a precomputed score clears at least one
// of tier t's four gates. Any single signal can carry admissibility.
func Admissible(s models.CandidateScore, t models.Tier) bool {
	th := tier.For(t)
	return s.PHashDist <= th.PHashMax ||
		s.DHashDist <= th.DHashMax ||
		s.FeatureSim >= th.FeatureMin ||
		s.FallbackSim >= th.FallbackMin
}

// BestMethod reports which signal most comfortably clears tier t's
// gate, for diagnostic labeling of a Match. It never influences
// Combined or admissibility.
func BestMethod(s models.CandidateScore, t models.Tier) models.Method {
	th := tier.For(t)

	margins := map[models.Method]float64{}
	if th.PHashMax > 0 {
		margins[models.MethodPHash] = float64(th.PHashMax-s.PHashDist) / float64(th.PHashMax)
	}
	if th.DHashMax > 0 {
		margins[models.MethodDHash] = float64(th.DHashMax-s.DHashDist) / float64(th.DHashMax)
	}
	margins[models.MethodFeatures] = s.FeatureSim - th.FeatureMin
	margins[models.MethodFallback] = s.FallbackSim - th.FallbackMin

	best := models.MethodFallback
	bestMargin := margins[best]
	for _, m := range []models.Method{models.MethodPHash, models.MethodDHash, models.MethodFeatures} {
		if margins[m] > bestMargin {
			best = m
			bestMargin = margins[m]
		}
	}
	return best
}
