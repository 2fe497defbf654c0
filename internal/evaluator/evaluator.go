// Package evaluator orchestrates the full run: load references and
// candidates, compute signatures, classify tiers, score every pair,
// solve the one-to-one assignment, and build the audited miss list
// and final verdict.
package evaluator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rulebook-forge/compmatch/internal/assignment"
	"github.com/rulebook-forge/compmatch/internal/concurrency"
	"github.com/rulebook-forge/compmatch/internal/distscore"
	"github.com/rulebook-forge/compmatch/internal/evalerr"
	"github.com/rulebook-forge/compmatch/internal/evallog"
	"github.com/rulebook-forge/compmatch/internal/imageio"
	"github.com/rulebook-forge/compmatch/internal/manifest"
	"github.com/rulebook-forge/compmatch/internal/models"
	"github.com/rulebook-forge/compmatch/internal/scoring"
	"github.com/rulebook-forge/compmatch/internal/sigcache"
	"github.com/rulebook-forge/compmatch/internal/signature"
	"github.com/rulebook-forge/compmatch/internal/tier"
)

const (
	missTopN           = 5
	recallPassFloor    = 0.90
	falsePositiveCap   = 2
)

// Inputs names the three run inputs: a directory of reference images,
// a directory of extracted candidate images, and the upstream
// manifest describing the candidate pool.
type Inputs struct {
	ReferenceDir string
	CandidateDir string
	ManifestPath string
	Workers      int
	// Progress, if non-nil, is invoked after every pair is scored with
	// the cumulative count done and the total pair count. It is only
	// used by the in-process worker pool, not when DistShards is set.
	Progress concurrency.ProgressFunc
	// SigCache, if non-nil, is consulted before recomputing an image's
	// Signatures and populated after a miss, keyed by the image file's
	// raw bytes. Nil means every run recomputes every signature.
	SigCache sigcache.Cache
	// DistShards, if non-nil, routes pairwise scoring through the
	// redis-backed distributed backend instead of the in-process
	// worker pool. Intended for candidate pools too large for one
	// machine to score in reasonable wall-clock time.
	DistShards *distscore.Shards
}

// Report is the full evaluator output, matching the primary-report
// field list: verdict, recall, ceiling notice, matches, false
// positives and miss records.
type Report struct {
	RunID             string
	Verdict           string
	Recall            float64
	RecallNumerator   int
	RecallDenominator int
	FalsePositiveCount int
	HasCeiling        bool
	ExtractedCount    int
	ReferenceCount    int
	MaxPossible       float64
	CeilingNote       string
	PerTier           map[models.Tier]TierBreakdown
	Matches           []models.Match
	FalsePositives    []string
	Misses            []models.MissRecord
	InvariantBroken   bool
	// InvariantErrors holds one *evalerr.Error per broken invariant
	// found while auditing misses (see models.AuditUnexpectedCurrentTierShouldMatch).
	// Non-fatal: the run still completes and returns a report, but a
	// non-empty slice here means the assignment solver's own
	// correctness guarantee was violated and the result should not be
	// trusted.
	InvariantErrors   []*evalerr.Error
	RefPaths          map[string]string
	CandPaths         map[string]string
}

// TierBreakdown is the per-tier recall slice of the report.
type TierBreakdown struct {
	References int
	Matches    int
	Recall     float64
}

// Run executes the full evaluation pipeline.
func Run(ctx context.Context, in Inputs) (*Report, error) {
	log := evallog.New("evaluator")
	runID := uuid.New().String()
	log.Printf("run %s starting", runID)

	refs, err := loadReferences(in.ReferenceDir, in.SigCache)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d references", len(refs))

	mf, err := os.Open(in.ManifestPath)
	if err != nil {
		return nil, evalerr.InputMissing(in.ManifestPath, err)
	}
	defer mf.Close()
	records, err := manifest.Load(mf)
	if err != nil {
		return nil, err
	}
	byName := manifest.IndexByFileName(records)

	cands, err := loadCandidates(in.CandidateDir, byName, in.SigCache)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d candidates (%d manifest records)", len(cands), len(records))

	pairs := concurrency.BuildPairs(refs, cands)
	log.Printf("scoring %d pairs", len(pairs))

	var scores map[[2]string]models.CandidateScore
	if in.DistShards != nil {
		scores, err = in.DistShards.ScoreAll(ctx, pairs, 250*time.Millisecond)
	} else {
		scores, err = concurrency.ScoreAll(ctx, pairs, scoring.Score, concurrency.Options{Workers: in.Workers, Progress: in.Progress})
	}
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}

	result := assignment.Solve(refs, cands, scores)

	report := buildReport(refs, cands, scores, result)
	report.RunID = runID
	for _, ie := range report.InvariantErrors {
		log.Printf("run %s: %v", runID, ie)
	}
	log.Printf("run %s verdict=%s recall=%.4f matches=%d misses=%d", runID, report.Verdict, report.Recall, len(report.Matches), len(report.Misses))
	return report, nil
}

func loadReferences(dir string, cache sigcache.Cache) ([]models.Reference, error) {
	entries, err := imageio.ListImages(dir, nil)
	if err != nil {
		return nil, evalerr.InputMissing(dir, err)
	}
	refs := make([]models.Reference, 0, len(entries))
	for _, e := range entries {
		raster, err := imageio.Load(e.Path)
		if err != nil {
			return nil, evalerr.DecodeFailure(e.Path, err)
		}
		b := raster.Image.Bounds()
		w, h := b.Dx(), b.Dy()
		refs = append(refs, models.Reference{
			RefID:      e.ID,
			Path:       e.Path,
			Width:      w,
			Height:     h,
			Tier:       tier.Classify(w, h),
			Signatures: signatureFor(raster, cache),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].RefID < refs[j].RefID })
	return refs, nil
}

func loadCandidates(dir string, byName map[string]models.ManifestRecord, cache sigcache.Cache) ([]models.Candidate, error) {
	log := evallog.New("candidates")
	entries, err := imageio.ListImages(dir, func(name string) {
		log.Warnf("skipping non-image file %s", name)
	})
	if err != nil {
		return nil, evalerr.InputMissing(dir, err)
	}
	cands := make([]models.Candidate, 0, len(entries))
	for _, e := range entries {
		fileName := filepath.Base(e.Path)
		rec, ok := byName[fileName]
		if !ok {
			// On disk but absent from the manifest: invisible to
			// scoring, matching the documented authoritative-manifest
			// behavior.
			log.Warnf("candidate %s present on disk but absent from manifest, skipping", fileName)
			continue
		}
		raster, err := imageio.Load(e.Path)
		if err != nil {
			return nil, evalerr.DecodeFailure(e.Path, err)
		}
		b := raster.Image.Bounds()
		w, h := b.Dx(), b.Dy()
		cands = append(cands, models.Candidate{
			CandidateID: e.ID,
			Path:        e.Path,
			Width:       w,
			Height:      h,
			Signatures:  signatureFor(raster, cache),
			Manifest:    rec,
		})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].CandidateID < cands[j].CandidateID })
	return cands, nil
}

// signatureFor computes an image's Signatures, consulting cache first
// when one is configured so an unchanged image across repeated runs
// skips phash/dhash/ORB recomputation entirely.
func signatureFor(raster *imageio.Raster, cache sigcache.Cache) models.Signatures {
	if cache == nil {
		return signature.Compute(raster.Image)
	}
	key := sigcache.Key(raster.Bytes)
	if sig, ok, err := cache.Get(key); err == nil && ok {
		return sig
	}
	sig := signature.Compute(raster.Image)
	_ = cache.Put(key, sig)
	return sig
}

func buildReport(refs []models.Reference, cands []models.Candidate, scores map[[2]string]models.CandidateScore, result assignment.Result) *Report {
	matchedRef := make(map[string]*models.Match, len(result.Matches))
	for i := range result.Matches {
		matchedRef[result.Matches[i].RefID] = &result.Matches[i]
	}
	matchedCand := make(map[string]string, len(result.Matches))
	for _, m := range result.Matches {
		matchedCand[m.CandidateID] = m.RefID
	}

	refByID := make(map[string]models.Reference, len(refs))
	for _, r := range refs {
		refByID[r.RefID] = r
	}

	perTier := map[models.Tier]TierBreakdown{}
	for _, t := range models.AllTiers {
		perTier[t] = TierBreakdown{}
	}
	for _, r := range refs {
		bd := perTier[r.Tier]
		bd.References++
		if _, ok := matchedRef[r.RefID]; ok {
			bd.Matches++
		}
		perTier[r.Tier] = bd
	}
	for t, bd := range perTier {
		if bd.References > 0 {
			bd.Recall = float64(bd.Matches) / float64(bd.References)
		}
		perTier[t] = bd
	}

	invariantBroken := false
	var invariantErrors []*evalerr.Error
	misses := make([]models.MissRecord, 0, len(result.UnmatchedRefs))
	for _, refID := range result.UnmatchedRefs {
		ref := refByID[refID]
		top := topCandidates(refID, cands, scores, missTopN)

		var audit models.AuditClassification
		var heldBy string
		if len(top) == 0 {
			audit = models.AuditNoTierMatches
		} else {
			c := top[0]
			currentAdmissible := c.AdmissibleTier[ref.Tier]
			heldByRef, held := matchedCand[c.CandidateID]
			if held {
				heldBy = heldByRef
			}
			switch {
			case currentAdmissible && !held:
				// Our solver always takes a free admissible edge, so
				// this path is the bug indicator the taxonomy names
				// it as: the scorer says this pair should have been
				// matched and the solver left it on the table.
				audit = models.AuditUnexpectedCurrentTierShouldMatch
				invariantBroken = true
				invariantErrors = append(invariantErrors, evalerr.InvariantViolation(refID,
					fmt.Errorf("candidate %s is admissible under tier %s and unheld, but the solver left %s unmatched", c.CandidateID, ref.Tier, refID)))
			case currentAdmissible && held:
				audit = models.AuditAssignmentCompetition
			case anyNonCurrentAdmissible(c, ref.Tier):
				audit = models.AuditWrongTier
			default:
				audit = models.AuditNoTierMatches
			}
		}

		misses = append(misses, models.MissRecord{
			RefID:         refID,
			TopCandidates: top,
			Audit:         audit,
			HeldByRef:     heldBy,
		})
	}
	sort.Slice(misses, func(i, j int) bool { return misses[i].RefID < misses[j].RefID })

	var fps []string
	fps = append(fps, result.UnmatchedCands...)
	sort.Strings(fps)

	totalRefs := len(refs)
	recall := 0.0
	if totalRefs > 0 {
		recall = float64(len(result.Matches)) / float64(totalRefs)
	}

	maxPossible, note := ceilingNotice(len(refs), len(cands))
	hasCeiling := note != ""

	verdict := "FAIL"
	if recall >= recallPassFloor && len(fps) <= falsePositiveCap && !invariantBroken {
		verdict = "PASS"
	}

	return &Report{
		Verdict:            verdict,
		Recall:             recall,
		RecallNumerator:    len(result.Matches),
		RecallDenominator:  totalRefs,
		FalsePositiveCount: len(fps),
		HasCeiling:         hasCeiling,
		ExtractedCount:     len(cands),
		ReferenceCount:     len(refs),
		MaxPossible:        maxPossible,
		CeilingNote:        note,
		PerTier:            perTier,
		Matches:            result.Matches,
		FalsePositives:     fps,
		Misses:             misses,
		InvariantBroken:    invariantBroken,
		InvariantErrors:    invariantErrors,
		RefPaths:           pathIndex(refs),
		CandPaths:          candPathIndex(cands),
	}
}

func pathIndex(refs []models.Reference) map[string]string {
	idx := make(map[string]string, len(refs))
	for _, r := range refs {
		idx[r.RefID] = r.Path
	}
	return idx
}

func candPathIndex(cands []models.Candidate) map[string]string {
	idx := make(map[string]string, len(cands))
	for _, c := range cands {
		idx[c.CandidateID] = c.Path
	}
	return idx
}

// topCandidates returns the missTopN lowest-combined-score candidates
// for a reference, regardless of admissibility, sorted ascending.
func topCandidates(refID string, cands []models.Candidate, scores map[[2]string]models.CandidateScore, n int) []models.CandidateScore {
	all := make([]models.CandidateScore, 0, len(cands))
	for _, c := range cands {
		if s, ok := scores[[2]string{refID, c.CandidateID}]; ok {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Combined != all[j].Combined {
			return all[i].Combined < all[j].Combined
		}
		return all[i].CandidateID < all[j].CandidateID
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func anyNonCurrentAdmissible(s models.CandidateScore, current models.Tier) bool {
	for _, t := range models.AllTiers {
		if t == current {
			continue
		}
		if s.AdmissibleTier[t] {
			return true
		}
	}
	return false
}

// ceilingNotice reports the maximum achievable recall when the
// candidate pool is smaller than the reference set: at most one
// candidate can satisfy one reference under one-to-one matching, so
// recall can never exceed candidates/references regardless of signal
// quality. Purely informational; never affects the verdict.
func ceilingNotice(numRefs, numCands int) (float64, string) {
	if numRefs == 0 || numCands >= numRefs {
		return 1.0, ""
	}
	maxPossible := float64(numCands) / float64(numRefs)
	note := fmt.Sprintf("ceiling: only %d candidates for %d references, max_possible_recall=%.4f", numCands, numRefs, maxPossible)
	return maxPossible, note
}
