package evaluator

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rulebook-forge/compmatch/internal/assignment"
	"github.com/rulebook-forge/compmatch/internal/evalerr"
	"github.com/rulebook-forge/compmatch/internal/models"
)

func admissibleScore(ref, cand string, combined float64, tiers ...models.Tier) models.CandidateScore {
	adm := map[models.Tier]bool{}
	for _, t := range tiers {
		adm[t] = true
	}
	return models.CandidateScore{RefID: ref, CandidateID: cand, Combined: combined, AdmissibleTier: adm}
}

func TestBuildReportConservation(t *testing.T) {
	refs := []models.Reference{
		{RefID: "r1", Tier: models.TierMid},
		{RefID: "r2", Tier: models.TierMid},
		{RefID: "r3", Tier: models.TierIcon},
	}
	cands := []models.Candidate{
		{CandidateID: "c1"}, {CandidateID: "c2"}, {CandidateID: "c3"}, {CandidateID: "c4"},
	}
	scores := map[[2]string]models.CandidateScore{
		{"r1", "c1"}: admissibleScore("r1", "c1", 0.1, models.TierMid),
		{"r2", "c2"}: admissibleScore("r2", "c2", 0.2, models.TierMid),
		{"r3", "c3"}: {RefID: "r3", CandidateID: "c3", Combined: 9, AdmissibleTier: map[models.Tier]bool{}},
		{"r3", "c4"}: {RefID: "r3", CandidateID: "c4", Combined: 9, AdmissibleTier: map[models.Tier]bool{}},
	}

	result := assignment.Solve(refs, cands, scores)
	report := buildReport(refs, cands, scores, result)

	if len(report.Matches)+len(report.Misses) != len(refs) {
		t.Fatalf("conservation violated: matches(%d)+misses(%d) != references(%d)", len(report.Matches), len(report.Misses), len(refs))
	}
	if len(report.Matches)+len(report.FalsePositives) != len(cands) {
		t.Fatalf("conservation violated: matches(%d)+false_positives(%d) != candidates(%d)", len(report.Matches), len(report.FalsePositives), len(cands))
	}
	if len(report.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(report.Matches))
	}
	if len(report.Misses) != 1 || report.Misses[0].RefID != "r3" {
		t.Fatalf("expected r3 to miss, got %+v", report.Misses)
	}
	if report.Misses[0].Audit != models.AuditNoTierMatches {
		t.Fatalf("expected NO_TIER_MATCHES audit, got %s", report.Misses[0].Audit)
	}
}

func TestBuildReportVerdictPassesAtRecallFloor(t *testing.T) {
	refs := make([]models.Reference, 10)
	cands := make([]models.Candidate, 10)
	scores := map[[2]string]models.CandidateScore{}
	for i := 0; i < 10; i++ {
		refID := refIDFor(i)
		candID := candIDFor(i)
		refs[i] = models.Reference{RefID: refID, Tier: models.TierMid}
		cands[i] = models.Candidate{CandidateID: candID}
		if i < 9 {
			scores[[2]string{refID, candID}] = admissibleScore(refID, candID, 0.1, models.TierMid)
		} else {
			scores[[2]string{refID, candID}] = models.CandidateScore{RefID: refID, CandidateID: candID, AdmissibleTier: map[models.Tier]bool{}}
		}
	}

	result := assignment.Solve(refs, cands, scores)
	report := buildReport(refs, cands, scores, result)

	if report.Recall < 0.90 {
		t.Fatalf("expected recall >= 0.90, got %f", report.Recall)
	}
	if report.Verdict != "PASS" {
		t.Fatalf("expected PASS at 90%% recall with 1 false positive, got %s (fp=%d)", report.Verdict, report.FalsePositiveCount)
	}
}

func TestBuildReportFailsOnExcessFalsePositives(t *testing.T) {
	refs := []models.Reference{{RefID: "r1", Tier: models.TierMid}}
	cands := []models.Candidate{{CandidateID: "c1"}, {CandidateID: "c2"}, {CandidateID: "c3"}, {CandidateID: "c4"}}
	scores := map[[2]string]models.CandidateScore{
		{"r1", "c1"}: admissibleScore("r1", "c1", 0.1, models.TierMid),
	}

	result := assignment.Solve(refs, cands, scores)
	report := buildReport(refs, cands, scores, result)

	if report.FalsePositiveCount != 3 {
		t.Fatalf("expected 3 false positives (c2,c3,c4), got %d", report.FalsePositiveCount)
	}
	if report.Verdict != "FAIL" {
		t.Fatalf("expected FAIL when false positives exceed the cap, got %s", report.Verdict)
	}
}

// TestBuildReportSurfacesInvariantErrors forces the
// AuditUnexpectedCurrentTierShouldMatch path directly at the
// buildReport level (bypassing assignment.Solve, which never
// actually leaves a free admissible edge on the table) to verify the
// audit still surfaces a matching *evalerr.Error alongside the bool.
func TestBuildReportSurfacesInvariantErrors(t *testing.T) {
	refs := []models.Reference{{RefID: "r1", Tier: models.TierMid}}
	cands := []models.Candidate{{CandidateID: "c1"}}
	scores := map[[2]string]models.CandidateScore{
		{"r1", "c1"}: admissibleScore("r1", "c1", 0.1, models.TierMid),
	}
	result := assignment.Result{UnmatchedRefs: []string{"r1"}}

	report := buildReport(refs, cands, scores, result)

	if !report.InvariantBroken {
		t.Fatal("expected InvariantBroken=true")
	}
	if len(report.InvariantErrors) != 1 {
		t.Fatalf("expected exactly one invariant error, got %d: %+v", len(report.InvariantErrors), report.InvariantErrors)
	}
	if report.InvariantErrors[0].Code != evalerr.CodeInvariantViolation {
		t.Fatalf("expected CodeInvariantViolation, got %s", report.InvariantErrors[0].Code)
	}
	if report.InvariantErrors[0].Path != "r1" {
		t.Fatalf("expected the error to name the offending reference, got %+v", report.InvariantErrors[0])
	}
	if report.Verdict != "FAIL" {
		t.Fatalf("a broken invariant must force FAIL regardless of recall, got %s", report.Verdict)
	}
}

func TestCeilingNotice(t *testing.T) {
	maxPossible, note := ceilingNotice(10, 4)
	if note == "" {
		t.Fatal("expected a ceiling notice when candidates < references")
	}
	if maxPossible != 0.4 {
		t.Fatalf("expected max_possible_recall=0.4, got %f", maxPossible)
	}

	maxPossible, note = ceilingNotice(4, 10)
	if note != "" {
		t.Fatalf("expected no ceiling notice when candidates >= references, got %q", note)
	}
	if maxPossible != 1.0 {
		t.Fatalf("expected max_possible_recall=1.0, got %f", maxPossible)
	}
}

func refIDFor(i int) string  { return "r" + string(rune('0'+i)) }
func candIDFor(i int) string { return "c" + string(rune('0'+i)) }

// TestLoadReferencesAndCandidates exercises the disk-loading path end
// to end: decoding, ID derivation, and manifest join by file name,
// without depending on any particular perceptual-hash outcome.
func TestLoadReferencesAndCandidates(t *testing.T) {
	refDir := t.TempDir()
	candDir := t.TempDir()

	writePNG(t, filepath.Join(refDir, "widget-a.png"), 120, 80, color.Gray{Y: 40})
	writePNG(t, filepath.Join(candDir, "widget-a_extracted.png"), 120, 80, color.Gray{Y: 40})
	writePNG(t, filepath.Join(candDir, "stray.png"), 64, 64, color.Gray{Y: 200})
	os.WriteFile(filepath.Join(candDir, "notes.txt"), []byte("not an image"), 0o644)

	refs, err := loadReferences(refDir, nil)
	if err != nil {
		t.Fatalf("loadReferences: %v", err)
	}
	if len(refs) != 1 || refs[0].RefID != "widget-a" {
		t.Fatalf("expected a single reference with basename ID, got %+v", refs)
	}

	byName := map[string]models.ManifestRecord{
		"widget-a_extracted.png": {FileName: "widget-a_extracted.png", Width: 120, Height: 80},
	}
	cands, err := loadCandidates(candDir, byName, nil)
	if err != nil {
		t.Fatalf("loadCandidates: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected stray.png (absent from manifest) to be excluded, got %+v", cands)
	}
	if cands[0].CandidateID != "widget-a_extracted" {
		t.Fatalf("expected basename-without-extension candidate ID, got %s", cands[0].CandidateID)
	}
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
