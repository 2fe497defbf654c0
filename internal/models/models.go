// Package models holds the domain types shared across the evaluator
// pipeline: references, candidates, signatures, scores, matches and
// the diagnostic records produced for unmatched references.
package models

import "fmt"

// Tier is a size-based acceptance class. Thresholds in package tier
// are keyed by Tier.
type Tier string

const (
	TierIcon  Tier = "ICON"
	TierMid   Tier = "MID"
	TierBoard Tier = "BOARD"
)

var AllTiers = [3]Tier{TierIcon, TierMid, TierBoard}

// Signatures bundles the four perceptual signals computed for an
// image. All fields are deterministic in the decoded image bytes.
type Signatures struct {
	PHash       uint64
	DHash       uint64
	Features    []Descriptor
	Fallback    [64 * 64]float64
	ContentHash uint64 // fast xxhash digest of the raw decoded pixels, used for cache/identity fast-paths
}

// Descriptor is a single keypoint/descriptor pair from the local
// feature detector. Orientation is carried for rotation invariance;
// Bits holds the packed binary descriptor (256 bits, 32 bytes).
type Descriptor struct {
	X, Y        float64
	Orientation float64
	Bits        [32]byte
}

// Reference is a truth-set image: the evaluator is trying to locate
// its match among the candidate pool.
type Reference struct {
	RefID      string
	Path       string
	Width      int
	Height     int
	Tier       Tier
	Signatures Signatures
}

// Candidate is an image produced by the upstream extraction pipeline.
// It may or may not correspond to any Reference.
type Candidate struct {
	CandidateID string
	Path        string
	Width       int
	Height      int
	Signatures  Signatures
	Manifest    ManifestRecord
}

// ManifestRecord is the upstream-written metadata for one candidate.
// FileName/Width/Height are required; Extra carries every other field
// verbatim for diagnostic output — the evaluator never interprets it.
type ManifestRecord struct {
	FileName string
	Width    int
	Height   int
	Extra    map[string]any
}

// CandidateScore is the full per-pair scoring record.
type CandidateScore struct {
	RefID          string
	CandidateID    string
	PHashDist      int
	DHashDist      int
	FeatureSim     float64
	FallbackSim    float64
	Combined       float64
	AdmissibleTier map[Tier]bool
}

// Admissible reports whether this pair clears the reference's own
// tier gate.
func (s CandidateScore) Admissible(t Tier) bool {
	return s.AdmissibleTier[t]
}

// Method identifies which signal is reported as having carried a
// match; purely diagnostic, never changes Combined.
type Method string

const (
	MethodPHash    Method = "phash"
	MethodDHash    Method = "dhash"
	MethodFeatures Method = "features"
	MethodFallback Method = "fallback"
)

// Match is a single accepted (reference, candidate) assignment.
type Match struct {
	RefID       string
	CandidateID string
	Score       CandidateScore
	Method      Method
}

// AuditClassification explains why a reference went unmatched.
type AuditClassification string

const (
	AuditWrongTier                      AuditClassification = "WRONG_TIER"
	AuditNoTierMatches                  AuditClassification = "NO_TIER_MATCHES"
	AuditThresholdMismatch              AuditClassification = "THRESHOLD_MISMATCH"
	AuditUnexpectedCurrentTierShouldMatch AuditClassification = "UNEXPECTED_CURRENT_TIER_SHOULD_MATCH"
	AuditAssignmentCompetition          AuditClassification = "ASSIGNMENT_COMPETITION"
)

// MissRecord documents an unmatched reference: its top candidates in
// ascending combined-score order, plus the audit verdict.
type MissRecord struct {
	RefID          string
	TopCandidates  []CandidateScore
	Audit          AuditClassification
	HeldByRef      string // ref_id currently holding the top candidate, if any
}

// String satisfies fmt.Stringer for log lines.
func (m Match) String() string {
	return fmt.Sprintf("%s->%s (%s, score=%.3f)", m.RefID, m.CandidateID, m.Method, m.Score.Combined)
}
