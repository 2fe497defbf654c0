// Package report renders an evaluator run to its two documented
// outputs: the primary JSON report, and an optional miss-packet
// directory tree for human visual review.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rulebook-forge/compmatch/internal/evaluator"
	"github.com/rulebook-forge/compmatch/internal/models"
	"github.com/rulebook-forge/compmatch/internal/version"
)

// Document is the JSON shape of the primary report.
type Document struct {
	SchemaVersion      string                            `json:"report_schema_version"`
	RunID              string                            `json:"run_id"`
	Recall             float64                           `json:"recall"`
	RecallNumerator    int                               `json:"recall_numerator"`
	RecallDenominator  int                               `json:"recall_denominator"`
	FalsePositiveCount int                               `json:"false_positive_count"`
	Verdict            string                            `json:"verdict"`
	CeilingNotice      *CeilingNotice                    `json:"ceiling_notice,omitempty"`
	PerTier            map[string]TierEntry              `json:"per_tier"`
	Matches            []MatchEntry                      `json:"matches"`
	FalsePositives     []string                          `json:"false_positives"`
	Misses             []MissEntry                       `json:"misses"`
}

type CeilingNotice struct {
	ExtractedCount   int     `json:"extracted_count"`
	ReferenceCount   int     `json:"reference_count"`
	MaxPossibleRecall float64 `json:"max_possible_recall"`
}

type TierEntry struct {
	References int     `json:"references"`
	Matches    int     `json:"matches"`
	Recall     float64 `json:"recall"`
}

type MatchEntry struct {
	RefID       string  `json:"ref_id"`
	CandidateID string  `json:"candidate_id"`
	Combined    float64 `json:"combined_score"`
	Method      string  `json:"method"`
	PHashDist   int     `json:"phash_dist"`
	DHashDist   int     `json:"dhash_dist"`
	FeatureSim  float64 `json:"feature_sim"`
	FallbackSim float64 `json:"fallback_sim"`
}

type MissEntry struct {
	RefID         string            `json:"ref_id"`
	Audit         string            `json:"audit"`
	HeldByRef     string            `json:"held_by_ref,omitempty"`
	TopCandidates []MatchScoreEntry `json:"top_candidates"`
}

type MatchScoreEntry struct {
	CandidateID     string         `json:"candidate_id"`
	Combined        float64        `json:"combined_score"`
	PHashDist       int            `json:"phash_dist"`
	DHashDist       int            `json:"dhash_dist"`
	FeatureSim      float64        `json:"feature_sim"`
	FallbackSim     float64        `json:"fallback_sim"`
	AdmissibleTier  map[string]bool `json:"admissible_tier"`
}

// Build converts the evaluator report into its JSON document shape.
func Build(r *evaluator.Report) Document {
	doc := Document{
		SchemaVersion:      version.Load().ReportSchemaVersion,
		RunID:              r.RunID,
		Recall:             r.Recall,
		RecallNumerator:    r.RecallNumerator,
		RecallDenominator:  r.RecallDenominator,
		FalsePositiveCount: r.FalsePositiveCount,
		Verdict:            r.Verdict,
		PerTier:            map[string]TierEntry{},
		FalsePositives:     r.FalsePositives,
	}
	if r.HasCeiling {
		doc.CeilingNotice = &CeilingNotice{
			ExtractedCount:    r.ExtractedCount,
			ReferenceCount:    r.ReferenceCount,
			MaxPossibleRecall: r.MaxPossible,
		}
	}
	for t, bd := range r.PerTier {
		doc.PerTier[string(t)] = TierEntry{References: bd.References, Matches: bd.Matches, Recall: bd.Recall}
	}
	for _, m := range r.Matches {
		doc.Matches = append(doc.Matches, MatchEntry{
			RefID:       m.RefID,
			CandidateID: m.CandidateID,
			Combined:    m.Score.Combined,
			Method:      string(m.Method),
			PHashDist:   m.Score.PHashDist,
			DHashDist:   m.Score.DHashDist,
			FeatureSim:  m.Score.FeatureSim,
			FallbackSim: m.Score.FallbackSim,
		})
	}
	for _, miss := range r.Misses {
		e := MissEntry{RefID: miss.RefID, Audit: string(miss.Audit), HeldByRef: miss.HeldByRef}
		for _, c := range miss.TopCandidates {
			admiss := map[string]bool{}
			for _, t := range models.AllTiers {
				admiss[string(t)] = c.AdmissibleTier[t]
			}
			e.TopCandidates = append(e.TopCandidates, MatchScoreEntry{
				CandidateID:    c.CandidateID,
				Combined:       c.Combined,
				PHashDist:      c.PHashDist,
				DHashDist:      c.DHashDist,
				FeatureSim:     c.FeatureSim,
				FallbackSim:    c.FallbackSim,
				AdmissibleTier: admiss,
			})
		}
		doc.Misses = append(doc.Misses, e)
	}
	return doc
}

// WriteJSON marshals the document to w with stable field ordering
// (struct-tag order, not map iteration) and trailing newline.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteMissPackets builds the optional miss-packet directory tree:
// one subdirectory per unmatched reference, each holding a copy of
// the reference image, its top-five candidate images, and a small
// per-miss metrics record.
func WriteMissPackets(dir string, misses []models.MissRecord, refPath map[string]string, candPath map[string]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("miss packets: %w", err)
	}
	for _, miss := range misses {
		sub := filepath.Join(dir, miss.RefID)
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("miss packet %s: %w", miss.RefID, err)
		}
		if rp, ok := refPath[miss.RefID]; ok {
			if err := copyFile(rp, filepath.Join(sub, "reference"+filepath.Ext(rp))); err != nil {
				return err
			}
		}
		for _, c := range miss.TopCandidates {
			if cp, ok := candPath[c.CandidateID]; ok {
				if err := copyFile(cp, filepath.Join(sub, c.CandidateID)); err != nil {
					return err
				}
			}
		}
		metrics, err := os.Create(filepath.Join(sub, "metrics.json"))
		if err != nil {
			return fmt.Errorf("miss packet %s: %w", miss.RefID, err)
		}
		enc := json.NewEncoder(metrics)
		enc.SetIndent("", "  ")
		err = enc.Encode(struct {
			RefID         string                 `json:"ref_id"`
			Audit         string                 `json:"audit"`
			HeldByRef     string                 `json:"held_by_ref,omitempty"`
			TopCandidates []models.CandidateScore `json:"top_candidates"`
		}{miss.RefID, string(miss.Audit), miss.HeldByRef, miss.TopCandidates})
		metrics.Close()
		if err != nil {
			return fmt.Errorf("miss packet %s: %w", miss.RefID, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
