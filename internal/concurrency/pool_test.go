package concurrency

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rulebook-forge/compmatch/internal/models"
)

func TestBuildPairsIsFullCrossProduct(t *testing.T) {
	refs := []models.Reference{{RefID: "r2"}, {RefID: "r1"}}
	cands := []models.Candidate{{CandidateID: "c2"}, {CandidateID: "c1"}}

	pairs := BuildPairs(refs, cands)

	if len(pairs) != 4 {
		t.Fatalf("expected 4 pairs for 2x2, got %d", len(pairs))
	}
	if pairs[0].Ref.RefID != "r1" || pairs[0].Candidate.CandidateID != "c1" {
		t.Fatalf("expected deterministic sorted order, first pair was %+v", pairs[0])
	}
	if pairs[len(pairs)-1].Ref.RefID != "r2" || pairs[len(pairs)-1].Candidate.CandidateID != "c2" {
		t.Fatalf("expected deterministic sorted order, last pair was %+v", pairs[len(pairs)-1])
	}
}

func TestScoreAllCoversEveryPair(t *testing.T) {
	refs := []models.Reference{{RefID: "r1"}, {RefID: "r2"}}
	cands := []models.Candidate{{CandidateID: "c1"}, {CandidateID: "c2"}, {CandidateID: "c3"}}
	pairs := BuildPairs(refs, cands)

	var calls int64
	score := func(ref models.Reference, cand models.Candidate) models.CandidateScore {
		atomic.AddInt64(&calls, 1)
		return models.CandidateScore{RefID: ref.RefID, CandidateID: cand.CandidateID, Combined: 1}
	}

	out, err := ScoreAll(context.Background(), pairs, score, Options{Workers: 3})
	if err != nil {
		t.Fatalf("ScoreAll: %v", err)
	}
	if len(out) != len(pairs) {
		t.Fatalf("expected %d scored pairs, got %d", len(pairs), len(out))
	}
	if int(calls) != len(pairs) {
		t.Fatalf("expected score func called once per pair, got %d calls for %d pairs", calls, len(pairs))
	}
	for _, p := range pairs {
		key := [2]string{p.Ref.RefID, p.Candidate.CandidateID}
		if _, ok := out[key]; !ok {
			t.Errorf("missing result for pair %v", key)
		}
	}
}

func TestScoreAllPropagatesCancellation(t *testing.T) {
	refs := []models.Reference{{RefID: "r1"}}
	cands := make([]models.Candidate, 200)
	for i := range cands {
		cands[i] = models.Candidate{CandidateID: string(rune('a' + i%26))}
	}
	pairs := BuildPairs(refs, cands)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	score := func(ref models.Reference, cand models.Candidate) models.CandidateScore {
		return models.CandidateScore{RefID: ref.RefID, CandidateID: cand.CandidateID}
	}

	_, err := ScoreAll(ctx, pairs, score, Options{Workers: 2})
	if err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
}

func TestScoreAllDefaultsWorkers(t *testing.T) {
	pairs := BuildPairs([]models.Reference{{RefID: "r1"}}, []models.Candidate{{CandidateID: "c1"}})
	score := func(ref models.Reference, cand models.Candidate) models.CandidateScore {
		return models.CandidateScore{RefID: ref.RefID, CandidateID: cand.CandidateID}
	}
	out, err := ScoreAll(context.Background(), pairs, score, Options{Workers: 0})
	if err != nil {
		t.Fatalf("ScoreAll with Workers=0: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
}
