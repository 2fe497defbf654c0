// Package concurrency runs the pairwise reference/candidate scoring
// step across a bounded, fixed-worker-count channel-fed pool, built on
// errgroup for propagation and golang.org/x/time/rate for optional
// external throttling.
package concurrency

import (
	"context"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rulebook-forge/compmatch/internal/evallog"
	"github.com/rulebook-forge/compmatch/internal/models"
)

// Pair is one (reference, candidate) unit of scoring work.
type Pair struct {
	Ref       models.Reference
	Candidate models.Candidate
}

// ScoreFunc computes the score for one pair. It must be safe to call
// concurrently from multiple workers.
type ScoreFunc func(ref models.Reference, cand models.Candidate) models.CandidateScore

// ProgressFunc is invoked after each pair completes, with the
// cumulative count done and the total. Implementations (e.g. package
// progress) must not block meaningfully, since it runs on the
// scoring path.
type ProgressFunc func(done, total int)

// Options configures the pool. Workers <= 0 defaults to 1. Limiter
// may be nil, meaning unthrottled.
type Options struct {
	Workers  int
	Limiter  *rate.Limiter
	Progress ProgressFunc
}

// ScoreAll scores every pair concurrently and returns a map keyed by
// (ref_id, candidate_id), ready for package assignment to consume.
// Scoring order across workers is not meaningful; the assignment
// solver re-sorts by ref_id/candidate_id before producing output, so
// the non-deterministic completion order here never reaches the
// user-visible report.
func ScoreAll(ctx context.Context, pairs []Pair, score ScoreFunc, opts Options) (map[[2]string]models.CandidateScore, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	log := evallog.New("scoring")
	total := len(pairs)
	var done int64

	out := make(map[[2]string]models.CandidateScore, total)
	resultsCh := make(chan models.CandidateScore, workers*2)

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan Pair, workers)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for p := range work {
				if opts.Limiter != nil {
					if err := opts.Limiter.Wait(gctx); err != nil {
						return err
					}
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				s := score(p.Ref, p.Candidate)
				resultsCh <- s
				n := atomic.AddInt64(&done, 1)
				if opts.Progress != nil {
					opts.Progress(int(n), total)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(work)
		for _, p := range pairs {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case work <- p:
			}
		}
		return nil
	})

	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		for s := range resultsCh {
			out[[2]string{s.RefID, s.CandidateID}] = s
		}
	}()

	err := g.Wait()
	close(resultsCh)
	<-collectDone

	if err != nil {
		log.Warnf("scoring aborted after %d/%d pairs: %v", atomic.LoadInt64(&done), total, err)
		return nil, err
	}
	log.Printf("scored %d pairs", total)
	return out, nil
}

// BuildPairs constructs the full reference×candidate cross product in
// a deterministic (ref_id, candidate_id) order. Candidates have no
// tier of their own — admissibility is always evaluated against the
// reference's tier (see package scoring) — so every candidate is a
// scoring candidate for every reference; the tier gate, not a
// pre-filter, is what narrows the admissible set.
func BuildPairs(refs []models.Reference, cands []models.Candidate) []Pair {
	sortedRefs := append([]models.Reference(nil), refs...)
	sort.Slice(sortedRefs, func(i, j int) bool { return sortedRefs[i].RefID < sortedRefs[j].RefID })

	sortedCands := append([]models.Candidate(nil), cands...)
	sort.Slice(sortedCands, func(i, j int) bool { return sortedCands[i].CandidateID < sortedCands[j].CandidateID })

	pairs := make([]Pair, 0, len(sortedRefs)*len(sortedCands))
	for _, r := range sortedRefs {
		for _, c := range sortedCands {
			pairs = append(pairs, Pair{Ref: r, Candidate: c})
		}
	}
	return pairs
}
