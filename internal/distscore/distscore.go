// Package distscore is an optional distributed backend for the
// pairwise scoring step: instead of the in-process worker pool in
// package concurrency, pair-scoring tasks are enqueued on one of
// several redis-backed asynq shards (chosen by rendezvous hashing on
// ref_id, so a given reference's tasks always land on the same shard
// and its candidates have good cache locality) and results are
// collected from a shared redis key space. Intended for very large
// candidate pools split across multiple worker processes; the
// default in-process pool is sufficient for ordinary runs.
package distscore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/rulebook-forge/compmatch/internal/concurrency"
	"github.com/rulebook-forge/compmatch/internal/evallog"
	"github.com/rulebook-forge/compmatch/internal/models"
)

const TaskScorePair = "compmatch:score_pair"

// PairPayload is the asynq task payload for one scoring unit.
type PairPayload struct {
	RefID       string `json:"ref_id"`
	CandidateID string `json:"candidate_id"`
	Ref         models.Reference `json:"ref"`
	Candidate   models.Candidate `json:"candidate"`
}

// Shards fronts N redis-backed asynq clients, selecting one per
// reference by rendezvous hashing so repeat runs over the same
// reference set route consistently even as shard membership changes.
type Shards struct {
	addrs    []string
	clients  []*asynq.Client
	redis    []*redis.Client
	hash     *rendezvous.Rendezvous
}

// NewShards connects to every address in addrs, each an independent
// redis instance backing one asynq queue.
func NewShards(addrs []string) *Shards {
	s := &Shards{addrs: addrs}
	members := make([]string, len(addrs))
	for i, addr := range addrs {
		s.clients = append(s.clients, asynq.NewClient(asynq.RedisClientOpt{Addr: addr}))
		s.redis = append(s.redis, redis.NewClient(&redis.Options{Addr: addr}))
		members[i] = addr
	}
	s.hash = rendezvous.New(members, xxhash.Sum64String)
	return s
}

func (s *Shards) shardFor(refID string) int {
	addr := s.hash.Lookup(refID)
	for i, a := range s.addrs {
		if a == addr {
			return i
		}
	}
	return 0
}

// Enqueue submits one scoring task, routed by the reference's shard.
func (s *Shards) Enqueue(ctx context.Context, ref models.Reference, cand models.Candidate) error {
	payload, err := json.Marshal(PairPayload{RefID: ref.RefID, CandidateID: cand.CandidateID, Ref: ref, Candidate: cand})
	if err != nil {
		return fmt.Errorf("distscore: marshal payload: %w", err)
	}
	idx := s.shardFor(ref.RefID)
	task := asynq.NewTask(TaskScorePair, payload)
	_, err = s.clients[idx].EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("distscore: enqueue %s/%s: %w", ref.RefID, cand.CandidateID, err)
	}
	return nil
}

// PutResult stores a completed score under a shared key, keyed by
// the pair so any shard's worker can write and the collector can read
// regardless of which shard produced it.
func (s *Shards) PutResult(ctx context.Context, score models.CandidateScore) error {
	idx := s.shardFor(score.RefID)
	raw, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("distscore: marshal result: %w", err)
	}
	key := resultKey(score.RefID, score.CandidateID)
	return s.redis[idx].Set(ctx, key, raw, 0).Err()
}

// CollectResult reads back a completed score for one pair, if present.
func (s *Shards) CollectResult(ctx context.Context, refID, candID string) (models.CandidateScore, bool, error) {
	idx := s.shardFor(refID)
	key := resultKey(refID, candID)
	raw, err := s.redis[idx].Get(ctx, key).Bytes()
	if err == redis.Nil {
		return models.CandidateScore{}, false, nil
	}
	if err != nil {
		return models.CandidateScore{}, false, fmt.Errorf("distscore: get result: %w", err)
	}
	var s2 models.CandidateScore
	if err := json.Unmarshal(raw, &s2); err != nil {
		return models.CandidateScore{}, false, fmt.Errorf("distscore: decode result: %w", err)
	}
	return s2, true, nil
}

func resultKey(refID, candID string) string {
	return "compmatch:result:" + refID + ":" + candID
}

// ScoreAll is the distributed counterpart of concurrency.ScoreAll: it
// enqueues every pair onto its shard, then polls redis until every
// result lands or the context is cancelled. pollInterval bounds how
// often an unfinished pair is re-checked.
func (s *Shards) ScoreAll(ctx context.Context, pairs []concurrency.Pair, pollInterval time.Duration) (map[[2]string]models.CandidateScore, error) {
	log := evallog.New("distscore")
	for _, p := range pairs {
		if err := s.Enqueue(ctx, p.Ref, p.Candidate); err != nil {
			return nil, err
		}
	}
	log.Printf("enqueued %d pairs across %d shards", len(pairs), len(s.addrs))

	out := make(map[[2]string]models.CandidateScore, len(pairs))
	for len(out) < len(pairs) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		progressed := false
		for _, p := range pairs {
			key := [2]string{p.Ref.RefID, p.Candidate.CandidateID}
			if _, done := out[key]; done {
				continue
			}
			score, ok, err := s.CollectResult(ctx, p.Ref.RefID, p.Candidate.CandidateID)
			if err != nil {
				return nil, err
			}
			if ok {
				out[key] = score
				progressed = true
			}
		}
		if len(out) == len(pairs) {
			break
		}
		if !progressed {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
	log.Printf("collected %d/%d results", len(out), len(pairs))
	return out, nil
}

// Handler processes one PairPayload. Registered against an
// asynq.ServeMux by a separate worker process consuming the shard
// queues NewShards enqueues onto.
type Handler struct {
	Score func(ref models.Reference, cand models.Candidate) models.CandidateScore
	Put   func(ctx context.Context, score models.CandidateScore) error
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p PairPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("distscore: unmarshal payload: %w", err)
	}
	score := h.Score(p.Ref, p.Candidate)
	return h.Put(ctx, score)
}
