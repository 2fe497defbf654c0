// Command compmatch-worker consumes one shard of the distributed
// scoring queue: it pulls PairPayload tasks enqueued by compmatch
// (when COMPMATCH_DISTSCORE_REDIS_ADDR is set), scores them locally
// with the same algorithm the in-process pool uses, and writes the
// result back to the shared redis key space for the submitting run to
// collect. Run one instance per shard address, or several against the
// same address for more local concurrency.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hibiken/asynq"

	"github.com/rulebook-forge/compmatch/internal/config"
	"github.com/rulebook-forge/compmatch/internal/distscore"
	"github.com/rulebook-forge/compmatch/internal/scoring"
	"github.com/rulebook-forge/compmatch/internal/version"
)

func main() {
	addr := flag.String("redis", "", "redis address for this shard (overrides COMPMATCH_DISTSCORE_REDIS_ADDR)")
	flag.Parse()

	v := version.Load()
	log.Printf("compmatch-worker %s", v.Version)

	cfg := config.Load()
	redisAddr := *addr
	if redisAddr == "" {
		redisAddr = cfg.DistScoreRedisAddr
	}
	if redisAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: compmatch-worker -redis HOST:PORT (or set COMPMATCH_DISTSCORE_REDIS_ADDR)")
		os.Exit(2)
	}

	shard := distscore.NewShards([]string{redisAddr})

	handler := &distscore.Handler{
		Score: scoring.Score,
		Put:   shard.PutResult,
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{Concurrency: cfg.DistScoreShards},
	)
	mux := asynq.NewServeMux()
	mux.Handle(distscore.TaskScorePair, handler)

	log.Printf("compmatch-worker consuming %s", redisAddr)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("compmatch-worker: %v", err)
	}
}
