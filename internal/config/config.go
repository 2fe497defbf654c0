// Package config carries the evaluator's deployment-level knobs —
// where to find an optional signature-cache database, an optional
// distributed-scorer Redis broker, an optional report-signing key —
// loaded from the environment. Scoring semantics (thresholds,
// directories, tier tables) are never read from here; those are
// constructor arguments.
package config

import (
	"os"
	"runtime"
	"strconv"
)

type Config struct {
	// Workers bounds the pairwise-scoring worker pool size.
	Workers int

	// SigCacheDSN, when set, points the signature cache at Postgres
	// instead of the default in-memory map.
	SigCacheDSN string

	// DistScoreRedisAddr, when set, enables the distributed scorer
	// backend instead of the in-process worker pool.
	DistScoreRedisAddr string
	DistScoreShards    int

	// ReportSigningKey, when set, causes cmd/compmatch to print a
	// signed attestation of the verdict fields to stderr; the JSON
	// report itself carries no signature.
	ReportSigningKey string

	// ProgressWSAddr, when set, starts a websocket progress broadcaster
	// listening on this address for the duration of the run.
	ProgressWSAddr string
}

func Load() *Config {
	return &Config{
		Workers:            envInt("COMPMATCH_WORKERS", runtime.NumCPU()),
		SigCacheDSN:        env("COMPMATCH_SIGCACHE_DSN", ""),
		DistScoreRedisAddr: env("COMPMATCH_DISTSCORE_REDIS_ADDR", ""),
		DistScoreShards:    envInt("COMPMATCH_DISTSCORE_SHARDS", 4),
		ReportSigningKey:   env("COMPMATCH_REPORT_SIGNING_KEY", ""),
		ProgressWSAddr:     env("COMPMATCH_PROGRESS_WS_ADDR", ""),
	}
}

func (c *Config) SigCacheEnabled() bool     { return c.SigCacheDSN != "" }
func (c *Config) DistScoreEnabled() bool    { return c.DistScoreRedisAddr != "" }
func (c *Config) ReportSigningEnabled() bool { return c.ReportSigningKey != "" }
func (c *Config) ProgressEnabled() bool     { return c.ProgressWSAddr != "" }

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}
