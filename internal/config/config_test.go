package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMPMATCH_WORKERS", "")
	t.Setenv("COMPMATCH_SIGCACHE_DSN", "")
	t.Setenv("COMPMATCH_DISTSCORE_REDIS_ADDR", "")
	t.Setenv("COMPMATCH_REPORT_SIGNING_KEY", "")
	t.Setenv("COMPMATCH_PROGRESS_WS_ADDR", "")

	cfg := Load()
	if cfg.Workers <= 0 {
		t.Fatalf("expected a positive default worker count, got %d", cfg.Workers)
	}
	if cfg.SigCacheEnabled() || cfg.DistScoreEnabled() || cfg.ReportSigningEnabled() || cfg.ProgressEnabled() {
		t.Fatalf("expected every optional feature disabled by default, got %+v", cfg)
	}
}

func TestLoadHonorsEnv(t *testing.T) {
	t.Setenv("COMPMATCH_WORKERS", "7")
	t.Setenv("COMPMATCH_SIGCACHE_DSN", "postgres://localhost/sigcache")
	t.Setenv("COMPMATCH_REPORT_SIGNING_KEY", "secret")

	cfg := Load()
	if cfg.Workers != 7 {
		t.Fatalf("expected Workers=7, got %d", cfg.Workers)
	}
	if !cfg.SigCacheEnabled() {
		t.Fatal("expected sig cache enabled when DSN is set")
	}
	if !cfg.ReportSigningEnabled() {
		t.Fatal("expected report signing enabled when key is set")
	}
	if cfg.DistScoreEnabled() {
		t.Fatal("expected dist score disabled when addr unset")
	}
}

func TestLoadIgnoresInvalidWorkerCount(t *testing.T) {
	t.Setenv("COMPMATCH_WORKERS", "not-a-number")
	cfg := Load()
	if cfg.Workers <= 0 {
		t.Fatalf("expected fallback to a positive default, got %d", cfg.Workers)
	}
}
