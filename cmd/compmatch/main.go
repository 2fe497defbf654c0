// Command compmatch runs one evaluation: it loads a reference
// directory, an extracted-candidate directory and a manifest, scores
// every pair, solves the one-to-one assignment, and writes the
// primary report to stdout (or a file) and, optionally, a miss-packet
// directory tree for visual review.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/rulebook-forge/compmatch/internal/config"
	"github.com/rulebook-forge/compmatch/internal/distscore"
	"github.com/rulebook-forge/compmatch/internal/evaluator"
	"github.com/rulebook-forge/compmatch/internal/progress"
	"github.com/rulebook-forge/compmatch/internal/report"
	"github.com/rulebook-forge/compmatch/internal/reportsign"
	"github.com/rulebook-forge/compmatch/internal/sigcache"
	"github.com/rulebook-forge/compmatch/internal/version"
)

func main() {
	referenceDir := flag.String("references", "", "directory of reference images")
	candidateDir := flag.String("extracted", "", "directory of extracted candidate images")
	manifestPath := flag.String("manifest", "", "path to the candidate manifest JSON file")
	reportPath := flag.String("report", "", "path to write the JSON report (default: stdout)")
	missPacketDir := flag.String("miss-packets", "", "optional directory to write a miss-packet tree into")
	flag.Parse()

	if *referenceDir == "" || *candidateDir == "" || *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "usage: compmatch -references DIR -extracted DIR -manifest FILE [-report FILE] [-miss-packets DIR]")
		os.Exit(2)
	}

	v := version.Load()
	log.Printf("compmatch %s", v.Version)

	cfg := config.Load()

	progressFn := progress.Noop
	if cfg.ProgressEnabled() {
		hub := progress.NewHub()
		srv := &http.Server{Addr: cfg.ProgressWSAddr, Handler: hub}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("progress server stopped: %v", err)
			}
		}()
		defer srv.Close()
		progressFn = hub.Broadcast
	}

	var sigCache sigcache.Cache = sigcache.NewMemory()
	if cfg.SigCacheEnabled() {
		pg, err := sigcache.Open(cfg.SigCacheDSN)
		if err != nil {
			log.Printf("warning: signature cache database unavailable, falling back to in-memory: %v", err)
		} else {
			defer pg.Close()
			sigCache = pg
		}
	}

	var shards *distscore.Shards
	if cfg.DistScoreEnabled() {
		addrs := strings.Split(cfg.DistScoreRedisAddr, ",")
		shards = distscore.NewShards(addrs)
		log.Printf("distributed scoring enabled across %d shard(s)", len(addrs))
	}

	ctx := context.Background()
	r, err := evaluator.Run(ctx, evaluator.Inputs{
		ReferenceDir: *referenceDir,
		CandidateDir: *candidateDir,
		ManifestPath: *manifestPath,
		Workers:      cfg.Workers,
		Progress:     progressFn,
		SigCache:     sigCache,
		DistShards:   shards,
	})
	if err != nil {
		fail(err)
	}

	doc := report.Build(r)

	out := os.Stdout
	if *reportPath != "" {
		f, err := os.Create(*reportPath)
		if err != nil {
			fail(fmt.Errorf("creating report file: %w", err))
		}
		defer f.Close()
		out = f
	}
	if err := report.WriteJSON(out, doc); err != nil {
		fail(fmt.Errorf("writing report: %w", err))
	}

	if cfg.ReportSigningEnabled() {
		signed, err := reportsign.Sign([]byte(cfg.ReportSigningKey), r.Verdict, r.Recall, r.FalsePositiveCount)
		if err != nil {
			log.Printf("warning: report signing failed: %v", err)
		} else {
			fmt.Fprintf(os.Stderr, "report-signature: %s\n", signed)
		}
	}

	if *missPacketDir != "" {
		if err := report.WriteMissPackets(*missPacketDir, r.Misses, r.RefPaths, r.CandPaths); err != nil {
			fail(fmt.Errorf("writing miss packets: %w", err))
		}
	}

	if r.CeilingNote != "" {
		fmt.Fprintln(os.Stderr, r.CeilingNote)
	}

	for _, ie := range r.InvariantErrors {
		fmt.Fprintf(os.Stderr, "compmatch: %v\n", ie)
	}

	if r.Verdict != "PASS" {
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "compmatch: %v\n", err)
	os.Exit(1)
}
