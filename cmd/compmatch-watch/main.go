// Command compmatch-watch is an optional wrapper that reruns the
// evaluator on a cron schedule, for a CI job that wants a standing
// process rather than one-shot invocation — e.g. nightly regression
// runs against a growing reference set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rulebook-forge/compmatch/internal/config"
	"github.com/rulebook-forge/compmatch/internal/evaluator"
	"github.com/rulebook-forge/compmatch/internal/report"
)

func main() {
	referenceDir := flag.String("references", "", "directory of reference images")
	candidateDir := flag.String("extracted", "", "directory of extracted candidate images")
	manifestPath := flag.String("manifest", "", "path to the candidate manifest JSON file")
	reportDir := flag.String("report-dir", ".", "directory to write timestamped reports into")
	schedule := flag.String("schedule", "@daily", "cron expression for rerun cadence")
	flag.Parse()

	if *referenceDir == "" || *candidateDir == "" || *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "usage: compmatch-watch -references DIR -extracted DIR -manifest FILE [-schedule CRON] [-report-dir DIR]")
		os.Exit(2)
	}

	cfg := config.Load()
	in := evaluator.Inputs{
		ReferenceDir: *referenceDir,
		CandidateDir: *candidateDir,
		ManifestPath: *manifestPath,
		Workers:      cfg.Workers,
	}

	c := cron.New()
	_, err := c.AddFunc(*schedule, func() { runOnce(in, *reportDir) })
	if err != nil {
		log.Fatalf("compmatch-watch: invalid schedule %q: %v", *schedule, err)
	}

	log.Printf("compmatch-watch: scheduled %q, first run now", *schedule)
	runOnce(in, *reportDir)
	c.Run()
}

func runOnce(in evaluator.Inputs, reportDir string) {
	r, err := evaluator.Run(context.Background(), in)
	if err != nil {
		log.Printf("compmatch-watch: run failed: %v", err)
		return
	}

	path := fmt.Sprintf("%s/report-%s.json", reportDir, runStamp())
	f, err := os.Create(path)
	if err != nil {
		log.Printf("compmatch-watch: writing report: %v", err)
		return
	}
	defer f.Close()

	doc := report.Build(r)
	if err := report.WriteJSON(f, doc); err != nil {
		log.Printf("compmatch-watch: encoding report: %v", err)
		return
	}
	log.Printf("compmatch-watch: wrote %s (verdict=%s recall=%.4f)", path, r.Verdict, r.Recall)
}

func runStamp() string {
	return time.Now().Format("20060102-150405")
}
