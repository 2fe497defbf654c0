package version

import (
	"encoding/json"
	"log"
	"os"
)

// reportSchemaVersion identifies the shape of the primary JSON report
// (package report's Document) a build emits. It is bumped whenever a
// field is added, renamed, or removed there, independent of the
// human-facing release Version below. It describes the compiled
// binary, not a deployment, so it is never read from version.json.
const reportSchemaVersion = "1"

// Info is the evaluator's own build identity: a release Version read
// from version.json alongside the binary, and the ReportSchemaVersion
// this running binary's reports match, so a consumer pinned to an
// older report shape can detect drift without parsing the body.
type Info struct {
	Version             string `json:"version"`
	ReportSchemaVersion string `json:"-"`
}

// Load reads version.json from the working directory. Missing or
// malformed version metadata is not fatal; it degrades to an
// "unknown" placeholder with a logged warning. ReportSchemaVersion is
// always set to the binary's compiled-in value regardless.
func Load() Info {
	data, err := os.ReadFile("version.json")
	if err != nil {
		log.Printf("warning: could not read version.json: %v", err)
		return Info{Version: "0.0.0-unknown", ReportSchemaVersion: reportSchemaVersion}
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		log.Printf("warning: could not parse version.json: %v", err)
		return Info{Version: "0.0.0-unknown", ReportSchemaVersion: reportSchemaVersion}
	}
	info.ReportSchemaVersion = reportSchemaVersion
	return info
}
