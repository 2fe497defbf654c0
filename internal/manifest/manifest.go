// Package manifest decodes the upstream extraction pipeline's
// candidate manifest: one JSON record per candidate image, carrying
// the required identity fields plus arbitrary pass-through metadata.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cast"

	"github.com/rulebook-forge/compmatch/internal/evalerr"
	"github.com/rulebook-forge/compmatch/internal/models"
)

// rawRecord is the loosely-typed wire shape; fields may arrive as
// strings, numbers, or missing entirely depending on the upstream
// writer, so required fields are coerced with cast rather than
// decoded directly into their final Go types.
type rawRecord map[string]any

// Load reads a JSON array of candidate manifest records from r and
// validates the required fields on each. Non-JSON input, a non-array
// top level, or a record missing file_name/width/height all fail with
// a ManifestMalformed error naming the offending record's index.
func Load(r io.Reader) ([]models.ManifestRecord, error) {
	var raw []rawRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, evalerr.ManifestMalformed("<manifest>", fmt.Errorf("not a JSON array of records: %w", err))
	}

	out := make([]models.ManifestRecord, 0, len(raw))
	for i, rec := range raw {
		m, err := toRecord(rec)
		if err != nil {
			return nil, evalerr.ManifestMalformed(fmt.Sprintf("record %d", i), err)
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}

func toRecord(rec rawRecord) (models.ManifestRecord, error) {
	fileNameRaw, ok := rec["file_name"]
	if !ok {
		return models.ManifestRecord{}, fmt.Errorf("missing required field file_name")
	}
	fileName, err := cast.ToStringE(fileNameRaw)
	if err != nil || fileName == "" {
		return models.ManifestRecord{}, fmt.Errorf("file_name must be a non-empty string")
	}

	widthRaw, ok := rec["width"]
	if !ok {
		return models.ManifestRecord{}, fmt.Errorf("%s: missing required field width", fileName)
	}
	width, err := cast.ToIntE(widthRaw)
	if err != nil || width <= 0 {
		return models.ManifestRecord{}, fmt.Errorf("%s: width must be a positive integer", fileName)
	}

	heightRaw, ok := rec["height"]
	if !ok {
		return models.ManifestRecord{}, fmt.Errorf("%s: missing required field height", fileName)
	}
	height, err := cast.ToIntE(heightRaw)
	if err != nil || height <= 0 {
		return models.ManifestRecord{}, fmt.Errorf("%s: height must be a positive integer", fileName)
	}

	extra := make(map[string]any, len(rec))
	for k, v := range rec {
		switch k {
		case "file_name", "width", "height":
			continue
		}
		extra[k] = v
	}

	return models.ManifestRecord{FileName: fileName, Width: width, Height: height, Extra: extra}, nil
}

// IndexByFileName builds a lookup keyed by file name, for joining
// manifest records against images discovered on disk. A candidate
// present on disk but absent from the manifest has no entry here and
// is therefore invisible to scoring, matching the documented behavior
// of treating the manifest as the authoritative candidate set.
func IndexByFileName(records []models.ManifestRecord) map[string]models.ManifestRecord {
	idx := make(map[string]models.ManifestRecord, len(records))
	for _, r := range records {
		idx[r.FileName] = r
	}
	return idx
}
