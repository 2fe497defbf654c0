// Package sigcache caches computed Signatures by image content, so a
// repeated run over an unchanged candidate pool skips signature
// recomputation. The default cache is in-memory; an optional
// Postgres-backed cache persists entries across runs. Both are keyed
// by a blake2b digest of the image file's raw bytes (a stronger,
// longer-lived key than the fast xxhash identity hash used for in-run
// dedup).
package sigcache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/blake2b"

	"github.com/rulebook-forge/compmatch/internal/models"
)

// Key derives the long-lived cache key for an image from the raw
// (still encoded) bytes of its file.
func Key(data []byte) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// Cache is satisfied by both backends.
type Cache interface {
	Get(key string) (models.Signatures, bool, error)
	Put(key string, sig models.Signatures) error
}

// Memory is the default, process-local cache.
type Memory struct {
	entries map[string]models.Signatures
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]models.Signatures)}
}

func (m *Memory) Get(key string) (models.Signatures, bool, error) {
	s, ok := m.entries[key]
	return s, ok, nil
}

func (m *Memory) Put(key string, sig models.Signatures) error {
	m.entries[key] = sig
	return nil
}

// Postgres is the optional cross-run cache.
type Postgres struct {
	db *sql.DB
}

// Open connects to dsn and ensures the cache table exists.
func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sigcache: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sigcache: ping: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS signature_cache (
		content_key TEXT PRIMARY KEY,
		signature   JSONB NOT NULL,
		created_at  TIMESTAMPTZ DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("sigcache: migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Get(key string) (models.Signatures, bool, error) {
	var raw []byte
	err := p.db.QueryRow(`SELECT signature FROM signature_cache WHERE content_key = $1`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.Signatures{}, false, nil
	}
	if err != nil {
		return models.Signatures{}, false, fmt.Errorf("sigcache: get: %w", err)
	}
	var wire wireSignatures
	if err := json.Unmarshal(raw, &wire); err != nil {
		return models.Signatures{}, false, fmt.Errorf("sigcache: decode: %w", err)
	}
	return wire.toModel(), true, nil
}

func (p *Postgres) Put(key string, sig models.Signatures) error {
	raw, err := json.Marshal(fromModel(sig))
	if err != nil {
		return fmt.Errorf("sigcache: encode: %w", err)
	}
	_, err = p.db.Exec(`INSERT INTO signature_cache (content_key, signature) VALUES ($1, $2)
		ON CONFLICT (content_key) DO UPDATE SET signature = EXCLUDED.signature`, key, raw)
	if err != nil {
		return fmt.Errorf("sigcache: put: %w", err)
	}
	return nil
}

// wireSignatures is the JSON-friendly projection of models.Signatures;
// the fixed-size Fallback array and Descriptor byte arrays don't
// round-trip cleanly through encoding/json without an intermediate
// slice-based shape.
type wireSignatures struct {
	PHash       uint64         `json:"phash"`
	DHash       uint64         `json:"dhash"`
	Features    []wireFeature  `json:"features"`
	Fallback    []float64      `json:"fallback"`
	ContentHash uint64         `json:"content_hash"`
}

type wireFeature struct {
	X, Y, Orientation float64
	Bits              []byte
}

func fromModel(s models.Signatures) wireSignatures {
	w := wireSignatures{PHash: s.PHash, DHash: s.DHash, ContentHash: s.ContentHash, Fallback: s.Fallback[:]}
	for _, d := range s.Features {
		w.Features = append(w.Features, wireFeature{X: d.X, Y: d.Y, Orientation: d.Orientation, Bits: d.Bits[:]})
	}
	return w
}

func (w wireSignatures) toModel() models.Signatures {
	s := models.Signatures{PHash: w.PHash, DHash: w.DHash, ContentHash: w.ContentHash}
	copy(s.Fallback[:], w.Fallback)
	for _, f := range w.Features {
		var d models.Descriptor
		d.X, d.Y, d.Orientation = f.X, f.Y, f.Orientation
		copy(d.Bits[:], f.Bits)
		s.Features = append(s.Features, d)
	}
	return s
}
