package sigcache

import (
	"testing"

	"github.com/rulebook-forge/compmatch/internal/models"
)

func TestKeyIsDeterministicAndContentSensitive(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	c := []byte{1, 2, 3, 5}

	if Key(a) != Key(b) {
		t.Fatal("expected identical file bytes to produce identical keys")
	}
	if Key(a) == Key(c) {
		t.Fatal("expected different file bytes to produce different keys")
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	m := NewMemory()
	sig := models.Signatures{PHash: 42, DHash: 7, ContentHash: 99}

	if _, ok, err := m.Get("k"); ok || err != nil {
		t.Fatalf("expected a miss on an empty cache, got ok=%v err=%v", ok, err)
	}
	if err := m.Put("k", sig); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := m.Get("k")
	if err != nil || !ok {
		t.Fatalf("expected a hit after Put, got ok=%v err=%v", ok, err)
	}
	if got.PHash != 42 || got.DHash != 7 || got.ContentHash != 99 {
		t.Fatalf("unexpected round-tripped signature: %+v", got)
	}
}

func TestWireSignaturesRoundTrip(t *testing.T) {
	var fallback [64 * 64]float64
	fallback[10] = 0.5
	sig := models.Signatures{
		PHash: 1, DHash: 2, ContentHash: 3,
		Fallback: fallback,
		Features: []models.Descriptor{
			{X: 1, Y: 2, Orientation: 0.5, Bits: [32]byte{1, 2, 3}},
		},
	}

	w := fromModel(sig)
	back := w.toModel()

	if back.PHash != sig.PHash || back.DHash != sig.DHash || back.ContentHash != sig.ContentHash {
		t.Fatalf("scalar fields did not round-trip: %+v vs %+v", back, sig)
	}
	if back.Fallback != sig.Fallback {
		t.Fatal("fallback array did not round-trip")
	}
	if len(back.Features) != 1 || back.Features[0].Bits != sig.Features[0].Bits {
		t.Fatalf("feature descriptors did not round-trip: %+v", back.Features)
	}
}
