package signature

import (
	"testing"

	"github.com/rulebook-forge/compmatch/internal/models"
)

func TestHammingDistance(t *testing.T) {
	if d := HammingDistance(0b1010, 0b1010); d != 0 {
		t.Fatalf("expected 0 for identical hashes, got %d", d)
	}
	if d := HammingDistance(0b1111, 0b0000); d != 4 {
		t.Fatalf("expected 4 differing bits, got %d", d)
	}
	if d := HammingDistance(^uint64(0), 0); d != 64 {
		t.Fatalf("expected 64 for fully inverted hashes, got %d", d)
	}
}

func TestFallbackSimilarityIdentical(t *testing.T) {
	var a [fallbackSize * fallbackSize]float64
	for i := range a {
		a[i] = float64(i%256) / 255.0
	}
	if sim := FallbackSimilarity(a, a); sim != 1.0 {
		t.Fatalf("expected similarity 1.0 for identical fingerprints, got %f", sim)
	}
}

func TestFallbackSimilarityOpposite(t *testing.T) {
	var a, b [fallbackSize * fallbackSize]float64
	for i := range a {
		a[i] = 0.0
		b[i] = 1.0
	}
	if sim := FallbackSimilarity(a, b); sim != 0.0 {
		t.Fatalf("expected similarity 0.0 for maximally different fingerprints, got %f", sim)
	}
}

func mkDescriptor(seed byte) models.Descriptor {
	d := models.Descriptor{}
	for i := range d.Bits {
		d.Bits[i] = seed
	}
	return d
}

func TestFeatureSimilarityBelowMinSetIsZero(t *testing.T) {
	small := []models.Descriptor{mkDescriptor(1), mkDescriptor(2)}
	large := make([]models.Descriptor, 20)
	for i := range large {
		large[i] = mkDescriptor(byte(i))
	}
	if sim := FeatureSimilarity(small, large); sim != 0 {
		t.Fatalf("expected 0 similarity when the smaller set is below the minimum size, got %f", sim)
	}
}

func TestFeatureSimilarityIdenticalSetsIsHigh(t *testing.T) {
	set := make([]models.Descriptor, minDescriptorSet)
	for i := range set {
		set[i] = mkDescriptor(byte(i * 7))
	}
	sim := FeatureSimilarity(set, set)
	if sim < 0.9 {
		t.Fatalf("expected near-perfect similarity comparing a descriptor set against itself, got %f", sim)
	}
}

func TestFeatureSimilaritySymmetric(t *testing.T) {
	a := make([]models.Descriptor, minDescriptorSet)
	b := make([]models.Descriptor, minDescriptorSet+4)
	for i := range a {
		a[i] = mkDescriptor(byte(i))
	}
	for i := range b {
		b[i] = mkDescriptor(byte(i * 3))
	}
	if FeatureSimilarity(a, b) != FeatureSimilarity(b, a) {
		t.Fatal("expected FeatureSimilarity to be symmetric regardless of argument order")
	}
}
