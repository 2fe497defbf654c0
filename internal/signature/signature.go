// Package signature computes the four perceptual signals the
// evaluator scores every (reference, candidate) pair on: a perceptual
// hash (DCT-based), a difference hash, a local-feature descriptor
// set, and a coarse grayscale fallback fingerprint. All four are pure
// functions of decoded pixel data, so signature computation is
// deterministic in the image bytes regardless of how the file was
// discovered on disk.
package signature

import (
	"fmt"
	"image"
	"math"
	"math/bits"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"

	"github.com/rulebook-forge/compmatch/internal/models"
)

const (
	phashSampleSize = 32
	phashBlockSize  = 8
	dhashWidth      = 9
	dhashHeight     = 8
	fallbackSize    = 64
)

// Compute produces the full Signatures record for a decoded image.
func Compute(img image.Image) models.Signatures {
	gray := grayscalePixels(img, phashSampleSize, phashSampleSize)
	dctBlock := dct2D8x8(gray, phashSampleSize)

	return models.Signatures{
		PHash:       phash(dctBlock),
		DHash:       dhash(img),
		Features:    extractDescriptors(img),
		Fallback:    fallbackFingerprint(img),
		ContentHash: contentHash(img),
	}
}

// HammingDistance is the bit-count of a XOR b, range [0,64].
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// grayscalePixels resizes img to w×h and returns row-major luminance
// values in [0,255].
func grayscalePixels(img image.Image, w, h int) []float64 {
	resized := imaging.Resize(img, w, h, imaging.Lanczos)
	grayImg := imaging.Grayscale(resized)

	out := make([]float64, w*h)
	bounds := grayImg.Bounds()
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := grayImg.At(x, y).RGBA()
			out[idx] = float64(r >> 8)
			idx++
		}
	}
	return out
}

// dct2D8x8 runs a 2D DCT-II over an n×n grayscale sample and returns
// the top-left 8×8 coefficient block, row-major.
func dct2D8x8(pixels []float64, n int) []float64 {
	block := make([]float64, phashBlockSize*phashBlockSize)
	for u := 0; u < phashBlockSize; u++ {
		for v := 0; v < phashBlockSize; v++ {
			var sum float64
			for x := 0; x < n; x++ {
				cu := math.Cos(math.Pi / float64(n) * (float64(x) + 0.5) * float64(u))
				for y := 0; y < n; y++ {
					cv := math.Cos(math.Pi / float64(n) * (float64(y) + 0.5) * float64(v))
					sum += pixels[x*n+y] * cu * cv
				}
			}
			alpha := func(k int) float64 {
				if k == 0 {
					return 1.0 / math.Sqrt(float64(n))
				}
				return math.Sqrt(2.0 / float64(n))
			}
			block[u*phashBlockSize+v] = alpha(u) * alpha(v) * sum
		}
	}
	return block
}

// phash packs the 8×8 DCT block into 64 bits: bit i is 1 iff
// coefficient i exceeds the median of the block computed with the DC
// term (index 0) excluded.
func phash(block []float64) uint64 {
	withoutDC := make([]float64, 0, len(block)-1)
	for i, v := range block {
		if i == 0 {
			continue
		}
		withoutDC = append(withoutDC, v)
	}
	median := medianOf(withoutDC)

	var hash uint64
	for i, v := range block {
		if v > median {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// dhash resizes to 9×8 grayscale and sets bit i iff the right
// neighbor of pixel i is brighter than pixel i.
func dhash(img image.Image) uint64 {
	pixels := grayscalePixels(img, dhashWidth, dhashHeight)

	var hash uint64
	bit := 0
	for y := 0; y < dhashHeight; y++ {
		for x := 0; x < dhashWidth-1; x++ {
			left := pixels[y*dhashWidth+x]
			right := pixels[y*dhashWidth+x+1]
			if right > left {
				hash |= 1 << uint(bit)
			}
			bit++
		}
	}
	return hash
}

// fallbackFingerprint resizes to 64×64 grayscale and normalizes to
// [0,1].
func fallbackFingerprint(img image.Image) [fallbackSize * fallbackSize]float64 {
	pixels := grayscalePixels(img, fallbackSize, fallbackSize)
	var out [fallbackSize * fallbackSize]float64
	for i, v := range pixels {
		out[i] = v / 255.0
	}
	return out
}

// FallbackSimilarity returns 1 - mean(|a-b|), range [0,1].
func FallbackSimilarity(a, b [fallbackSize * fallbackSize]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	mean := sum / float64(len(a))
	return 1.0 - mean
}

// contentHash is a fast, non-cryptographic digest of the decoded
// pixel grid (its dimensions and every pixel's full RGBA value), used
// for the identity fast path in package scoring.
func contentHash(img image.Image) uint64 {
	b := img.Bounds()
	d := xxhash.New()
	fmt.Fprintf(d, "%dx%d:", b.Dx(), b.Dy())
	row := make([]byte, 0, 8*b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row = row[:0]
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			row = append(row, byte(r>>8), byte(r), byte(g>>8), byte(g), byte(bl>>8), byte(bl), byte(a>>8), byte(a))
		}
		d.Write(row)
	}
	return d.Sum64()
}

func medianOf(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > v {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = v
	}
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}
