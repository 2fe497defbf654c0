package signature

import (
	"image"
	"math"
	"math/bits"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/rulebook-forge/compmatch/internal/models"
)

const (
	canonicalSize     = 256 // working resolution for corner detection, fixed so results depend only on pixel content
	maxDescriptors    = 500
	cornerResponseMin = 12.0 // minimum central-difference gradient-magnitude response to qualify as a keypoint
	cellSuppression   = 8    // grid cell size in pixels for non-maximum suppression: at most one keypoint per cell
	descriptorPairs   = 256  // number of sampled intensity-pair tests, one per bit
	loweRatio         = 0.8
	minDescriptorSet  = 8
)

// samplePattern is a fixed, deterministic set of point-pair offsets
// (in a unit disk around the keypoint) used for the binary intensity
// tests, in the style of a BRIEF/ORB descriptor. Generated once from
// a fixed low-discrepancy angular sweep so every keypoint uses the
// same pattern before rotation.
var samplePattern = buildSamplePattern()

func buildSamplePattern() [descriptorPairs][2][2]float64 {
	var pattern [descriptorPairs][2][2]float64
	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < descriptorPairs; i++ {
		r1 := 3.0 + 9.0*float64(i%13)/13.0
		r2 := 3.0 + 9.0*float64((i+5)%13)/13.0
		a1 := float64(i) * goldenAngle
		a2 := a1 + math.Pi/2 + float64(i%7)*0.3
		pattern[i][0] = [2]float64{r1 * math.Cos(a1), r1 * math.Sin(a1)}
		pattern[i][1] = [2]float64{r2 * math.Cos(a2), r2 * math.Sin(a2)}
	}
	return pattern
}

// extractDescriptors finds keypoints on a canonical-resolution
// grayscale rendering of img and builds a rotated binary descriptor
// for each. Keypoints are the strongest central-difference
// gradient-magnitude points, one per suppression cell; no corner test
// (Harris, FAST or similar) is applied, so strong edge points qualify
// as well as corners. The canonical resize makes the result a pure function of
// pixel content, independent of the source image's native dimensions.
func extractDescriptors(img image.Image) []models.Descriptor {
	resized := imaging.Resize(img, canonicalSize, canonicalSize, imaging.Lanczos)
	gray := imaging.Grayscale(resized)

	w, h := canonicalSize, canonicalSize
	pix := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := gray.At(x, y).RGBA()
			pix[y*w+x] = float64(r >> 8)
		}
	}

	type kp struct {
		x, y     int
		response float64
		orient   float64
	}
	var candidates []kp
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := pix[y*w+x+1] - pix[y*w+x-1]
			gy := pix[(y+1)*w+x] - pix[(y-1)*w+x]
			response := math.Hypot(gx, gy)
			if response < cornerResponseMin {
				continue
			}
			candidates = append(candidates, kp{x: x, y: y, response: response, orient: math.Atan2(gy, gx)})
		}
	}

	// Deterministic ordering: strongest response first, ties broken by
	// position, so non-maximum suppression and the descriptor cap
	// behave identically across runs.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].response != candidates[j].response {
			return candidates[i].response > candidates[j].response
		}
		if candidates[i].y != candidates[j].y {
			return candidates[i].y < candidates[j].y
		}
		return candidates[i].x < candidates[j].x
	})

	var kept []kp
	occupied := make(map[[2]int]bool)
	for _, c := range candidates {
		cell := [2]int{c.x / cellSuppression, c.y / cellSuppression}
		if occupied[cell] {
			continue
		}
		occupied[cell] = true
		kept = append(kept, c)
		if len(kept) >= maxDescriptors {
			break
		}
	}

	descriptors := make([]models.Descriptor, 0, len(kept))
	for _, c := range kept {
		d := models.Descriptor{X: float64(c.x), Y: float64(c.y), Orientation: c.orient}
		cosA, sinA := math.Cos(c.orient), math.Sin(c.orient)
		for i := 0; i < descriptorPairs; i++ {
			p1 := samplePattern[i][0]
			p2 := samplePattern[i][1]
			x1 := c.x + int(p1[0]*cosA-p1[1]*sinA)
			y1 := c.y + int(p1[0]*sinA+p1[1]*cosA)
			x2 := c.x + int(p2[0]*cosA-p2[1]*sinA)
			y2 := c.y + int(p2[0]*sinA+p2[1]*cosA)
			if samplePixel(pix, w, h, x1, y1) > samplePixel(pix, w, h, x2, y2) {
				d.Bits[i/8] |= 1 << uint(i%8)
			}
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}

func samplePixel(pix []float64, w, h, x, y int) float64 {
	if x < 0 {
		x = 0
	}
	if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= h {
		y = h - 1
	}
	return pix[y*w+x]
}

func descriptorDistance(a, b models.Descriptor) int {
	dist := 0
	for i := range a.Bits {
		dist += bits.OnesCount8(a.Bits[i] ^ b.Bits[i])
	}
	return dist
}

// FeatureSimilarity implements the ratio-test matching described in
// spec: the fraction of the smaller set's descriptors whose nearest
// neighbor in the larger set beats the second-nearest by loweRatio,
// scaled by a set-size completion factor. Symmetric in its arguments
// since "smaller"/"larger" is resolved by set size, not call order.
func FeatureSimilarity(a, b []models.Descriptor) float64 {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	if len(small) < minDescriptorSet || len(large) < minDescriptorSet {
		return 0
	}

	good := 0
	for _, d := range small {
		best, second := int(^uint(0)>>1), int(^uint(0)>>1)
		for _, l := range large {
			dist := descriptorDistance(d, l)
			if dist < best {
				second = best
				best = dist
			} else if dist < second {
				second = dist
			}
		}
		if float64(best) < loweRatio*float64(second) {
			good++
		}
	}

	completion := float64(len(small)) / float64(len(large))
	return (float64(good) / float64(len(small))) * completion
}
