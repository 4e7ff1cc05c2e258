package ndvi

import (
	"fmt"
	"math"

	"github.com/towerguard/site-health/internal/adapter/fetch"
	"github.com/towerguard/site-health/internal/domain"
)

// QA60 bitmask flags.
const (
	qaCloud  = 1 << 10
	qaCirrus = 1 << 11
)

// Masked reports whether a QA60 value flags the pixel as cloud or cirrus.
func Masked(qa int) bool {
	return qa&(qaCloud|qaCirrus) != 0
}

// Composite masks cloud and cirrus pixels, averages each pixel's NDVI over
// the scenes where it is clear, and returns the mean and population standard
// deviation of that per-pixel composite. A window with no clear pixel in any
// scene yields ErrNoImagery.
func Composite(scenes []Scene) (domain.NDVIStats, error) {
	if len(scenes) == 0 {
		return domain.NDVIStats{}, ErrNoImagery
	}

	width := len(scenes[0].Red)
	sums := make([]float64, width)
	counts := make([]int, width)
	usedScenes := 0

	for _, s := range scenes {
		if len(s.Red) != width || len(s.NIR) != width || len(s.QA) != width {
			return domain.NDVIStats{}, fmt.Errorf("%w: %w: scene %s band lengths differ", fetch.ErrUnavailable, fetch.ErrMalformed, s.ID)
		}
		clearPixels := 0
		for i := 0; i < width; i++ {
			if Masked(s.QA[i]) || s.Red[i] == nil || s.NIR[i] == nil {
				continue
			}
			v, ok := index(*s.Red[i], *s.NIR[i])
			if !ok {
				continue
			}
			sums[i] += v
			counts[i]++
			clearPixels++
		}
		if clearPixels > 0 {
			usedScenes++
		}
	}

	var composite []float64
	for i := range sums {
		if counts[i] > 0 {
			composite = append(composite, sums[i]/float64(counts[i]))
		}
	}
	if len(composite) == 0 {
		return domain.NDVIStats{}, ErrNoImagery
	}

	mean, std := meanStd(composite)
	return domain.NDVIStats{Mean: mean, Std: std, Scenes: usedScenes, Pixels: len(composite)}, nil
}

// index computes (NIR − Red) / (NIR + Red), clamped to [-1, 1].
func index(red, nir float64) (float64, bool) {
	den := nir + red
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, (nir-red)/den)), true
}

func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
