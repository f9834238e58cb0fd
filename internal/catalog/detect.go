package catalog

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mcara/alignqa/internal/monitoring"
)

// DetectParams controls point-source detection on image data.
type DetectParams struct {
	Threshold    float64 // detection threshold in sky-sigma units
	ConvWidth    float64 // Gaussian kernel FWHM in pixels
	ComputeSigma bool    // derive sky sigma from the image
	SkySigma     float64 // used when ComputeSigma is false
	PeakMin      float64 // minimum raw peak value (0 disables)
	PeakMax      float64 // maximum raw peak value (0 disables)
	NBright      int     // keep only the N brightest sources (0 keeps all)
}

// DefaultDetectParams returns detection parameters matching the tuning
// used for well-exposed pipeline products.
func DefaultDetectParams() DetectParams {
	return DetectParams{
		Threshold:    4.0,
		ConvWidth:    3.5,
		ComputeSigma: true,
		NBright:      2000,
	}
}

// DetectSources runs DAOFIND-style point-source detection on a chip
// image: sigma-clipped sky statistics, Gaussian smoothing, local-maximum
// peak search above threshold, and marginal-centroid refinement. The
// image is row-major with nx columns; returned positions are 1-based.
//
// If the configured threshold finds nothing and the sky sigma was
// supplied by the caller, detection is retried once with an
// image-derived sigma before giving up.
func DetectSources(data []float64, nx, ny int, p DetectParams) []Source {
	if len(data) != nx*ny || nx < 3 || ny < 3 {
		return nil
	}

	sigma := p.SkySigma
	if p.ComputeSigma || sigma <= 0 {
		sigma = computeSkySigma(data)
	}

	srcs := findPeaks(data, nx, ny, sigma, p)
	if len(srcs) == 0 && !p.ComputeSigma {
		monitoring.Logf("no sources found with supplied sky sigma, retrying with image statistics")
		sigma = computeSkySigma(data)
		srcs = findPeaks(data, nx, ny, sigma, p)
	}

	sortByFluxDesc(srcs)
	if p.NBright > 0 && len(srcs) > p.NBright {
		srcs = srcs[:p.NBright]
	}
	for i := range srcs {
		srcs[i].ID = i
	}
	return srcs
}

// computeSkySigma estimates the sky noise as the sigma-clipped standard
// deviation of the pixel distribution (3 clipping passes).
func computeSkySigma(data []float64) float64 {
	work := make([]float64, len(data))
	copy(work, data)

	mean := stat.Mean(work, nil)
	std := math.Sqrt(stat.Variance(work, nil))

	for iter := 0; iter < 3 && std > 0; iter++ {
		lo := mean - 3*std
		hi := mean + 3*std
		kept := work[:0]
		for _, v := range work {
			if v >= lo && v <= hi {
				kept = append(kept, v)
			}
		}
		if len(kept) < 2 || len(kept) == len(work) {
			work = kept
			break
		}
		work = kept
		mean = stat.Mean(work, nil)
		std = math.Sqrt(stat.Variance(work, nil))
	}

	if len(work) < 2 {
		return 0
	}
	return math.Sqrt(stat.Variance(work, nil))
}

// findPeaks locates local maxima in the smoothed image above
// sigma*threshold and refines each with a marginal centroid.
func findPeaks(data []float64, nx, ny int, sigma float64, p DetectParams) []Source {
	hmin := sigma * p.Threshold
	if hmin <= 0 {
		return nil
	}

	sky := clippedMean(data)
	smooth := gaussianSmooth(data, nx, ny, p.ConvWidth)
	half := kernelHalfWidth(p.ConvWidth)

	var srcs []Source
	for y := 1; y < ny-1; y++ {
		for x := 1; x < nx-1; x++ {
			v := smooth[y*nx+x] - sky
			if v < hmin {
				continue
			}
			if !isLocalMax(smooth, nx, x, y) {
				continue
			}

			rawPeak := data[y*nx+x]
			if p.PeakMin > 0 && rawPeak < p.PeakMin {
				continue
			}
			if p.PeakMax > 0 && rawPeak > p.PeakMax {
				continue
			}

			cx, cy, flux := marginalCentroid(data, nx, ny, x, y, half, sky)
			if flux <= 0 {
				continue
			}

			// Convert from 0-based array indices to FITS 1-based pixels.
			srcs = append(srcs, Source{X: cx + 1, Y: cy + 1, Flux: flux})
		}
	}
	return srcs
}

func clippedMean(data []float64) float64 {
	work := make([]float64, len(data))
	copy(work, data)
	mean := stat.Mean(work, nil)
	std := math.Sqrt(stat.Variance(work, nil))
	if std == 0 {
		return mean
	}
	lo, hi := mean-3*std, mean+3*std
	kept := work[:0]
	for _, v := range work {
		if v >= lo && v <= hi {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return mean
	}
	return stat.Mean(kept, nil)
}

func isLocalMax(img []float64, nx, x, y int) bool {
	v := img[y*nx+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if img[(y+dy)*nx+(x+dx)] > v {
				return false
			}
		}
	}
	return true
}

func kernelHalfWidth(fwhm float64) int {
	half := int(math.Ceil(fwhm))
	if half < 2 {
		half = 2
	}
	return half
}

// gaussianSmooth convolves the image with a separable Gaussian kernel
// whose FWHM is given in pixels. Edges use renormalized partial kernels.
func gaussianSmooth(data []float64, nx, ny int, fwhm float64) []float64 {
	if fwhm <= 0 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}
	sigma := fwhm / 2.3548
	half := kernelHalfWidth(fwhm)

	kernel := make([]float64, 2*half+1)
	for i := -half; i <= half; i++ {
		kernel[i+half] = math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
	}

	tmp := make([]float64, len(data))
	out := make([]float64, len(data))

	// Horizontal pass.
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			var sum, wsum float64
			for k := -half; k <= half; k++ {
				xx := x + k
				if xx < 0 || xx >= nx {
					continue
				}
				w := kernel[k+half]
				sum += w * data[y*nx+xx]
				wsum += w
			}
			tmp[y*nx+x] = sum / wsum
		}
	}

	// Vertical pass.
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			var sum, wsum float64
			for k := -half; k <= half; k++ {
				yy := y + k
				if yy < 0 || yy >= ny {
					continue
				}
				w := kernel[k+half]
				sum += w * tmp[yy*nx+x]
				wsum += w
			}
			out[y*nx+x] = sum / wsum
		}
	}

	return out
}

// marginalCentroid refines a peak position with flux-weighted marginal
// sums over a box of the given half-width. Returns 0-based centroid
// coordinates and the background-subtracted flux in the box.
func marginalCentroid(data []float64, nx, ny, px, py, half int, sky float64) (cx, cy, flux float64) {
	x0, x1 := px-half, px+half
	y0, y1 := py-half, py+half
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 >= nx {
		x1 = nx - 1
	}
	if y1 >= ny {
		y1 = ny - 1
	}

	var sumX, sumY float64
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			v := data[y*nx+x] - sky
			if v <= 0 {
				continue
			}
			flux += v
			sumX += v * float64(x)
			sumY += v * float64(y)
		}
	}
	if flux <= 0 {
		return float64(px), float64(py), 0
	}
	return sumX / flux, sumY / flux, flux
}

func sortByFluxDesc(srcs []Source) {
	sort.Slice(srcs, func(i, j int) bool { return srcs[i].Flux > srcs[j].Flux })
}
