package align

import (
	"math"

	"github.com/mcara/alignqa/internal/monitoring"
)

// TangentMatcher matches two source lists projected onto a common
// tangent plane. The initial bulk offset between the lists is estimated
// from a 2D histogram of pairwise position differences, then sources
// are paired one-to-one with an optimal assignment restricted to the
// match tolerance.
type TangentMatcher struct {
	SearchRad  float64 // bulk offset search radius, pixels
	Separation float64 // minimum separation between sources in one list
	Tolerance  float64 // final match tolerance, pixels
	Use2DHist  bool    // estimate the bulk offset before matching
}

// DefaultMatcher returns the matcher tuning used for pipeline products.
func DefaultMatcher() TangentMatcher {
	return TangentMatcher{
		SearchRad:  5.0,
		Separation: 4.0,
		Tolerance:  1.0,
		Use2DHist:  true,
	}
}

// Match pairs image sources with reference sources. Both lists are
// tangent-plane positions in pixels. Returns parallel slices of indices
// into the input lists, one entry per matched pair.
func (m TangentMatcher) Match(imX, imY, refX, refY []float64) (imIdx, refIdx []int) {
	imKeep := wellSeparated(imX, imY, m.Separation)
	refKeep := wellSeparated(refX, refY, m.Separation)
	if len(imKeep) == 0 || len(refKeep) == 0 {
		return nil, nil
	}

	var dx, dy float64
	if m.Use2DHist {
		dx, dy = histOffset(imX, imY, refX, refY, imKeep, refKeep, m.SearchRad)
		monitoring.Logf("estimated bulk offset: dx=%.3f dy=%.3f pix", dx, dy)
	}

	// Cost matrix of pairwise distances after removing the bulk
	// offset; pairs beyond tolerance are forbidden.
	cost := make([][]float64, len(imKeep))
	for i, ii := range imKeep {
		row := make([]float64, len(refKeep))
		for j, rj := range refKeep {
			d := math.Hypot(imX[ii]+dx-refX[rj], imY[ii]+dy-refY[rj])
			if d > m.Tolerance {
				row[j] = forbiddenCost
			} else {
				row[j] = d
			}
		}
		cost[i] = row
	}

	assign := hungarianAssign(cost)
	for i, j := range assign {
		if j < 0 {
			continue
		}
		imIdx = append(imIdx, imKeep[i])
		refIdx = append(refIdx, refKeep[j])
	}
	return imIdx, refIdx
}

// wellSeparated returns the indices of sources with no neighbour closer
// than sep. Close pairs are ambiguous matches and are dropped entirely.
func wellSeparated(x, y []float64, sep float64) []int {
	n := len(x)
	if sep <= 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	crowded := make([]bool, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Hypot(x[i]-x[j], y[i]-y[j]) < sep {
				crowded[i] = true
				crowded[j] = true
			}
		}
	}
	var keep []int
	for i := 0; i < n; i++ {
		if !crowded[i] {
			keep = append(keep, i)
		}
	}
	return keep
}

// histOffset estimates the bulk shift between the lists as the peak of
// a 2D histogram of all pairwise differences within the search radius,
// refined with a 3x3 centroid around the peak bin.
func histOffset(imX, imY, refX, refY []float64, imKeep, refKeep []int, searchRad float64) (dx, dy float64) {
	if searchRad <= 0 {
		return 0, 0
	}
	r := int(math.Ceil(searchRad))
	nbins := 2*r + 1
	hist := make([]float64, nbins*nbins)

	for _, i := range imKeep {
		for _, j := range refKeep {
			bx := int(math.Round(refX[j] - imX[i]))
			by := int(math.Round(refY[j] - imY[i]))
			if bx < -r || bx > r || by < -r || by > r {
				continue
			}
			hist[(by+r)*nbins+(bx+r)]++
		}
	}

	best, bestX, bestY := -1.0, 0, 0
	for by := 0; by < nbins; by++ {
		for bx := 0; bx < nbins; bx++ {
			if v := hist[by*nbins+bx]; v > best {
				best = v
				bestX, bestY = bx, by
			}
		}
	}
	if best <= 0 {
		return 0, 0
	}

	// Flux-weighted centroid of the 3x3 neighbourhood of the peak.
	var sum, sumX, sumY float64
	for by := bestY - 1; by <= bestY+1; by++ {
		for bx := bestX - 1; bx <= bestX+1; bx++ {
			if bx < 0 || bx >= nbins || by < 0 || by >= nbins {
				continue
			}
			v := hist[by*nbins+bx]
			sum += v
			sumX += v * float64(bx)
			sumY += v * float64(by)
		}
	}
	if sum == 0 {
		return float64(bestX - r), float64(bestY - r)
	}
	return sumX/sum - float64(r), sumY/sum - float64(r)
}
