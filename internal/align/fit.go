package align

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mcara/alignqa/internal/monitoring"
)

// FitResult holds a fitted linear transform between matched image and
// reference positions, plus the derived geometric parameters and
// post-fit residual statistics.
type FitResult struct {
	ShiftX, ShiftY float64       // offset, pixels
	Matrix         [2][2]float64 // linear part mapping image to reference

	RotX, RotY, Rot       float64 // rotation per axis and mean, degrees
	ScaleX, ScaleY, Scale float64 // scale per axis and mean
	Skew                  float64 // degrees
	RMSX, RMSY            float64 // post-fit residual RMS, pixels
	NMatches              int     // matches surviving sigma clipping
	NIter                 int     // clipping iterations performed

	// Per-match residuals for the surviving matches, in input order.
	ResidX, ResidY []float64
	Mask           []bool // survived[i] for the original match list
}

// Apply maps an image position through the fitted transform.
func (f *FitResult) Apply(x, y float64) (px, py float64) {
	px = f.ShiftX + f.Matrix[0][0]*x + f.Matrix[0][1]*y
	py = f.ShiftY + f.Matrix[1][0]*x + f.Matrix[1][1]*y
	return px, py
}

// residual returns the fit residual for one input pair.
func (f *FitResult) residual(ix, iy, rx, ry float64) (dx, dy float64) {
	px, py := f.Apply(ix, iy)
	return rx - px, ry - py
}

// IterLinearFit fits the general linear transform from image positions
// to reference positions with iterative sigma clipping of outliers.
// All coordinates are tangent-plane pixels. The fit needs at least
// minMatches surviving pairs.
func IterLinearFit(imX, imY, refX, refY []float64, sigma float64, nclip, minMatches int) (*FitResult, error) {
	n := len(imX)
	if len(imY) != n || len(refX) != n || len(refY) != n {
		return nil, fmt.Errorf("mismatched coordinate lengths")
	}
	if minMatches < 3 {
		minMatches = 3
	}
	if n < minMatches {
		return nil, fmt.Errorf("too few matches for a linear fit: %d < %d", n, minMatches)
	}

	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}

	var fit *FitResult
	for iter := 0; iter <= nclip; iter++ {
		var err error
		fit, err = solveLinear(imX, imY, refX, refY, mask)
		if err != nil {
			return nil, err
		}
		fit.NIter = iter

		if iter == nclip || sigma <= 0 {
			break
		}

		// Clip on radial residual distance.
		rms := math.Hypot(fit.RMSX, fit.RMSY)
		if rms == 0 {
			break
		}
		clipped := 0
		kept := 0
		for i := 0; i < n; i++ {
			if !mask[i] {
				continue
			}
			dx, dy := fit.residual(imX[i], imY[i], refX[i], refY[i])
			if math.Hypot(dx, dy) > sigma*rms {
				mask[i] = false
				clipped++
			} else {
				kept++
			}
		}
		if clipped == 0 {
			break
		}
		if kept < minMatches {
			monitoring.Warnf("sigma clipping left %d matches, keeping previous fit", kept)
			break
		}
	}

	if fit.NMatches < minMatches {
		return nil, fmt.Errorf("only %d matches survived the fit, need %d", fit.NMatches, minMatches)
	}
	return fit, nil
}

// solveLinear solves the 6-parameter least-squares system for the pairs
// selected by mask and derives rotation, scale and skew from the linear
// part.
func solveLinear(imX, imY, refX, refY []float64, mask []bool) (*FitResult, error) {
	var idx []int
	for i, ok := range mask {
		if ok {
			idx = append(idx, i)
		}
	}
	n := len(idx)
	if n < 3 {
		return nil, fmt.Errorf("need at least 3 points, have %d", n)
	}

	a := mat.NewDense(2*n, 6, nil)
	b := mat.NewVecDense(2*n, nil)
	for row, i := range idx {
		x, y := imX[i], imY[i]

		a.Set(row*2, 0, 1)
		a.Set(row*2, 1, x)
		a.Set(row*2, 2, y)
		b.SetVec(row*2, refX[i])

		a.Set(row*2+1, 3, 1)
		a.Set(row*2+1, 4, x)
		a.Set(row*2+1, 5, y)
		b.SetVec(row*2+1, refY[i])
	}

	var qr mat.QR
	qr.Factorize(a)
	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, b); err != nil {
		return nil, fmt.Errorf("linear fit is singular: %w", err)
	}

	fit := &FitResult{
		ShiftX: params.AtVec(0),
		ShiftY: params.AtVec(3),
		Matrix: [2][2]float64{
			{params.AtVec(1), params.AtVec(2)},
			{params.AtVec(4), params.AtVec(5)},
		},
		Mask: append([]bool(nil), mask...),
	}
	deriveGeometry(fit)

	// Residual statistics over the fitted subset.
	var sx2, sy2 float64
	fit.ResidX = make([]float64, 0, n)
	fit.ResidY = make([]float64, 0, n)
	for _, i := range idx {
		dx, dy := fit.residual(imX[i], imY[i], refX[i], refY[i])
		fit.ResidX = append(fit.ResidX, dx)
		fit.ResidY = append(fit.ResidY, dy)
		sx2 += dx * dx
		sy2 += dy * dy
	}
	fit.NMatches = n
	fit.RMSX = math.Sqrt(sx2 / float64(n))
	fit.RMSY = math.Sqrt(sy2 / float64(n))
	return fit, nil
}

// deriveGeometry decomposes the linear part into per-axis rotation and
// scale. Improper rotations (negative determinant) flip the x axis
// convention so reflected solutions still report sensible angles.
func deriveGeometry(f *FitResult) {
	m := f.Matrix
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	sgn := 1.0
	if det < 0 {
		sgn = -1.0
	}

	f.ScaleX = math.Hypot(m[0][0], m[1][0])
	f.ScaleY = math.Hypot(m[0][1], m[1][1])
	f.Scale = math.Sqrt(math.Abs(det))

	f.RotX = math.Atan2(sgn*m[1][0], sgn*m[0][0]) / degToRad
	f.RotY = math.Atan2(-m[0][1], m[1][1]) / degToRad
	f.Skew = f.RotY - f.RotX
	f.Rot = f.RotX + 0.5*f.Skew

	// Normalize to (-180, 180].
	for f.Rot <= -180 {
		f.Rot += 360
	}
	for f.Rot > 180 {
		f.Rot -= 360
	}
}

const degToRad = math.Pi / 180.0
