// Package wcs implements the world coordinate system transforms needed by
// the alignment QA pipeline: a TAN (gnomonic) projection with an optional
// SIP-style forward distortion polynomial, tangent-plane projections
// anchored at a reference point, and sexagesimal output formatting.
package wcs

import (
	"fmt"
	"math"
)

const degToRad = math.Pi / 180.0

// SIPDistortion holds forward SIP polynomial coefficients. A and B map
// (p, q) exponent pairs to coefficients for the x and y corrections:
//
//	du = sum A[p,q] * u^p * v^q
//	dv = sum B[p,q] * u^p * v^q
//
// where (u, v) are pixel offsets from CRPIX.
type SIPDistortion struct {
	AOrder int
	BOrder int
	A      map[[2]int]float64
	B      map[[2]int]float64
}

// Apply returns the distortion-corrected pixel offsets.
func (s *SIPDistortion) Apply(u, v float64) (du, dv float64) {
	for pq, coeff := range s.A {
		du += coeff * math.Pow(u, float64(pq[0])) * math.Pow(v, float64(pq[1]))
	}
	for pq, coeff := range s.B {
		dv += coeff * math.Pow(u, float64(pq[0])) * math.Pow(v, float64(pq[1]))
	}
	return du, dv
}

// WCS describes a single chip's world coordinate solution: a TAN
// projection with a CD matrix, plus an optional SIP distortion applied
// on the pixel-to-world direction. Pixel coordinates are FITS 1-based.
type WCS struct {
	CRVal1, CRVal2 float64    // reference sky position (degrees)
	CRPix1, CRPix2 float64    // reference pixel (1-based)
	CD             [4]float64 // CD1_1, CD1_2, CD2_1, CD2_2 (degrees/pixel)
	SIP            *SIPDistortion
}

// PixScale returns the approximate plate scale in degrees per pixel,
// derived from the CD matrix determinant.
func (w *WCS) PixScale() float64 {
	det := w.CD[0]*w.CD[3] - w.CD[1]*w.CD[2]
	return math.Sqrt(math.Abs(det))
}

// PixToWorld converts a 1-based pixel position to RA/Dec in degrees,
// applying the full distortion model when present.
func (w *WCS) PixToWorld(x, y float64) (ra, dec float64) {
	u := x - w.CRPix1
	v := y - w.CRPix2

	if w.SIP != nil {
		du, dv := w.SIP.Apply(u, v)
		u += du
		v += dv
	}

	// Intermediate world coordinates (degrees on the tangent plane).
	xi := w.CD[0]*u + w.CD[1]*v
	eta := w.CD[2]*u + w.CD[3]*v

	return tanToSky(xi, eta, w.CRVal1, w.CRVal2)
}

// WorldToPix converts RA/Dec (degrees) to a 1-based pixel position using
// the linear WCS only. The forward SIP correction is not inverted; for
// QA purposes the linear solution is sufficient.
func (w *WCS) WorldToPix(ra, dec float64) (x, y float64) {
	xi, eta := skyToTan(ra, dec, w.CRVal1, w.CRVal2)

	det := w.CD[0]*w.CD[3] - w.CD[1]*w.CD[2]
	u := (w.CD[3]*xi - w.CD[1]*eta) / det
	v := (w.CD[0]*eta - w.CD[2]*xi) / det

	return u + w.CRPix1, v + w.CRPix2
}

// TangentPlane is a gnomonic projection anchored at a reference sky
// position, with coordinates expressed in pixels of the given plate
// scale. All images in an alignment run share one tangent plane so
// matched positions are directly comparable.
type TangentPlane struct {
	RA0, Dec0 float64 // tangent point (degrees)
	Scale     float64 // plate scale (degrees/pixel)
}

// NewTangentPlane builds a tangent plane at the reference point of the
// given WCS, using its plate scale.
func NewTangentPlane(w *WCS) *TangentPlane {
	return &TangentPlane{RA0: w.CRVal1, Dec0: w.CRVal2, Scale: w.PixScale()}
}

// WorldToTangent projects RA/Dec (degrees) onto the tangent plane,
// returning coordinates in pixels.
func (tp *TangentPlane) WorldToTangent(ra, dec float64) (x, y float64) {
	xi, eta := skyToTan(ra, dec, tp.RA0, tp.Dec0)
	return xi / tp.Scale, eta / tp.Scale
}

// TangentToWorld deprojects tangent-plane pixel coordinates back to
// RA/Dec in degrees.
func (tp *TangentPlane) TangentToWorld(x, y float64) (ra, dec float64) {
	return tanToSky(x*tp.Scale, y*tp.Scale, tp.RA0, tp.Dec0)
}

// DetToTangent converts a detector pixel position to tangent-plane
// pixels by way of the chip WCS.
func (tp *TangentPlane) DetToTangent(w *WCS, x, y float64) (tx, ty float64) {
	ra, dec := w.PixToWorld(x, y)
	return tp.WorldToTangent(ra, dec)
}

// skyToTan projects RA/Dec onto the tangent plane at (ra0, dec0).
// Inputs and outputs are in degrees.
func skyToTan(ra, dec, ra0, dec0 float64) (xi, eta float64) {
	raR := ra * degToRad
	decR := dec * degToRad
	ra0R := ra0 * degToRad
	dec0R := dec0 * degToRad

	sinDec, cosDec := math.Sincos(decR)
	sinDec0, cosDec0 := math.Sincos(dec0R)
	cosDRA := math.Cos(raR - ra0R)
	sinDRA := math.Sin(raR - ra0R)

	cosC := sinDec0*sinDec + cosDec0*cosDec*cosDRA

	xi = (cosDec * sinDRA / cosC) / degToRad
	eta = ((cosDec0*sinDec - sinDec0*cosDec*cosDRA) / cosC) / degToRad
	return xi, eta
}

// tanToSky deprojects tangent-plane coordinates (degrees) at (ra0, dec0)
// back to RA/Dec in degrees. RA is wrapped to [0, 360).
func tanToSky(xi, eta, ra0, dec0 float64) (ra, dec float64) {
	xiR := xi * degToRad
	etaR := eta * degToRad
	ra0R := ra0 * degToRad
	dec0R := dec0 * degToRad

	sinDec0, cosDec0 := math.Sincos(dec0R)

	den := cosDec0 - etaR*sinDec0
	dra := math.Atan2(xiR, den)
	ra = (ra0R + dra) / degToRad
	dec = math.Atan2(sinDec0+etaR*cosDec0, math.Hypot(xiR, den)) / degToRad

	ra = math.Mod(ra, 360.0)
	if ra < 0 {
		ra += 360.0
	}
	return ra, dec
}

// DDToHMS formats decimal degrees as sexagesimal strings: RA as
// HH:MM:SS.S and Dec as ±DD:MM:SS.S with the given number of fractional
// digits on the seconds.
func DDToHMS(ra, dec float64, precision int) (raStr, decStr string) {
	if precision < 0 {
		precision = 0
	}

	raHours := ra / 15.0
	raStr = sexagesimal(raHours, precision, false)
	decStr = sexagesimal(dec, precision, true)
	return raStr, decStr
}

func sexagesimal(value float64, precision int, signed bool) string {
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	} else if signed {
		sign = "+"
	}

	v := math.Abs(value)
	h := int(v)
	rem := (v - float64(h)) * 60.0
	m := int(rem)
	s := (rem - float64(m)) * 60.0

	// Carry rounding overflow in the seconds field.
	limit := 60.0 - math.Pow(10, -float64(precision))/2
	if s >= limit {
		s = 0
		m++
		if m == 60 {
			m = 0
			h++
		}
	}

	width := precision + 3 // "SS." plus fraction
	if precision == 0 {
		width = 2
	}
	return fmt.Sprintf("%s%02d:%02d:%0*.*f", sign, h, m, width, precision, s)
}
