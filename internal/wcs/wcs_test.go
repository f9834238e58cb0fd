package wcs

import (
	"math"
	"testing"
)

// testWCS is a plain TAN solution with a 0.05 arcsec/pixel scale,
// representative of a drizzled ACS/WFC product.
func testWCS() *WCS {
	scale := 0.05 / 3600.0
	return &WCS{
		CRVal1: 150.1163,
		CRVal2: 2.2058,
		CRPix1: 2048,
		CRPix2: 1024,
		CD:     [4]float64{-scale, 0, 0, scale},
	}
}

func TestPixToWorldReferencePixel(t *testing.T) {
	w := testWCS()
	ra, dec := w.PixToWorld(w.CRPix1, w.CRPix2)
	if math.Abs(ra-w.CRVal1) > 1e-10 {
		t.Errorf("RA at CRPIX = %v, want %v", ra, w.CRVal1)
	}
	if math.Abs(dec-w.CRVal2) > 1e-10 {
		t.Errorf("Dec at CRPIX = %v, want %v", dec, w.CRVal2)
	}
}

func TestPixWorldRoundTrip(t *testing.T) {
	w := testWCS()

	positions := [][2]float64{
		{100, 100},
		{2048, 1024},
		{4000, 2000},
		{1, 1},
	}

	for _, p := range positions {
		ra, dec := w.PixToWorld(p[0], p[1])
		x, y := w.WorldToPix(ra, dec)
		if math.Abs(x-p[0]) > 1e-6 || math.Abs(y-p[1]) > 1e-6 {
			t.Errorf("round trip (%v,%v) -> (%v,%v)", p[0], p[1], x, y)
		}
	}
}

func TestTangentPlaneRoundTrip(t *testing.T) {
	w := testWCS()
	tp := NewTangentPlane(w)

	ra, dec := w.PixToWorld(3000, 1500)
	tx, ty := tp.WorldToTangent(ra, dec)
	ra2, dec2 := tp.TangentToWorld(tx, ty)

	if math.Abs(ra-ra2) > 1e-9 || math.Abs(dec-dec2) > 1e-9 {
		t.Errorf("tangent round trip: (%v,%v) -> (%v,%v)", ra, dec, ra2, dec2)
	}
}

func TestTangentPlaneOriginIsZero(t *testing.T) {
	tp := &TangentPlane{RA0: 10.0, Dec0: -30.0, Scale: 1.0 / 3600.0}
	x, y := tp.WorldToTangent(10.0, -30.0)
	if math.Abs(x) > 1e-12 || math.Abs(y) > 1e-12 {
		t.Errorf("tangent point projects to (%v,%v), want origin", x, y)
	}
}

func TestDetToTangentMatchesScale(t *testing.T) {
	w := testWCS()
	tp := NewTangentPlane(w)

	// One pixel east of CRPIX should land about one tangent pixel away.
	tx, ty := tp.DetToTangent(w, w.CRPix1+1, w.CRPix2)
	dist := math.Hypot(tx, ty)
	if math.Abs(dist-1.0) > 1e-3 {
		t.Errorf("one-pixel offset maps to %v tangent pixels, want ~1", dist)
	}
}

func TestSIPDistortionShiftsSolution(t *testing.T) {
	w := testWCS()
	plain, _ := w.PixToWorld(2148, 1124)

	w.SIP = &SIPDistortion{
		AOrder: 2,
		BOrder: 2,
		A:      map[[2]int]float64{{2, 0}: 1e-6},
		B:      map[[2]int]float64{{0, 2}: 1e-6},
	}
	distorted, _ := w.PixToWorld(2148, 1124)

	if plain == distorted {
		t.Error("SIP coefficients had no effect on pix-to-world")
	}

	// At CRPIX the offsets are zero, so distortion must vanish.
	ra0, dec0 := w.PixToWorld(w.CRPix1, w.CRPix2)
	if math.Abs(ra0-w.CRVal1) > 1e-10 || math.Abs(dec0-w.CRVal2) > 1e-10 {
		t.Error("SIP distortion should vanish at the reference pixel")
	}
}

func TestRAWrapsPositive(t *testing.T) {
	w := testWCS()
	w.CRVal1 = 0.0001
	ra, _ := w.PixToWorld(w.CRPix1+5000, w.CRPix2)
	if ra < 0 || ra >= 360 {
		t.Errorf("RA out of range: %v", ra)
	}
}

func TestDDToHMS(t *testing.T) {
	tests := []struct {
		ra, dec   float64
		precision int
		wantRA    string
		wantDec   string
	}{
		{0, 0, 1, "00:00:00.0", "+00:00:00.0"},
		{180, -45.5, 1, "12:00:00.0", "-45:30:00.0"},
		{15.0, 30.25, 2, "01:00:00.00", "+30:15:00.00"},
	}

	for _, tt := range tests {
		raStr, decStr := DDToHMS(tt.ra, tt.dec, tt.precision)
		if raStr != tt.wantRA {
			t.Errorf("DDToHMS(%v) RA = %q, want %q", tt.ra, raStr, tt.wantRA)
		}
		if decStr != tt.wantDec {
			t.Errorf("DDToHMS(%v) Dec = %q, want %q", tt.dec, decStr, tt.wantDec)
		}
	}
}

func TestDDToHMSSecondsCarry(t *testing.T) {
	// 29.9999999 deg is 01:59:59.99998 hours; rounding at precision 1
	// must carry into the minutes without printing "60.0".
	raStr, _ := DDToHMS(30.0-1e-9, 0, 1)
	if raStr != "02:00:00.0" {
		t.Errorf("carry failed: got %q", raStr)
	}
}
