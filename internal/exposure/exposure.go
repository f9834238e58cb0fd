// Package exposure reads calibrated multi-extension FITS exposures:
// science chip pixel data, per-chip WCS solutions, and the primary
// header metadata carried into QA reports.
package exposure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/mcara/alignqa/internal/monitoring"
	"github.com/mcara/alignqa/internal/wcs"
)

// HeaderInfo is the primary-header metadata reported with QA results.
type HeaderInfo struct {
	Telescope  string
	Instrument string
	Detector   string
	Filter     string
	Aperture   string
	DateObs    string
	TargName   string
	ExpTime    float64
	RATarg     float64
	DecTarg    float64
}

// Chip is one science extension: its pixel data and WCS.
type Chip struct {
	ExtVer int // SCI extension version, 1-based
	NX, NY int
	Data   []float64
	WCS    *wcs.WCS
}

// Exposure is a calibrated exposure with its science chips.
type Exposure struct {
	Filename string
	RootName string
	Info     HeaderInfo
	Chips    []*Chip
}

// NumChips returns the number of science chips in the exposure.
func (e *Exposure) NumChips() int { return len(e.Chips) }

// Open reads an exposure file and all of its SCI extensions. Files with
// no SCI extensions but image data in the primary HDU are treated as
// single-chip exposures.
func Open(filename string) (*Exposure, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open exposure: %w", err)
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, fmt.Errorf("read FITS %s: %w", filename, err)
	}
	defer fits.Close()

	exp := &Exposure{
		Filename: filename,
		RootName: RootName(filename),
	}

	hdus := fits.HDUs()
	if len(hdus) == 0 {
		return nil, fmt.Errorf("%s has no HDUs", filename)
	}
	exp.Info = readHeaderInfo(hdus[0].Header())

	for i, hdu := range hdus {
		hdr := hdu.Header()
		if i > 0 && !strings.EqualFold(hdu.Name(), "SCI") {
			continue
		}
		axes := hdr.Axes()
		if len(axes) < 2 || axes[0] < 1 || axes[1] < 1 {
			continue
		}
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}

		chip, err := readChip(img, hdr)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", filename, i, err)
		}
		if i == 0 {
			chip.ExtVer = 1
		} else {
			chip.ExtVer = hdu.Version()
			if chip.ExtVer < 1 {
				chip.ExtVer = len(exp.Chips) + 1
			}
		}
		exp.Chips = append(exp.Chips, chip)

		// A populated primary array means a simple FITS image; the
		// remaining HDUs cannot also be science chips.
		if i == 0 {
			break
		}
	}

	if len(exp.Chips) == 0 {
		return nil, fmt.Errorf("%s has no science image extensions", filename)
	}
	monitoring.Logf("opened %s: %d chip(s), detector %s", filename, len(exp.Chips), exp.Info.Detector)
	return exp, nil
}

func readChip(img fitsio.Image, hdr *fitsio.Header) (*Chip, error) {
	axes := hdr.Axes()
	nx, ny := axes[0], axes[1]

	data, err := readPixels(img, hdr, nx*ny)
	if err != nil {
		return nil, err
	}

	chip := &Chip{
		NX:   nx,
		NY:   ny,
		Data: data,
		WCS:  readWCS(hdr),
	}
	return chip, nil
}

// readPixels reads the image data as float64 regardless of BITPIX.
func readPixels(img fitsio.Image, hdr *fitsio.Header, n int) ([]float64, error) {
	var out []float64
	switch hdr.Bitpix() {
	case 8:
		raw := make([]int8, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		out = toFloat64s(raw)
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		out = toFloat64s(raw)
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		out = toFloat64s(raw)
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		out = toFloat64s(raw)
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		out = toFloat64s(raw)
	case -64:
		out = make([]float64, n)
		if err := img.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", hdr.Bitpix())
	}
	if len(out) != n {
		return nil, fmt.Errorf("short image read: got %d pixels, want %d", len(out), n)
	}
	return out, nil
}

func toFloat64s[T int8 | int16 | int32 | int64 | float32](raw []T) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out
}

// readWCS pulls the TAN+SIP solution from an extension header. Headers
// with no CD matrix yield a nil WCS.
func readWCS(hdr *fitsio.Header) *wcs.WCS {
	w := &wcs.WCS{
		CRVal1: cardFloat(hdr, "CRVAL1", 0),
		CRVal2: cardFloat(hdr, "CRVAL2", 0),
		CRPix1: cardFloat(hdr, "CRPIX1", 0),
		CRPix2: cardFloat(hdr, "CRPIX2", 0),
	}
	w.CD[0] = cardFloat(hdr, "CD1_1", 0)
	w.CD[1] = cardFloat(hdr, "CD1_2", 0)
	w.CD[2] = cardFloat(hdr, "CD2_1", 0)
	w.CD[3] = cardFloat(hdr, "CD2_2", 0)
	if w.CD[0] == 0 && w.CD[1] == 0 && w.CD[2] == 0 && w.CD[3] == 0 {
		return nil
	}
	w.SIP = readSIP(hdr)
	return w
}

func readSIP(hdr *fitsio.Header) *wcs.SIPDistortion {
	aOrder := int(cardFloat(hdr, "A_ORDER", 0))
	bOrder := int(cardFloat(hdr, "B_ORDER", 0))
	if aOrder <= 0 && bOrder <= 0 {
		return nil
	}

	sip := &wcs.SIPDistortion{
		AOrder: aOrder,
		BOrder: bOrder,
		A:      make(map[[2]int]float64),
		B:      make(map[[2]int]float64),
	}
	for p := 0; p <= aOrder; p++ {
		for q := 0; p+q <= aOrder; q++ {
			key := fmt.Sprintf("A_%d_%d", p, q)
			if c := hdr.Get(key); c != nil {
				sip.A[[2]int{p, q}] = toFloat(c.Value)
			}
		}
	}
	for p := 0; p <= bOrder; p++ {
		for q := 0; p+q <= bOrder; q++ {
			key := fmt.Sprintf("B_%d_%d", p, q)
			if c := hdr.Get(key); c != nil {
				sip.B[[2]int{p, q}] = toFloat(c.Value)
			}
		}
	}
	if len(sip.A) == 0 && len(sip.B) == 0 {
		return nil
	}
	return sip
}

func readHeaderInfo(hdr *fitsio.Header) HeaderInfo {
	info := HeaderInfo{
		Telescope:  cardString(hdr, "TELESCOP"),
		Instrument: cardString(hdr, "INSTRUME"),
		Detector:   cardString(hdr, "DETECTOR"),
		Aperture:   cardString(hdr, "APERTURE"),
		DateObs:    cardString(hdr, "DATE-OBS"),
		TargName:   cardString(hdr, "TARGNAME"),
		ExpTime:    cardFloat(hdr, "EXPTIME", 0),
		RATarg:     cardFloat(hdr, "RA_TARG", 0),
		DecTarg:    cardFloat(hdr, "DEC_TARG", 0),
	}
	info.Filter = filterName(hdr)
	return info
}

// filterName resolves the filter from either a single FILTER keyword or
// the FILTER1/FILTER2 pair, skipping clear and polarizer elements.
func filterName(hdr *fitsio.Header) string {
	if f := cardString(hdr, "FILTER"); f != "" {
		return f
	}
	var parts []string
	for _, key := range []string{"FILTER1", "FILTER2"} {
		f := strings.TrimSpace(cardString(hdr, key))
		if f == "" || strings.HasPrefix(strings.ToUpper(f), "CLEAR") {
			continue
		}
		parts = append(parts, f)
	}
	return strings.Join(parts, ";")
}

func cardString(hdr *fitsio.Header, key string) string {
	c := hdr.Get(key)
	if c == nil {
		return ""
	}
	if s, ok := c.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(c.Value)
}

func cardFloat(hdr *fitsio.Header, key string, def float64) float64 {
	c := hdr.Get(key)
	if c == nil {
		return def
	}
	return toFloat(c.Value)
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	default:
		return 0
	}
}

// RootName strips the directory and FITS extension from a product
// filename: "dir/j8cw03_flc.fits" becomes "j8cw03_flc".
func RootName(filename string) string {
	base := filepath.Base(filename)
	for _, ext := range []string{".fits.gz", ".fits", ".fit"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

// PreferFLC filters an input list so that when both the _flc and _flt
// flavors of an exposure are present, only the _flc one is kept.
func PreferFLC(files []string) []string {
	flc := make(map[string]bool)
	for _, f := range files {
		root := RootName(f)
		if strings.HasSuffix(root, "_flc") {
			flc[strings.TrimSuffix(root, "_flc")] = true
		}
	}
	var out []string
	for _, f := range files {
		root := RootName(f)
		if strings.HasSuffix(root, "_flt") && flc[strings.TrimSuffix(root, "_flt")] {
			monitoring.Logf("skipping %s: _flc version present", f)
			continue
		}
		out = append(out, f)
	}
	return out
}
