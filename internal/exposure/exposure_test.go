package exposure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestExposure builds a two-chip calibrated exposure on disk.
func writeTestExposure(t *testing.T, path string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	fits, err := fitsio.Create(f)
	require.NoError(t, err)
	defer fits.Close()

	primary := fitsio.NewImage(8, []int{})
	defer primary.Close()
	require.NoError(t, primary.Header().Append(
		fitsio.Card{Name: "TELESCOP", Value: "HST"},
		fitsio.Card{Name: "INSTRUME", Value: "ACS"},
		fitsio.Card{Name: "DETECTOR", Value: "WFC"},
		fitsio.Card{Name: "FILTER1", Value: "F606W"},
		fitsio.Card{Name: "FILTER2", Value: "CLEAR2L"},
		fitsio.Card{Name: "APERTURE", Value: "WFCENTER"},
		fitsio.Card{Name: "DATE-OBS", Value: "2024-03-01"},
		fitsio.Card{Name: "TARGNAME", Value: "NGC-104"},
		fitsio.Card{Name: "EXPTIME", Value: 507.0},
		fitsio.Card{Name: "RA_TARG", Value: 6.0223},
		fitsio.Card{Name: "DEC_TARG", Value: -72.0814},
	))
	require.NoError(t, fits.Write(primary))

	for ver := 1; ver <= 2; ver++ {
		sci := fitsio.NewImage(-32, []int{8, 8})
		require.NoError(t, sci.Header().Append(
			fitsio.Card{Name: "EXTNAME", Value: "SCI"},
			fitsio.Card{Name: "EXTVER", Value: ver},
			fitsio.Card{Name: "CRVAL1", Value: 6.02},
			fitsio.Card{Name: "CRVAL2", Value: -72.08},
			fitsio.Card{Name: "CRPIX1", Value: 4.5},
			fitsio.Card{Name: "CRPIX2", Value: 4.5},
			fitsio.Card{Name: "CD1_1", Value: -1.1e-5},
			fitsio.Card{Name: "CD1_2", Value: 2.0e-7},
			fitsio.Card{Name: "CD2_1", Value: 2.0e-7},
			fitsio.Card{Name: "CD2_2", Value: 1.1e-5},
			fitsio.Card{Name: "A_ORDER", Value: 2},
			fitsio.Card{Name: "B_ORDER", Value: 2},
			fitsio.Card{Name: "A_2_0", Value: 2.5e-6},
			fitsio.Card{Name: "B_0_2", Value: -1.5e-6},
		))

		data := make([]float32, 64)
		data[3*8+3] = float32(100 * ver)
		require.NoError(t, sci.Write(&data))
		require.NoError(t, fits.Write(sci))
		require.NoError(t, sci.Close())
	}
}

func TestOpenExposure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j8cw03_flc.fits")
	writeTestExposure(t, path)

	exp, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, "j8cw03_flc", exp.RootName)
	assert.Equal(t, 2, exp.NumChips())

	info := exp.Info
	assert.Equal(t, "HST", info.Telescope)
	assert.Equal(t, "ACS", info.Instrument)
	assert.Equal(t, "WFC", info.Detector)
	assert.Equal(t, "F606W", info.Filter) // CLEAR2L dropped
	assert.Equal(t, "WFCENTER", info.Aperture)
	assert.Equal(t, "2024-03-01", info.DateObs)
	assert.Equal(t, 507.0, info.ExpTime)

	for i, chip := range exp.Chips {
		assert.Equal(t, i+1, chip.ExtVer)
		assert.Equal(t, 8, chip.NX)
		assert.Equal(t, 8, chip.NY)
		require.Len(t, chip.Data, 64)
		assert.InDelta(t, float64(100*(i+1)), chip.Data[3*8+3], 1e-6)

		require.NotNil(t, chip.WCS)
		assert.Equal(t, 6.02, chip.WCS.CRVal1)
		assert.Equal(t, -1.1e-5, chip.WCS.CD[0])
		require.NotNil(t, chip.WCS.SIP)
		assert.Equal(t, 2, chip.WCS.SIP.AOrder)
		assert.Equal(t, 2.5e-6, chip.WCS.SIP.A[[2]int{2, 0}])
		assert.Equal(t, -1.5e-6, chip.WCS.SIP.B[[2]int{0, 2}])
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.fits"))
	assert.Error(t, err)
}

func TestRootName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"j8cw03_flc.fits", "j8cw03_flc"},
		{"/data/obs/j8cw03_flt.fits", "j8cw03_flt"},
		{"j8cw03_drz.fits.gz", "j8cw03_drz"},
		{"catalog.txt", "catalog.txt"},
	}
	for _, c := range cases {
		if got := RootName(c.in); got != c.want {
			t.Errorf("RootName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPreferFLC(t *testing.T) {
	files := []string{
		"a1_flt.fits",
		"a1_flc.fits",
		"b2_flt.fits",
		"c3_flc.fits",
	}
	got := PreferFLC(files)
	assert.Equal(t, []string{"a1_flc.fits", "b2_flt.fits", "c3_flc.fits"}, got)
}
