// Package qa serializes alignment QA results into diagnostic JSON
// documents: a header block with provenance and timestamps, a
// general-information block from the exposure header, and named data
// sections that carry per-column descriptions and units.
package qa

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcara/alignqa/internal/align"
	"github.com/mcara/alignqa/internal/exposure"
	"github.com/mcara/alignqa/internal/monitoring"
)

const timeLayout = "2006-01-02T15:04:05"

// Header is the provenance block of a diagnostic document.
type Header struct {
	DataSource   string  `json:"data_source"`
	Description  string  `json:"description"`
	CreationDate string  `json:"creation date"`
	Epoch        float64 `json:"seconds since epoch"`
}

// Section is one named data block with column metadata.
type Section struct {
	Descriptions map[string]string      `json:"descriptions"`
	Units        map[string]string      `json:"units"`
	Data         map[string]interface{} `json:"data"`
}

// Document is a complete diagnostic file.
type Document struct {
	Header  Header                 `json:"header"`
	GenInfo map[string]interface{} `json:"general information"`
	Data    map[string]Section     `json:"data"`
}

// NewDocument builds a document skeleton for one exposure.
func NewDocument(source, description string, info exposure.HeaderInfo, now time.Time) *Document {
	return &Document{
		Header: Header{
			DataSource:   source,
			Description:  description,
			CreationDate: now.UTC().Format(timeLayout),
			Epoch:        float64(now.Unix()),
		},
		GenInfo: map[string]interface{}{
			"imgname":    source,
			"telescope":  info.Telescope,
			"instrument": info.Instrument,
			"detector":   info.Detector,
			"filter":     info.Filter,
			"aperture":   info.Aperture,
			"dateobs":    info.DateObs,
			"targname":   info.TargName,
			"exptime":    info.ExpTime,
			"ra_targ":    info.RATarg,
			"dec_targ":   info.DecTarg,
		},
		Data: make(map[string]Section),
	}
}

// AddSection attaches a named data block. Every data key should have a
// matching description and unit entry.
func (d *Document) AddSection(name string, data map[string]interface{}, desc, units map[string]string) {
	d.Data[name] = Section{
		Descriptions: desc,
		Units:        units,
		Data:         data,
	}
}

// Write serializes the document as indented JSON.
func (d *Document) Write(filename string) error {
	raw, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal diagnostic document: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0o644); err != nil {
		return fmt.Errorf("write diagnostic document: %w", err)
	}
	return nil
}

// ResidsFilename returns the diagnostic filename for an exposure root:
// the root up to its first underscore plus the fixed QA suffix.
func ResidsFilename(rootName string) string {
	base := rootName
	if i := strings.Index(base, "_"); i > 0 {
		base = base[:i]
	}
	return base + "_cal_qa_astrometry_resids.json"
}

// WriteResiduals writes the alignment residuals of one exposure as a
// diagnostic document in outDir and returns the file path. Failed fits
// still produce a document with sentinel fit values so downstream
// harvesting sees the failure.
func WriteResiduals(res *align.Residuals, info exposure.HeaderInfo, now time.Time, outDir string) (string, error) {
	doc := NewDocument(res.RootName, "relative astrometric alignment residuals", info, now)

	fitData := map[string]interface{}{
		"aligned_to": res.RefRoot,
		"nmatches":   res.NMatches,
		"rms_x":      res.RMSX,
		"rms_y":      res.RMSY,
	}
	if res.Fit != nil {
		fitData["xsh"] = res.Fit.ShiftX
		fitData["ysh"] = res.Fit.ShiftY
		fitData["rot"] = res.Fit.Rot
		fitData["scale"] = res.Fit.Scale
		fitData["rot_fit"] = [2]float64{res.Fit.RotX, res.Fit.RotY}
		fitData["scale_fit"] = [2]float64{res.Fit.ScaleX, res.Fit.ScaleY}
		fitData["skew"] = res.Fit.Skew
	} else {
		for _, key := range []string{"xsh", "ysh", "rot", "scale", "rot_fit", "scale_fit", "skew"} {
			fitData[key] = nil
		}
	}
	doc.AddSection("fit_results", fitData,
		map[string]string{
			"aligned_to": "image used as the alignment reference",
			"nmatches":   "number of matched sources used in the fit",
			"rms_x":      "RMS of the X fit residuals",
			"rms_y":      "RMS of the Y fit residuals",
			"xsh":        "fitted shift along X",
			"ysh":        "fitted shift along Y",
			"rot":        "mean fitted rotation",
			"scale":      "mean fitted scale",
			"rot_fit":    "fitted rotation of each axis",
			"scale_fit":  "fitted scale of each axis",
			"skew":       "difference of the per-axis rotations",
		},
		map[string]string{
			"aligned_to": "unitless",
			"nmatches":   "unitless",
			"rms_x":      "pixels",
			"rms_y":      "pixels",
			"xsh":        "pixels",
			"ysh":        "pixels",
			"rot":        "degrees",
			"scale":      "unitless",
			"rot_fit":    "degrees",
			"scale_fit":  "unitless",
			"skew":       "unitless",
		})

	doc.AddSection("residuals",
		map[string]interface{}{
			"x":     res.X,
			"y":     res.Y,
			"ref_x": res.RefX,
			"ref_y": res.RefY,
		},
		map[string]string{
			"x":     "fit-corrected tangent-plane X position of the matched source",
			"y":     "fit-corrected tangent-plane Y position of the matched source",
			"ref_x": "tangent-plane X position of the reference source",
			"ref_y": "tangent-plane Y position of the reference source",
		},
		map[string]string{
			"x":     "pixels",
			"y":     "pixels",
			"ref_x": "pixels",
			"ref_y": "pixels",
		})

	path := filepath.Join(outDir, ResidsFilename(res.RootName))
	if err := doc.Write(path); err != nil {
		return "", err
	}
	monitoring.Logf("wrote alignment residuals to %s", path)
	return path, nil
}

// RunAll writes the residual documents for every aligned exposure with
// a shared creation timestamp. infos maps exposure root names to their
// header metadata. Returns the written file paths.
func RunAll(resids []*align.Residuals, infos map[string]exposure.HeaderInfo, outDir string) ([]string, error) {
	now := time.Now()
	var paths []string
	for _, res := range resids {
		path, err := WriteResiduals(res, infos[res.RootName], now, outDir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ResidualsFromDocument reconstructs the residual set of a diagnostic
// document, for replotting previously serialized results.
func ResidualsFromDocument(doc *Document) (*align.Residuals, error) {
	fit, ok := doc.Data["fit_results"]
	if !ok {
		return nil, fmt.Errorf("document has no fit_results section")
	}
	res := &align.Residuals{
		RootName: doc.Header.DataSource,
	}
	if s, ok := fit.Data["aligned_to"].(string); ok {
		res.RefRoot = s
	}
	if v, ok := fit.Data["nmatches"].(float64); ok {
		res.NMatches = int(v)
	}
	if v, ok := fit.Data["rms_x"].(float64); ok {
		res.RMSX = v
	}
	if v, ok := fit.Data["rms_y"].(float64); ok {
		res.RMSY = v
	}
	if res.NMatches < 0 {
		res.Status = align.StatusFailed
		res.NMatches = -1
		res.RMSX, res.RMSY = -1, -1
		return res, nil
	}
	res.Status = align.StatusSuccess

	sec, ok := doc.Data["residuals"]
	if !ok {
		return nil, fmt.Errorf("document has no residuals section")
	}
	var err error
	if res.X, err = floatColumn(sec.Data, "x"); err != nil {
		return nil, err
	}
	if res.Y, err = floatColumn(sec.Data, "y"); err != nil {
		return nil, err
	}
	if res.RefX, err = floatColumn(sec.Data, "ref_x"); err != nil {
		return nil, err
	}
	if res.RefY, err = floatColumn(sec.Data, "ref_y"); err != nil {
		return nil, err
	}
	return res, nil
}

func floatColumn(data map[string]interface{}, key string) ([]float64, error) {
	raw, ok := data[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("residuals column %q missing or malformed", key)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("residuals column %q holds non-numeric value", key)
		}
		out[i] = f
	}
	return out, nil
}

// ReadDocument loads a diagnostic document back from disk.
func ReadDocument(filename string) (*Document, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read diagnostic document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse diagnostic document %s: %w", filename, err)
	}
	return &doc, nil
}
