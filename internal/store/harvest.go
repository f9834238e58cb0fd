package store

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mcara/alignqa/internal/monitoring"
	"github.com/mcara/alignqa/internal/qa"
)

// resids file suffix written by the qa package.
const residsGlob = "*_cal_qa_astrometry_resids.json"

// Harvest ingests every residual diagnostic file in dir under a new
// run ID and returns it with the number of records inserted.
func (s *ResultStore) Harvest(dir string) (runID string, n int, err error) {
	files, err := filepath.Glob(filepath.Join(dir, residsGlob))
	if err != nil {
		return "", 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return "", 0, fmt.Errorf("no residual files found in %s", dir)
	}

	runID = uuid.New().String()
	for _, file := range files {
		doc, err := qa.ReadDocument(file)
		if err != nil {
			return runID, n, err
		}
		rec, err := recordFromDocument(doc)
		if err != nil {
			return runID, n, fmt.Errorf("%s: %w", file, err)
		}
		rec.RunID = runID
		if err := s.Insert(rec); err != nil {
			return runID, n, err
		}
		n++
	}
	monitoring.Logf("harvested %d residual files from %s into run %s", n, dir, runID)
	return runID, n, nil
}

// recordFromDocument flattens a residual diagnostic document into a
// store record. Sentinel fit values mark failed alignments.
func recordFromDocument(doc *qa.Document) (*Record, error) {
	fit, ok := doc.Data["fit_results"]
	if !ok {
		return nil, fmt.Errorf("document has no fit_results section")
	}

	rec := &Record{
		ImgName:    doc.Header.DataSource,
		AlignedTo:  docString(fit.Data, "aligned_to"),
		Telescope:  docString(doc.GenInfo, "telescope"),
		Instrument: docString(doc.GenInfo, "instrument"),
		Detector:   docString(doc.GenInfo, "detector"),
		Filter:     docString(doc.GenInfo, "filter"),
		Aperture:   docString(doc.GenInfo, "aperture"),
		DateObs:    docString(doc.GenInfo, "dateobs"),
		ExpTime:    docFloat(doc.GenInfo, "exptime"),
		NMatches:   int(docFloat(fit.Data, "nmatches")),
		RMSX:       docFloat(fit.Data, "rms_x"),
		RMSY:       docFloat(fit.Data, "rms_y"),
		XSh:        docFloat(fit.Data, "xsh"),
		YSh:        docFloat(fit.Data, "ysh"),
		Rot:        docFloat(fit.Data, "rot"),
		Scale:      docFloat(fit.Data, "scale"),
		Skew:       docFloat(fit.Data, "skew"),
	}
	if rec.NMatches < 0 {
		rec.Status = "FAILED"
	} else {
		rec.Status = "SUCCESS"
	}
	return rec, nil
}

func docString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func docFloat(m map[string]interface{}, key string) float64 {
	if f, ok := m[key].(float64); ok {
		return f
	}
	return 0
}
