package plots

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/mcara/alignqa/internal/monitoring"
	"github.com/mcara/alignqa/internal/store"
)

// Fixed per-detector palette; detectors beyond the list cycle.
var detectorColors = []string{
	"#5470c6", "#91cc75", "#fac858", "#ee6666",
	"#73c0de", "#3ba272", "#fc8452", "#9a60b4",
}

type axisPick func(*store.Record) (x, y float64)

// Dashboard renders the alignment summary dashboard to an HTML file:
// one scatter page per quality metric, with one colored series per
// detector and tooltips carrying the image provenance.
func Dashboard(recs []*store.Record, outPath string) error {
	var good []*store.Record
	for _, r := range recs {
		if r.Status == "SUCCESS" {
			good = append(good, r)
		}
	}
	if len(good) == 0 {
		return fmt.Errorf("no successful alignment records to plot")
	}

	page := components.NewPage()
	page.AddCharts(
		metricScatter(good, "RMS per axis", "RMS X (pixels)", "RMS Y (pixels)",
			func(r *store.Record) (float64, float64) { return r.RMSX, r.RMSY }),
		metricScatter(good, "Fitted shifts", "Shift X (pixels)", "Shift Y (pixels)",
			func(r *store.Record) (float64, float64) { return r.XSh, r.YSh }),
		metricScatter(good, "Rotation vs matches", "nmatches", "rotation (degrees)",
			func(r *store.Record) (float64, float64) { return float64(r.NMatches), r.Rot }),
		metricScatter(good, "Scale vs matches", "nmatches", "scale",
			func(r *store.Record) (float64, float64) { return float64(r.NMatches), r.Scale }),
		metricScatter(good, "Skew vs matches", "nmatches", "skew (degrees)",
			func(r *store.Record) (float64, float64) { return float64(r.NMatches), r.Skew }),
	)

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create dashboard: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	monitoring.Logf("wrote summary dashboard %s (%d records)", outPath, len(good))
	return nil
}

// metricScatter builds one scatter chart with a series per detector.
func metricScatter(recs []*store.Record, title, xLabel, yLabel string, pick axisPick) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Alignment QA summary", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d images", len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: xLabel, NameLocation: "middle", NameGap: 30, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: yLabel, NameLocation: "middle", NameGap: 45, Scale: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	byDetector := make(map[string][]*store.Record)
	for _, r := range recs {
		det := r.Detector
		if det == "" {
			det = "unknown"
		}
		byDetector[det] = append(byDetector[det], r)
	}
	detectors := make([]string, 0, len(byDetector))
	for det := range byDetector {
		detectors = append(detectors, det)
	}
	sort.Strings(detectors)

	for i, det := range detectors {
		data := make([]opts.ScatterData, 0, len(byDetector[det]))
		for _, r := range byDetector[det] {
			x, y := pick(r)
			data = append(data, opts.ScatterData{
				Name:  tooltipLabel(r),
				Value: []interface{}{x, y},
			})
		}
		scatter.AddSeries(det, data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: detectorColors[i%len(detectorColors)]}),
		)
	}
	return scatter
}

func tooltipLabel(r *store.Record) string {
	return fmt.Sprintf("%s %s/%s %s %s aligned to %s",
		r.ImgName, r.Instrument, r.Detector, r.Filter, r.DateObs, r.AlignedTo)
}
