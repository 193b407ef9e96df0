package report

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"netharness/internal/model"
	"netharness/internal/summary"
)

// Chart describes one PNG rendered from summary columns.
type Chart struct {
	File  string
	Title string
	Unit  string
	Slots []model.Slot
}

// Charts is the default chart set.
var Charts = []Chart{
	{File: "latency.png", Title: "Ping latency", Unit: "ms", Slots: []model.Slot{model.SlotPingLatency}},
	{File: "http.png", Title: "HTTP latency", Unit: "s", Slots: []model.Slot{model.SlotHTTPDirectLatency, model.SlotHTTPProxyLatency}},
	{File: "wget.png", Title: "Download time", Unit: "s", Slots: []model.Slot{model.SlotWgetDirectTime, model.SlotWgetProxyTime}},
	{File: "iperf3.png", Title: "iperf3 throughput", Unit: "Mbits/sec", Slots: []model.Slot{model.SlotIperf3Speed}},
}

var palette = []drawing.Color{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
}

const minPoints = 2

// Render writes every chart with enough data into dir and returns the
// written paths. A chart that fails to render does not stop the others;
// the last error is returned.
func Render(dir string, rows []model.SummaryRow) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create plot dir")
	}

	var written []string
	var lastErr error
	for _, c := range Charts {
		data, ok, err := renderChart(c, rows)
		if err != nil {
			log.Warn().Err(err).Str("chart", c.File).Msg("render failed")
			lastErr = errors.Wrapf(err, "render %s", c.File)
			continue
		}
		if !ok {
			log.Debug().Str("chart", c.File).Msg("not enough points, skipping chart")
			continue
		}
		path := filepath.Join(dir, c.File)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			lastErr = errors.Wrapf(err, "write %s", path)
			continue
		}
		written = append(written, path)
	}
	return written, lastErr
}

func renderChart(c Chart, rows []model.SummaryRow) ([]byte, bool, error) {
	var series []chart.Series
	minY, maxY := 0.0, 0.0
	first := true
	for i, slot := range c.Slots {
		xs, ys := points(rows, slot)
		if len(xs) < minPoints {
			continue
		}
		for _, y := range ys {
			if first || y < minY {
				minY = y
			}
			if first || y > maxY {
				maxY = y
			}
			first = false
		}
		col := palette[i%len(palette)]
		series = append(series, chart.TimeSeries{
			Name:    slot.String(),
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: col, StrokeWidth: 2, DotColor: col, DotWidth: 3},
		})
	}
	if len(series) == 0 {
		return nil, false, nil
	}

	yAxis := chart.YAxis{Name: c.Unit}
	if minY == maxY {
		yAxis.Range = &chart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}

	ch := chart.Chart{
		Title:      c.Title,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{ValueFormatter: chart.TimeValueFormatterWithFormat("01-02 15:04")},
		YAxis:      yAxis,
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// points extracts the numeric values of slot. Sentinel and non-numeric
// values are dropped, units are stripped.
func points(rows []model.SummaryRow, slot model.Slot) ([]time.Time, []float64) {
	var xs []time.Time
	var ys []float64
	for _, row := range rows {
		v, ok := summary.Numeric(row.Get(slot))
		if !ok {
			continue
		}
		ts, err := time.ParseInLocation(model.TimestampLayout, row.Timestamp, time.Local)
		if err != nil {
			continue
		}
		xs = append(xs, ts)
		ys = append(ys, v)
	}
	return xs, ys
}
