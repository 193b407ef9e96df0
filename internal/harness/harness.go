package harness

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"netharness/internal/config"
	"netharness/internal/emitter"
	"netharness/internal/model"
	"netharness/internal/report"
	"netharness/internal/summary"
)

// SelectAll selects every test category.
const SelectAll = "all"

// ParseSelection resolves a test selector to the categories it runs.
func ParseSelection(s string) ([]model.Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == SelectAll {
		return append([]model.Category(nil), model.Categories...), nil
	}
	c := model.Category(s)
	if !c.Valid() {
		return nil, errors.Errorf("unknown test type %q (want latency, wget, iperf3 or all)", s)
	}
	return []model.Category{c}, nil
}

// CheckDestinations reports a missing destination for any selected category.
func CheckDestinations(dest config.Destinations, sel []model.Category) error {
	for _, c := range sel {
		var v, flag string
		switch c {
		case model.CategoryLatency:
			v, flag = dest.Latency, "--latency-dest"
		case model.CategoryWget:
			v, flag = dest.Wget, "--wget-url"
		case model.CategoryIperf3:
			v, flag = dest.Iperf3, "--iperf3-server"
		}
		if strings.TrimSpace(v) == "" {
			return errors.Errorf("%s test needs a destination (%s)", c, flag)
		}
	}
	return nil
}

// Prober runs one measurement per call and never fails; unusable results
// come back as model.NotAvailable.
type Prober interface {
	Ping(ctx context.Context, dest string) string
	HTTP(ctx context.Context, dest, proxy string) string
	Wget(ctx context.Context, url, proxy string) string
	Iperf3(ctx context.Context, server string) string
	StunRTT(ctx context.Context, servers []string) string
}

// Log is the log store seen by a run.
type Log interface {
	Append(rec model.MetricRecord) error
	Records() ([]model.MetricRecord, error)
}

// Options configure a harness.
type Options struct {
	Destinations config.Destinations
	Proxy        string
	STUNServers  []string
	SummaryPath  string
	PlotDir      string
	Plot         bool
}

// Result is the outcome of one run.
type Result struct {
	Records int
	Rows    []model.SummaryRow
	Plots   []string
}

// Harness runs probes, logs their records and rebuilds the summary.
type Harness struct {
	prober Prober
	log    Log
	emit   *emitter.Emitter
	opts   Options
}

func New(prober Prober, store Log, emit *emitter.Emitter, opts Options) *Harness {
	if emit == nil {
		emit = emitter.New(store)
	}
	return &Harness{prober: prober, log: store, emit: emit, opts: opts}
}

// Run executes the selected tests one after another, then aggregates the
// whole log and renders plots. Destinations are checked before any probe
// runs. Probe failures only degrade their own metric.
func (h *Harness) Run(ctx context.Context, sel []model.Category) (Result, error) {
	if len(sel) == 0 {
		return Result{}, errors.New("no test selected")
	}
	if err := CheckDestinations(h.opts.Destinations, sel); err != nil {
		return Result{}, err
	}

	for _, c := range sel {
		if err := ctx.Err(); err != nil {
			return Result{}, errors.Wrap(err, "run interrupted")
		}
		log.Info().Str("test_type", string(c)).Msg("running test")
		if err := h.runCategory(ctx, c); err != nil {
			return Result{}, err
		}
	}

	return h.Aggregate()
}

func (h *Harness) runCategory(ctx context.Context, c model.Category) error {
	d := h.opts.Destinations
	proxy := h.opts.Proxy
	switch c {
	case model.CategoryLatency:
		if err := h.emit.Emit(c, d.Latency, "", model.MetricPing, h.prober.Ping(ctx, d.Latency)); err != nil {
			return err
		}
		if err := h.emit.Emit(c, d.Latency, "", model.MetricHTTPDirect, h.prober.HTTP(ctx, d.Latency, "")); err != nil {
			return err
		}
		if proxy != "" {
			if err := h.emit.Emit(c, d.Latency, proxy, model.MetricHTTPProxy, h.prober.HTTP(ctx, d.Latency, proxy)); err != nil {
				return err
			}
		}
		if len(h.opts.STUNServers) > 0 {
			servers := strings.Join(h.opts.STUNServers, " ")
			if err := h.emit.Emit(c, servers, "", model.MetricStunRTT, h.prober.StunRTT(ctx, h.opts.STUNServers)); err != nil {
				return err
			}
		}
	case model.CategoryWget:
		if err := h.emit.Emit(c, d.Wget, "", model.MetricDirectTime, h.prober.Wget(ctx, d.Wget, "")); err != nil {
			return err
		}
		if proxy != "" {
			if err := h.emit.Emit(c, d.Wget, proxy, model.MetricProxyTime, h.prober.Wget(ctx, d.Wget, proxy)); err != nil {
				return err
			}
		}
	case model.CategoryIperf3:
		if err := h.emit.Emit(c, d.Iperf3, "", model.MetricDirectSpeed, h.prober.Iperf3(ctx, d.Iperf3)); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown test type %q", c)
	}
	return nil
}

// Aggregate rebuilds the summary from the full log and renders plots when
// enabled. A plotting failure is logged and does not fail the call.
func (h *Harness) Aggregate() (Result, error) {
	records, err := h.log.Records()
	if err != nil {
		return Result{}, errors.Wrap(err, "read log")
	}
	rows, err := summary.Rebuild(h.opts.SummaryPath, records)
	if err != nil {
		return Result{}, errors.Wrap(err, "rebuild summary")
	}
	res := Result{Records: len(records), Rows: rows}
	log.Info().Int("records", len(records)).Int("rows", len(rows)).Str("path", h.opts.SummaryPath).Msg("summary updated")

	if h.opts.Plot {
		plots, err := report.Render(h.opts.PlotDir, rows)
		if err != nil {
			log.Warn().Err(err).Str("dir", h.opts.PlotDir).Msg("plotting skipped")
		}
		res.Plots = plots
	}
	return res, nil
}

// OptionsFromConfig maps a loaded config to harness options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Destinations: cfg.Destinations,
		Proxy:        cfg.Proxy,
		STUNServers:  cfg.STUNServers,
		SummaryPath:  cfg.SummaryPath,
		PlotDir:      cfg.PlotDir,
		Plot:         config.PlotEnabled(&cfg),
	}
}
