package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"netharness/internal/config"
	"netharness/internal/doctor"
	"netharness/internal/emitter"
	"netharness/internal/execx"
	"netharness/internal/harness"
	"netharness/internal/logstore"
	"netharness/internal/model"
	"netharness/internal/probe"
	"netharness/internal/report"
	"netharness/internal/scheduler"
	"netharness/internal/server"
	"netharness/internal/summary"
)

// flags collects every command-line override. Empty values keep the
// config file setting.
type flags struct {
	configPath  string
	logLevel    string
	logDir      string
	summaryPath string
	layout      string

	test         string
	latencyDest  string
	wgetURL      string
	iperf3Server string
	proxy        string
	stun         string
	iperf3JSON   bool
	noPlot       bool

	plotDir   string
	window    time.Duration
	schedule  string
	immediate bool
	listen    string
	force     bool
}

// DefaultConfigPath is where init writes when --config is not given.
const DefaultConfigPath = "netharness.yaml"

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "netharness",
		Short:         "Network measurement harness: probe, log, summarize, plot",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			level := f.logLevel
			if level == "" {
				level = config.DefaultLogLevel
			}
			return setupLogging(level)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to YAML config")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&f.logDir, "log-dir", "", "directory of the measurement logs")
	pf.StringVar(&f.summaryPath, "summary", "", "summary CSV path")
	pf.StringVar(&f.layout, "layout", "", "log layout: unified or split")

	root.AddCommand(
		newInitCmd(f),
		newRunCmd(f),
		newAggregateCmd(f),
		newPlotCmd(f),
		newStatsCmd(f),
		newWatchCmd(f),
		newServeCmd(f),
		newDoctorCmd(),
	)
	return root
}

func addTestFlags(cmd *cobra.Command, f *flags) {
	fl := cmd.Flags()
	fl.StringVar(&f.test, "test", harness.SelectAll, "tests to run: latency, wget, iperf3 or all")
	fl.StringVar(&f.latencyDest, "latency-dest", "", "ping and HTTP destination")
	fl.StringVar(&f.wgetURL, "wget-url", "", "URL of the file to download")
	fl.StringVar(&f.iperf3Server, "iperf3-server", "", "iperf3 server host[:port]")
	fl.StringVar(&f.proxy, "proxy", "", "forward proxy URL for proxied measurements")
	fl.StringVar(&f.stun, "stun", "", "comma-separated STUN servers")
	fl.BoolVar(&f.iperf3JSON, "iperf3-json", false, "run iperf3 with JSON output")
	fl.BoolVar(&f.noPlot, "no-plot", false, "skip plot rendering")
}

func newInitCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with defaults and the given destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := f.configPath
			if path == "" {
				path = DefaultConfigPath
			}
			if _, err := os.Stat(path); err == nil && !f.force {
				return errors.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.Config{
				Destinations: config.Destinations{
					Latency: f.latencyDest,
					Wget:    f.wgetURL,
					Iperf3:  f.iperf3Server,
				},
				Proxy:       f.proxy,
				LogDir:      f.logDir,
				SummaryPath: f.summaryPath,
				Layout:      f.layout,
				Iperf3JSON:  f.iperf3JSON,
			}
			if f.stun != "" {
				cfg.STUNServers = splitList(f.stun)
			}
			config.ApplyDefaults(&cfg)
			if err := config.Validate(cfg); err != nil {
				return errors.Wrap(err, "invalid config")
			}
			if err := config.Save(path, cfg); err != nil {
				return errors.Wrapf(err, "write %s", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.latencyDest, "latency-dest", "", "ping and HTTP destination")
	fl.StringVar(&f.wgetURL, "wget-url", "", "URL of the file to download")
	fl.StringVar(&f.iperf3Server, "iperf3-server", "", "iperf3 server host[:port]")
	fl.StringVar(&f.proxy, "proxy", "", "forward proxy URL for proxied measurements")
	fl.StringVar(&f.stun, "stun", "", "comma-separated STUN servers")
	fl.BoolVar(&f.iperf3JSON, "iperf3-json", false, "run iperf3 with JSON output")
	fl.BoolVar(&f.force, "force", false, "overwrite an existing config")
	return cmd
}

func newRunCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the selected tests once and rebuild the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sel, err := testSetup(cmd, f)
			if err != nil {
				return err
			}
			h, closeStore, err := newHarness(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := h.Run(cmd.Context(), sel)
			if err != nil {
				return err
			}
			printResult(cmd, cfg, res)
			return nil
		},
	}
	addTestFlags(cmd, f)
	return cmd
}

func newAggregateCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild the summary file from the logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			h, closeStore, err := newHarness(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := h.Aggregate()
			if err != nil {
				return err
			}
			printResult(cmd, cfg, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.noPlot, "no-plot", false, "skip plot rendering")
	return cmd
}

func newPlotCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render PNG charts from the summary file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			rows, err := summary.ReadCSV(cfg.SummaryPath)
			if err != nil {
				return err
			}
			written, err := report.Render(cfg.PlotDir, rows)
			for _, p := range written {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&f.plotDir, "plot-dir", "", "output directory for charts")
	return cmd
}

func newStatsCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-column statistics of the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			rows, err := summary.ReadCSV(cfg.SummaryPath)
			if err != nil {
				return err
			}
			var since time.Time
			if f.window > 0 {
				since = time.Now().Add(-f.window)
			}
			st := summary.Summarize(rows, since)
			out := cmd.OutOrStdout()
			if st.Rows == 0 {
				fmt.Fprintln(out, "no rows in window")
				return nil
			}
			fmt.Fprintf(out, "rows=%d from=%s to=%s\n", st.Rows, st.From, st.To)
			for _, s := range st.Slots {
				if s.Count == 0 {
					fmt.Fprintf(out, "%s n=0\n", s.Slot)
					continue
				}
				fmt.Fprintf(out, "%s n=%d avg=%.3f p95=%.3f min=%.3f max=%.3f %s\n", s.Slot, s.Count, s.Avg, s.P95, s.Min, s.Max, s.Unit)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&f.window, "window", 0, "only rows newer than this (0 = all)")
	return cmd
}

func newWatchCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the selected tests on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sel, err := testSetup(cmd, f)
			if err != nil {
				return err
			}
			if f.schedule != "" {
				cfg.Schedule = f.schedule
			}
			h, closeStore, err := newHarness(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			return scheduler.Run(cmd.Context(), cfg.Schedule, f.immediate, func(ctx context.Context) {
				res, err := h.Run(ctx, sel)
				if err != nil {
					log.Error().Err(err).Msg("scheduled run failed")
					return
				}
				log.Info().Int("rows", len(res.Rows)).Int("records", res.Records).Msg("scheduled run done")
			})
		},
	}
	addTestFlags(cmd, f)
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "cron schedule with seconds field")
	cmd.Flags().BoolVar(&f.immediate, "now", false, "run once before the first tick")
	return cmd
}

func newServeCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve records, summary and stats over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if f.listen != "" {
				cfg.Listen = f.listen
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			router := server.NewRouter(store, server.Options{PlotDir: cfg.PlotDir})
			return server.Serve(cmd.Context(), cfg.Listen, router)
		},
	}
	cmd.Flags().StringVar(&f.listen, "listen", "", "listen address")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and host information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep := doctor.Check(cmd.Context(), execx.NewOSRunner())
			if err := rep.Write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if missing := rep.Missing(); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, m := range missing {
					names = append(names, m.Name+" ("+m.UsedBy+")")
				}
				log.Warn().Strs("missing", names).Msg("tests depending on these tools will record N/A")
			}
			return nil
		},
	}
}

// testSetup loads config, applies test flags and checks the selection and
// destinations. Configuration errors print usage.
func testSetup(cmd *cobra.Command, f *flags) (config.Config, []model.Category, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return config.Config{}, nil, err
	}
	if f.latencyDest != "" {
		cfg.Destinations.Latency = f.latencyDest
	}
	if f.wgetURL != "" {
		cfg.Destinations.Wget = f.wgetURL
	}
	if f.iperf3Server != "" {
		cfg.Destinations.Iperf3 = f.iperf3Server
	}
	if f.proxy != "" {
		cfg.Proxy = f.proxy
	}
	if f.stun != "" {
		cfg.STUNServers = splitList(f.stun)
	}
	if f.iperf3JSON {
		cfg.Iperf3JSON = true
	}

	sel, err := harness.ParseSelection(f.test)
	if err == nil {
		err = harness.CheckDestinations(cfg.Destinations, sel)
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), cmd.UsageString())
		return config.Config{}, nil, err
	}
	return cfg, sel, nil
}

func loadConfig(f *flags) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if f.logDir != "" {
		cfg.LogDir = f.logDir
		cfg.SummaryPath = filepath.Join(f.logDir, config.DefaultSummaryName)
	}
	if f.summaryPath != "" {
		cfg.SummaryPath = f.summaryPath
	}
	if f.layout != "" {
		cfg.Layout = f.layout
	}
	if f.plotDir != "" {
		cfg.PlotDir = f.plotDir
	}
	if f.noPlot {
		disabled := false
		cfg.Plot = &disabled
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, errors.Wrap(err, "invalid config")
	}
	if f.logLevel == "" && cfg.LogLevel != config.DefaultLogLevel {
		if err := setupLogging(cfg.LogLevel); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func openStore(cfg config.Config) (*logstore.Store, error) {
	store, err := logstore.Open(logstore.Options{
		Dir:    cfg.LogDir,
		Layout: cfg.Layout,
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open log store")
	}
	log.Debug().Strs("sources", store.Sources()).Msg("log store open")
	return store, nil
}

func newHarness(cfg config.Config) (*harness.Harness, func(), error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	prober := probe.NewProber(execx.NewOSRunner(), probe.Options{
		PingCount:  cfg.PingCount,
		Iperf3JSON: cfg.Iperf3JSON,
	})
	h := harness.New(prober, store, emitter.New(store), harness.OptionsFromConfig(cfg))
	closeStore := func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close log store")
		}
	}
	return h, closeStore, nil
}

func printResult(cmd *cobra.Command, cfg config.Config, res harness.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "records=%d rows=%d summary=%s\n", res.Records, len(res.Rows), cfg.SummaryPath)
	for _, p := range res.Plots {
		fmt.Fprintf(out, "plot=%s\n", p)
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
