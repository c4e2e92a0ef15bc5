// Command volley runs a WebSocket scenario against a target with a
// configurable number of concurrent sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"volley/internal/collector"
	"volley/internal/config"
	"volley/internal/coordinator"
	"volley/internal/core"
	"volley/internal/data"
	"volley/internal/engine"
	"volley/internal/logging"
	"volley/internal/metrics"
	"volley/internal/processor"
	"volley/internal/progress"
	"volley/internal/ratelimit"
	"volley/internal/ws"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

// profileGrace is how long sessions may finish after a load profile ends.
const profileGrace = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath    string
	actors        int
	duration      time.Duration
	output        string
	quiet         bool
	verbose       bool
	maxIterations int
	warmup        int
	metricsAddr   string
}

func parseFlags(args []string, stderr io.Writer, env config.Env) (options, error) {
	var o options
	fs := flag.NewFlagSet("volley", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to YAML script (required)")
	fs.IntVar(&o.actors, "actors", 5, "number of concurrent sessions without a load profile")
	fs.DurationVar(&o.duration, "duration", 10*time.Second, "test duration without a load profile")
	fs.StringVar(&o.output, "output", "text", "output format: text, json")
	fs.BoolVar(&o.quiet, "quiet", false, "suppress progress output during test")
	fs.BoolVar(&o.verbose, "verbose", false, "log WebSocket connects and frames")
	fs.IntVar(&o.maxIterations, "max-iterations", 0, "max sessions per actor (0 = unlimited)")
	fs.IntVar(&o.warmup, "warmup", 0, "warmup sessions per actor before collecting metrics")
	fs.StringVar(&o.metricsAddr, "metrics-addr", env.MetricsAddr, "serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.configPath == "" {
		fs.Usage()
		return o, errors.New("--config is required")
	}
	if o.output != "text" && o.output != "json" {
		return o, fmt.Errorf("--output must be 'text' or 'json', got %q", o.output)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	env, err := config.ParseEnv()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	logger, err := logging.New(env.LogLevel, env.LogFormat, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	opts, err := parseFlags(args, stderr, env)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	cfg.ApplyEnv(env)

	scenario, prepare, err := build(cfg, opts, stderr, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	coll := collector.NewCollector()
	var emitter core.Emitter = coll
	var prom *metrics.Emitter
	if opts.metricsAddr != "" {
		prom = metrics.NewEmitter()
		emitter = core.Fanout{coll, prom}
	}

	coord := coordinator.NewCoordinator(emitter, logger)
	prog := progress.NewProgress(coll, opts.quiet)
	prog.SetOutput(stderr)

	// CLI flags override script values
	runnerConfig := core.RunnerConfig{
		MaxIterations: cfg.Settings.Execution.MaxIterations,
		WarmupIters:   cfg.Settings.Execution.WarmupIterations,
		Prepare:       prepare,
	}
	if opts.maxIterations > 0 {
		runnerConfig.MaxIterations = opts.maxIterations
	}
	if opts.warmup > 0 {
		runnerConfig.WarmupIters = opts.warmup
	}

	g, gctx := errgroup.WithContext(ctx)
	var srv *http.Server
	if prom != nil {
		srv = &http.Server{Addr: opts.metricsAddr, Handler: prom.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", opts.metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer shutdown(srv)
		if cfg.Settings.LoadProfile != nil && len(cfg.Settings.LoadProfile.Phases) > 0 {
			runWithProfile(gctx, cfg, coord, scenario, prog, runnerConfig)
		} else {
			if opts.actors < 1 {
				return errors.New("--actors must be >= 1")
			}
			runClassic(gctx, cfg, coord, scenario, prog, opts.actors, opts.duration, runnerConfig)
		}
		return nil
	})
	runErr := g.Wait()

	prog.Stop()
	coll.Close()

	if dropped := coll.DroppedEvents(); dropped > 0 {
		logger.Warn("metrics events dropped", "count", dropped)
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "error: %v\n", runErr)
		return ExitError
	}

	m := coll.Compute()
	var thresholdResults *collector.ThresholdResults
	if cfg.Settings.Thresholds != nil {
		thresholdResults = cfg.Settings.Thresholds.Check(m)
	}

	if opts.output == "json" {
		collector.FormatJSON(stdout, m, thresholdResults)
	} else {
		collector.FormatText(stdout, m, thresholdResults)
	}

	if ctx.Err() != nil {
		return ExitSuccess
	}
	if thresholdResults != nil && !thresholdResults.Passed {
		if opts.output == "text" {
			fmt.Fprintln(stderr, "\nThreshold check failed!")
		}
		return ExitThresholdFailed
	}
	return ExitSuccess
}

// build loads processors and payloads and compiles the scenario.
func build(cfg *config.Config, opts options, stderr io.Writer, logger *slog.Logger) (*engine.Scenario, func(*core.Session), error) {
	s := cfg.Settings

	registry := processor.NewRegistry()
	if path := cfg.ProcessorPath(); path != "" {
		if err := processor.LoadFile(path, registry); err != nil {
			return nil, nil, err
		}
		logger.Debug("processor loaded", "path", path, "functions", registry.Names())
	}

	sources, err := data.LoadAll(s.Payload, cfg.Dir)
	if err != nil {
		return nil, nil, err
	}

	tlsConfig, err := s.EffectiveTLS().Config()
	if err != nil {
		return nil, nil, err
	}

	var debug *ws.DebugLogger
	if opts.verbose {
		debug = ws.NewDebugLogger(stderr)
	}

	compiler := engine.NewCompiler(engine.Options{
		Target:           s.Target,
		Subprotocols:     s.WS.Subprotocols,
		Headers:          s.WS.Headers,
		ConnectionInit:   s.WS.ConnectionInit,
		SendTimeout:      s.WS.SendTimeout,
		ThinkJitter:      s.Defaults.Think.Jitter,
		Processors:       registry,
		StrictProcessors: s.StrictProcessors,
		Dialer: ws.NewDialer(ws.Options{
			HandshakeTimeout: s.WS.ConnectTimeout,
			Compression:      s.WS.Compression,
			TLS:              tlsConfig,
			Debug:            debug,
		}),
		Logger: logger,
	})

	scenario, err := compiler.Compile(cfg.Scenario.Flow)
	if err != nil {
		return nil, nil, fmt.Errorf("compiling scenario %q: %w", cfg.Scenario.Name, err)
	}

	prepare := func(sess *core.Session) {
		for k, v := range s.Variables {
			sess.Vars.Set(k, cloneValue(v))
		}
		sources.Prepare(sess)
	}
	return scenario, prepare, nil
}

// cloneValue copies nested maps and lists so sessions never share them.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func shutdown(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func runClassic(ctx context.Context, cfg *config.Config, coord *coordinator.Coordinator, scenario core.Scenario, prog *progress.Progress, actors int, duration time.Duration, runnerConfig core.RunnerConfig) {
	prog.Printf("Volley starting: %d actors, duration %v, scenario %q, target %s",
		actors, duration, cfg.Scenario.Name, cfg.Settings.Target)

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	prog.Start()
	coord.SpawnWithConfig(ctx, actors, scenario, runnerConfig)
	coord.Wait()
}

func runWithProfile(ctx context.Context, cfg *config.Config, coord *coordinator.Coordinator, scenario core.Scenario, prog *progress.Progress, runnerConfig core.RunnerConfig) {
	profile := cfg.Settings.LoadProfile

	prog.Printf("Volley starting with load profile, scenario %q, target %s",
		cfg.Scenario.Name, cfg.Settings.Target)

	// The first phase with an arrival rate seeds the limiter
	var rateLimiter *ratelimit.RateLimiter
	for _, phase := range profile.Phases {
		if phase.RPS > 0 {
			rateLimiter = ratelimit.NewRateLimiter(phase.RPS)
			break
		}
	}

	ctx, cancel := context.WithTimeout(ctx, profile.TotalDuration()+profileGrace)
	defer cancel()

	prog.Start()
	coord.RunWithProfile(ctx, profile, scenario, rateLimiter, prog, runnerConfig)
	coord.Wait()
}
