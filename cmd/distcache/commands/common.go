package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/environment"
	"git.home.luguber.info/inful/distcache/internal/handoff"
	"git.home.luguber.info/inful/distcache/internal/ledger"
	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/metrics"
	"git.home.luguber.info/inful/distcache/internal/retry"
	"git.home.luguber.info/inful/distcache/internal/stages"
)

// Global carries state shared by all subcommands.
type Global struct {
	Ctx context.Context
}

// Context returns the command context, canceled on SIGINT/SIGTERM.
func (g *Global) Context() context.Context {
	if g == nil || g.Ctx == nil {
		return context.Background()
	}
	return g.Ctx
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (default distcache.yaml when present)" env:"DISTCACHE_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Merge head onto base, package and hand the archive off"`
	Publish PublishCmd `cmd:"" help:"Commit a handed-off archive to the distribution cache and push its tag"`
	Run     RunCmd     `cmd:"" help:"Run build then publish"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"List recorded pipeline runs from the run ledger"`
	Prune   PruneCmd   `cmd:"" help:"Delete expired hand-off artifacts"`
}

// AfterApply runs after flag parsing; set up logging once. Commands that
// load configuration refine it from the logging section.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// RevisionFlags are shared by the stage commands.
type RevisionFlags struct {
	Base  string `help:"Base revision identifier" env:"DISTCACHE_BASE" required:""`
	Head  string `help:"Head revision identifier merged onto base (defaults to base)" env:"DISTCACHE_HEAD"`
	RunID string `name:"run-id" help:"Pipeline run identifier" env:"DISTCACHE_RUN_ID"`
}

func (r RevisionFlags) request() (stages.Request, error) {
	return stages.NewRequest(r.RunID, r.Base, r.Head)
}

// loadConfig loads the configuration and applies the logging section.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging, root.Verbose)
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig, verbose bool) {
	level := cfg.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// services holds everything a stage command wires together.
type services struct {
	cfg      *config.Config
	store    handoff.Store
	transfer *handoff.Transfer
	ledger   ledger.Ledger
	recorder metrics.Recorder
	prom     *metrics.PrometheusRecorder
}

func openServices(ctx context.Context, cfg *config.Config) (*services, error) {
	store, err := handoff.Open(ctx, cfg.Handoff)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.Ledger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s := &services{
		cfg:      cfg,
		store:    store,
		transfer: handoff.NewTransfer(store, retry.FromConfig(cfg.Retry), cfg.Handoff.RetentionDuration()),
		ledger:   l,
		recorder: metrics.NoopRecorder{},
	}
	if cfg.Metrics.Textfile != "" {
		s.prom = metrics.NewPrometheusRecorder(nil)
		s.recorder = s.prom
	}
	return s, nil
}

func (s *services) pipeline(withBuild, withPublish bool) (*stages.Pipeline, error) {
	var build *stages.BuildStage
	if withBuild {
		provisioner, err := environment.NewProvisioner(s.cfg.Environment, nil)
		if err != nil {
			return nil, err
		}
		build = stages.NewBuildStage(s.cfg, provisioner, s.transfer)
	}
	var publish *stages.PublishStage
	if withPublish {
		publish = stages.NewPublishStage(s.cfg, s.transfer, nil).WithLedger(s.ledger)
	}
	return stages.NewPipeline(build, publish, s.cfg.Timeouts.BuildTimeout(), s.cfg.Timeouts.PublishTimeout()).
		WithLedger(s.ledger).
		WithRecorder(s.recorder), nil
}

// close flushes metrics and releases the store and ledger.
func (s *services) close() {
	if s.prom != nil {
		if err := s.prom.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			slog.Warn("Failed to write metrics textfile", logfields.Path(s.cfg.Metrics.Textfile), logfields.Error(err))
		}
	}
	if err := s.ledger.Close(); err != nil {
		slog.Warn("Failed to close run ledger", logfields.Error(err))
	}
	if err := s.store.Close(); err != nil {
		slog.Warn("Failed to close hand-off store", logfields.Error(err))
	}
}
