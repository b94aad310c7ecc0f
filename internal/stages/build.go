package stages

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"git.home.luguber.info/inful/distcache/internal/archive"
	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/environment"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/git"
	"git.home.luguber.info/inful/distcache/internal/handoff"
	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/metrics"
	"git.home.luguber.info/inful/distcache/internal/observability"
)

const teardownTimeout = 2 * time.Minute

// BuildResult describes a successful build stage.
type BuildResult struct {
	RunID       string
	Commit      string // merged HEAD inside the environment
	Merged      bool
	ArchivePath string // local copy of the archive
	Key         string // hand-off key
	Record      handoff.Record
}

// BuildStage merges, packages and hands off.
type BuildStage struct {
	cfg         *config.Config
	provisioner environment.Provisioner
	transfer    *handoff.Transfer
	recorder    metrics.Recorder
	numCPU      func() int
}

// NewBuildStage wires a build stage.
func NewBuildStage(cfg *config.Config, provisioner environment.Provisioner, transfer *handoff.Transfer) *BuildStage {
	return &BuildStage{
		cfg:         cfg,
		provisioner: provisioner,
		transfer:    transfer,
		recorder:    metrics.NoopRecorder{},
		numCPU:      runtime.NumCPU,
	}
}

// WithRecorder sets the metrics recorder.
func (s *BuildStage) WithRecorder(r metrics.Recorder) *BuildStage {
	if r != nil {
		s.recorder = r
	}
	return s
}

// Run executes the build stage. The environment is torn down on every exit path.
func (s *BuildStage) Run(ctx context.Context, req Request) (result *BuildResult, err error) {
	ctx = observability.WithStage(ctx, StageBuild)
	if err := s.cfg.RequireBuild(); err != nil {
		return nil, err
	}
	key, err := handoff.Key(req.RunID, s.cfg.Handoff.Name)
	if err != nil {
		return nil, errors.ValidationError("invalid run id").WithCause(err).Build()
	}

	observability.InfoContext(ctx, "Provisioning build environment", logfields.Runtime(string(s.provisioner.Runtime())))
	env, err := s.provisioner.Provision(ctx)
	if err != nil {
		return nil, classify(err, errors.EnvironmentError("failed to provision build environment"))
	}
	observability.InfoContext(ctx, "Build environment ready", logfields.Environment(env.ID()))
	defer s.teardown(ctx, env)

	src, err := git.PrepareSource(ctx, env, s.cfg.Source.URL, req.Pair, git.Identity{
		Name:  s.cfg.Cache.AuthorName,
		Email: s.cfg.Cache.AuthorEmail,
	})
	if err != nil {
		return nil, err
	}

	if err := s.pack(ctx, env); err != nil {
		return nil, err
	}

	outDir := filepath.Join(s.cfg.Packaging.OutputDir, req.RunID)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, errors.FileSystemError("failed to create output directory").
			WithCause(err).
			WithContext("path", outDir).
			Build()
	}
	archivePath := filepath.Join(outDir, filepath.Base(s.cfg.Packaging.Archive))
	if err := env.CopyOut(ctx, s.cfg.Packaging.Archive, archivePath); err != nil {
		return nil, classify(err, errors.EnvironmentError("failed to copy archive out of build environment").
			WithContext("archive", s.cfg.Packaging.Archive))
	}
	// The environment has served its purpose once the archive is out.
	s.teardown(ctx, env)

	if err := archive.Verify(archivePath, s.cfg.Artifact.Entries()); err != nil {
		return nil, err
	}

	rec, err := s.transfer.PutFile(ctx, key, archivePath)
	if err != nil {
		return nil, err
	}
	s.recorder.ObserveArtifactSize(rec.Size)

	return &BuildResult{
		RunID:       req.RunID,
		Commit:      src.Commit,
		Merged:      src.Merged,
		ArchivePath: archivePath,
		Key:         key,
		Record:      rec,
	}, nil
}

func (s *BuildStage) pack(ctx context.Context, env environment.Environment) error {
	jobs := s.cfg.Packaging.Jobs
	if jobs <= 0 {
		jobs = s.numCPU()
	}
	vars := make(map[string]string, len(s.cfg.Packaging.Env)+1)
	for k, v := range s.cfg.Packaging.Env {
		vars[k] = v
	}
	vars["JOBS"] = strconv.Itoa(jobs)

	start := time.Now()
	observability.InfoContext(ctx, "Packaging", logfields.Command(s.cfg.Packaging.Command), slog.Int("jobs", jobs))
	res, err := env.Run(ctx, environment.Exec{Args: []string{"sh", "-c", s.cfg.Packaging.Command}, Env: vars})
	if err != nil {
		return errors.PackagingError("packaging command failed").
			WithCause(err).
			WithContext("command", s.cfg.Packaging.Command).
			Build()
	}
	observability.DebugContext(ctx, "Packaging output", slog.String("output", res.Output()))
	observability.InfoContext(ctx, "Packaging complete", logfields.Since(start))
	return nil
}

func (s *BuildStage) teardown(ctx context.Context, env environment.Environment) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := env.Teardown(tctx); err != nil {
		observability.WarnContext(ctx, "Failed to tear down build environment",
			logfields.Environment(env.ID()), logfields.Error(err))
	}
}
