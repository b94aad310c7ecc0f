package stages

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/distcache/internal/archive"
	"git.home.luguber.info/inful/distcache/internal/auth"
	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/git"
	"git.home.luguber.info/inful/distcache/internal/handoff"
	"git.home.luguber.info/inful/distcache/internal/ledger"
	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/observability"
	"git.home.luguber.info/inful/distcache/internal/retry"
	"git.home.luguber.info/inful/distcache/internal/workspace"
)

// CredentialSource hands out transient push credentials.
type CredentialSource interface {
	Acquire(authCfg *config.AuthConfig) (*auth.Credential, error)
}

// PublishResult describes a successful publish stage.
type PublishResult struct {
	RunID  string
	Tag    string
	Commit string
	URL    string
}

// PublishStage commits the artifact to the cache repository and pushes its tag.
type PublishStage struct {
	cfg         *config.Config
	transfer    *handoff.Transfer
	credentials CredentialSource
	ledger      ledger.Ledger
	policy      retry.Policy
	workDir     string
	now         func() time.Time
}

// NewPublishStage wires a publish stage.
func NewPublishStage(cfg *config.Config, transfer *handoff.Transfer, credentials CredentialSource) *PublishStage {
	if credentials == nil {
		credentials = auth.DefaultManager
	}
	return &PublishStage{
		cfg:         cfg,
		transfer:    transfer,
		credentials: credentials,
		ledger:      ledger.Nop{},
		policy:      retry.FromConfig(cfg.Retry),
		now:         time.Now,
	}
}

// WithLedger lets the stage warn early about tags already published from this host.
func (s *PublishStage) WithLedger(l ledger.Ledger) *PublishStage {
	if l != nil {
		s.ledger = l
	}
	return s
}

// WithWorkDir sets the parent directory of the transient workspace (default os.TempDir).
func (s *PublishStage) WithWorkDir(dir string) *PublishStage {
	s.workDir = dir
	return s
}

// WithClock overrides the commit timestamp source (for testing).
func (s *PublishStage) WithClock(now func() time.Time) *PublishStage {
	s.now = now
	return s
}

// Run executes the publish stage.
func (s *PublishStage) Run(ctx context.Context, req Request) (*PublishResult, error) {
	ctx = observability.WithStage(ctx, StagePublish)
	if err := s.cfg.RequirePublish(); err != nil {
		return nil, err
	}
	url := s.cfg.Cache.URL
	tag := req.Pair.TagName(s.cfg.Cache.TagPrefix)

	if prev, ok, err := s.ledger.PublishedTag(ctx, tag); err != nil {
		observability.WarnContext(ctx, "Run ledger lookup failed", logfields.Error(err))
	} else if ok {
		observability.WarnContext(ctx, "Tag was already published by an earlier run",
			logfields.Tag(tag), logfields.RunID(prev.RunID))
	}

	ws := workspace.NewManager(s.workDir, "distcache-publish")
	if err := ws.Create(); err != nil {
		return nil, errors.FileSystemError("failed to create publish workspace").WithCause(err).Build()
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			observability.WarnContext(ctx, "Failed to clean up publish workspace", logfields.Error(err))
		}
	}()

	repoDir, err := ws.CreateSubdir("cache")
	if err != nil {
		return nil, errors.FileSystemError("failed to create cache worktree").WithCause(err).Build()
	}
	repo, err := git.InitCacheRepo(repoDir)
	if err != nil {
		return nil, err
	}

	key, err := handoff.Key(req.RunID, s.cfg.Handoff.Name)
	if err != nil {
		return nil, errors.ValidationError("invalid run id").WithCause(err).Build()
	}
	artifactPath := filepath.Join(ws.GetPath(), "artifact", filepath.Base(s.cfg.Packaging.Archive))
	if _, err := s.transfer.GetFile(ctx, key, artifactPath); err != nil {
		return nil, err
	}

	entries := s.cfg.Artifact.Entries()
	if err := archive.Verify(artifactPath, entries); err != nil {
		return nil, err
	}
	if _, err := archive.Extract(artifactPath, repoDir, entries); err != nil {
		return nil, errors.StagingError("failed to extract artifact").
			WithCause(err).
			WithContext("path", artifactPath).
			Build()
	}

	marker := filepath.Join(repoDir, s.cfg.Cache.MarkerFile)
	if err := os.WriteFile(marker, []byte(req.Pair.Base.String()), 0o644); err != nil { // #nosec G306 - committed content
		return nil, errors.StagingError("failed to write merge-base marker").
			WithCause(err).
			WithContext("path", marker).
			Build()
	}

	hash, err := repo.Commit(append(entries, s.cfg.Cache.MarkerFile), req.Pair.CommitMessage(), git.Signature{
		Name:  s.cfg.Cache.AuthorName,
		Email: s.cfg.Cache.AuthorEmail,
	}, s.now())
	if err != nil {
		return nil, err
	}
	if err := repo.Tag(tag, hash); err != nil {
		return nil, err
	}
	observability.InfoContext(ctx, "Created cache commit", logfields.Tag(tag), logfields.Path(repoDir))

	if err := s.push(ctx, repo, url, tag); err != nil {
		return nil, err
	}
	observability.InfoContext(ctx, "Published cache tag", logfields.Tag(tag), logfields.URL(url))

	return &PublishResult{RunID: req.RunID, Tag: tag, Commit: hash.String(), URL: url}, nil
}

// push holds the credential only for the duration of the remote operations.
func (s *PublishStage) push(ctx context.Context, repo *git.CacheRepo, url, tag string) error {
	cred, err := s.credentials.Acquire(s.cfg.Cache.Auth)
	if err != nil {
		return err
	}
	defer func() {
		if err := cred.Close(); err != nil {
			observability.WarnContext(ctx, "Failed to release credential", logfields.Error(err))
		}
	}()

	var exists bool
	err = retry.Do(ctx, s.policy, "ls-remote", git.IsTransient, func(ctx context.Context) error {
		var lerr error
		exists, lerr = git.RemoteTagExists(ctx, url, tag, cred.Auth)
		return lerr
	})
	if err != nil {
		return err
	}
	if exists {
		return git.ClassifyGitError(&git.TagExistsError{Tag: tag, URL: url}, "ls-remote", url)
	}

	err = retry.Do(ctx, s.policy, "push", git.IsTransient, func(ctx context.Context) error {
		return repo.PushTag(ctx, url, tag, cred.Auth)
	})
	if err != nil {
		return err
	}
	return cred.Close()
}
