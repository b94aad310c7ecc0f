package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distcache/internal/auth"
	"git.home.luguber.info/inful/distcache/internal/config"
	ferrors "git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/handoff"
	"git.home.luguber.info/inful/distcache/internal/ledger"
	"git.home.luguber.info/inful/distcache/internal/metrics"
	"git.home.luguber.info/inful/distcache/internal/process"
	"git.home.luguber.info/inful/distcache/internal/retry"
)

type countingCredentials struct {
	acquired int
	released int
}

func (c *countingCredentials) Acquire(*config.AuthConfig) (*auth.Credential, error) {
	c.acquired++
	cred := &auth.Credential{Type: config.AuthTypeNone, Provider: "counting"}
	cred.OnClose(func() error {
		c.released++
		return nil
	})
	return cred, nil
}

type stageRecorder struct {
	metrics.NoopRecorder
	results  map[string]metrics.ResultLabel
	outcomes []metrics.ResultLabel
}

func (r *stageRecorder) IncStageResult(stage string, result metrics.ResultLabel) {
	if r.results == nil {
		r.results = map[string]metrics.ResultLabel{}
	}
	r.results[stage] = result
}

func (r *stageRecorder) IncPipelineOutcome(result metrics.ResultLabel) {
	r.outcomes = append(r.outcomes, result)
}

func newPipeline(t *testing.T, env *fakeEnv, remote string) (*Pipeline, *ledger.SQLiteLedger, *stageRecorder) {
	t.Helper()
	cfg := testConfig(t)
	cfg.Cache.URL = remote
	store := handoff.NewMemoryStore()
	transfer := handoff.NewTransfer(store, retry.DefaultPolicy(), time.Hour)

	l, err := ledger.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	build := NewBuildStage(cfg, &fakeProvisioner{env: env}, transfer)
	publish := NewPublishStage(cfg, transfer, nil).WithWorkDir(t.TempDir()).WithLedger(l)
	rec := &stageRecorder{}
	p := NewPipeline(build, publish, time.Minute, time.Minute).WithLedger(l).WithRecorder(rec)
	return p, l, rec
}

func eventTypes(t *testing.T, l ledger.Ledger, runID string) []string {
	t.Helper()
	events, err := l.ByRun(context.Background(), runID)
	require.NoError(t, err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Stage+":"+string(e.Type))
	}
	return out
}

func TestPipelineRunsBuildThenPublish(t *testing.T) {
	remote := newBareRemote(t)
	env := &fakeEnv{archive: makeArchive(t, "dist", "package-lock.json", "tree")}
	p, l, rec := newPipeline(t, env, remote)

	req, err := NewRequest("", "base1", "head2")
	require.NoError(t, err)
	require.NotEmpty(t, req.RunID)

	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sha-head2", res.Publish.Tag)

	assert.Equal(t, []string{"build:started", "build:succeeded", "publish:started", "publish:succeeded"},
		eventTypes(t, l, req.RunID))
	published, ok, err := l.PublishedTag(context.Background(), "sha-head2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, req.RunID, published.RunID)
	assert.Equal(t, []metrics.ResultLabel{metrics.ResultSuccess}, rec.outcomes)
}

func TestPipelineSkipsPublishWhenBuildFails(t *testing.T) {
	env := &fakeEnv{
		fail:      map[string]error{"merge": &process.ExitError{Command: "git merge", ExitCode: 1}},
		conflicts: []string{"a.txt"},
	}
	p, l, rec := newPipeline(t, env, "/nonexistent/cache.git")

	req, err := NewRequest("run-1", "base1", "head2")
	require.NoError(t, err)
	res, err := p.Run(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, res.Publish)
	assert.Equal(t, ferrors.CategoryMerge, ferrors.GetCategory(err))

	assert.Equal(t, []string{"build:started", "build:failed"}, eventTypes(t, l, "run-1"))
	events, err := l.ByRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "merge", events[1].Category)
	assert.Equal(t, metrics.ResultFailed, rec.results[StageBuild])
}

func TestPipelineBuildTimeoutTearsDown(t *testing.T) {
	env := &fakeEnv{block: true}
	p, l, rec := newPipeline(t, env, "/nonexistent/cache.git")
	p.buildTimeout = 50 * time.Millisecond

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = p.Build(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryTimeout, ferrors.GetCategory(err))
	assert.Equal(t, 1, env.teardowns)
	assert.Equal(t, metrics.ResultTimeout, rec.results[StageBuild])

	events, err := l.ByRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "timeout", events[1].Category)
}

func TestPipelineCanceled(t *testing.T) {
	env := &fakeEnv{block: true}
	p, _, rec := newPipeline(t, env, "/nonexistent/cache.git")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = p.Build(ctx, req)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryCanceled, ferrors.GetCategory(err))
	assert.Equal(t, 1, env.teardowns)
	assert.Equal(t, metrics.ResultCanceled, rec.results[StageBuild])
}

func TestNewRequestValidates(t *testing.T) {
	_, err := NewRequest("run-1", "", "")
	assert.Error(t, err)
	_, err = NewRequest("run-1", "base1", "--upload-pack=evil")
	assert.Error(t, err)

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	assert.Equal(t, req.Pair.Base, req.Pair.Head)
}
