package stages

import (
	"github.com/google/uuid"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/revision"
)

// Stage names as they appear in logs, metrics and the ledger.
const (
	StageBuild   = "build"
	StagePublish = "publish"
)

// Request identifies one pipeline run.
type Request struct {
	RunID string
	Pair  revision.Pair
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewRequest validates the revisions and fills in a run id when empty.
func NewRequest(runID, base, head string) (Request, error) {
	pair, err := revision.NewPair(base, head)
	if err != nil {
		return Request{}, err
	}
	if runID == "" {
		runID = NewRunID()
	}
	return Request{RunID: runID, Pair: pair}, nil
}

// classify keeps an already classified error and wraps anything else with b.
func classify(err error, b *errors.ErrorBuilder) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}
	return b.WithCause(err).Build()
}
