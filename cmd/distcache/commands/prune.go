package commands

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/handoff"
)

// PruneCmd implements the 'prune' command.
type PruneCmd struct {
	Interval time.Duration `help:"Keep running and prune on this interval (0 prunes once and exits)" default:"0s"`
}

func (p *PruneCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	store, err := handoff.Open(g.Context(), cfg.Handoff)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if p.Interval > 0 {
		j, err := handoff.NewJanitor(store, p.Interval)
		if err != nil {
			return errors.ValidationError("invalid prune interval").WithCause(err).Build()
		}
		if err := j.Run(g.Context()); err != nil {
			return errors.RuntimeError("hand-off janitor failed").WithCause(err).Build()
		}
		return nil
	}

	removed, err := store.Prune(g.Context(), time.Now())
	if err != nil {
		return errors.HandoffError("failed to prune hand-off store").WithCause(err).Build()
	}
	fmt.Printf("pruned %d expired artifact(s)\n", removed)
	return nil
}
