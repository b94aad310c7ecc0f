package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/logfields"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	RevisionFlags `embed:""`
	Runtime string `help:"Override environment.runtime (podman|docker|local)"`
	Jobs    int    `help:"Override packaging.jobs (JOBS passed to the packaging command)"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if b.Runtime != "" {
		rt := config.NormalizeRuntime(b.Runtime)
		if rt == "" {
			slog.Warn("Ignoring invalid --runtime value", slog.String("value", b.Runtime))
		} else {
			cfg.Environment.Runtime = rt
		}
	}
	if b.Jobs > 0 {
		cfg.Packaging.Jobs = b.Jobs
	}

	req, err := b.request()
	if err != nil {
		return err
	}
	svc, err := openServices(g.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	p, err := svc.pipeline(true, false)
	if err != nil {
		return err
	}
	res, err := p.Build(g.Context(), req)
	if err != nil {
		return err
	}
	slog.Info("Build complete", logfields.RunID(res.RunID), logfields.Artifact(res.Key), logfields.Bytes(res.Record.Size))
	// The run id is the hand-off handle the publish step needs.
	fmt.Printf("run_id=%s\n", res.RunID)
	return nil
}
