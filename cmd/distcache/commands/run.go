package commands

import (
	"fmt"
)

// RunCmd implements the 'run' command: build then publish in one process.
type RunCmd struct {
	RevisionFlags `embed:""`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	req, err := r.request()
	if err != nil {
		return err
	}
	svc, err := openServices(g.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	p, err := svc.pipeline(true, true)
	if err != nil {
		return err
	}
	res, err := p.Run(g.Context(), req)
	if err != nil {
		return err
	}
	fmt.Printf("run_id=%s\ntag=%s\ncommit=%s\n", res.Build.RunID, res.Publish.Tag, res.Publish.Commit)
	return nil
}
