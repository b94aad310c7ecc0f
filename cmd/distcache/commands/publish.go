package commands

import (
	"fmt"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

// PublishCmd implements the 'publish' command.
type PublishCmd struct {
	RevisionFlags `embed:""`
}

func (p *PublishCmd) Run(g *Global, root *CLI) error {
	if p.RunID == "" {
		return errors.ValidationError("--run-id (or DISTCACHE_RUN_ID) is required to locate the handed-off artifact").Build()
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	req, err := p.request()
	if err != nil {
		return err
	}
	svc, err := openServices(g.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	pl, err := svc.pipeline(false, true)
	if err != nil {
		return err
	}
	res, err := pl.Publish(g.Context(), req)
	if err != nil {
		return err
	}
	fmt.Printf("tag=%s\ncommit=%s\n", res.Tag, res.Commit)
	return nil
}
