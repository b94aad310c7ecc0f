package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/distcache/internal/ledger"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	RunID string `name:"run-id" help:"Show every event of one run" env:"DISTCACHE_RUN_ID"`
	Limit int    `help:"Maximum number of events to show" default:"20"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	l, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	var events []ledger.Event
	if h.RunID != "" {
		events, err = l.ByRun(g.Context(), h.RunID)
	} else {
		events, err = l.Recent(g.Context(), h.Limit)
	}
	if err != nil {
		return err
	}
	return printEvents(os.Stdout, events)
}

func printEvents(out io.Writer, events []ledger.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(out, "no recorded runs")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRUN\tSTAGE\tEVENT\tBASE\tHEAD\tTAG\tCATEGORY")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.RunID, e.Stage, e.Type, e.Base, e.Head, e.Tag, e.Category)
	}
	return w.Flush()
}
