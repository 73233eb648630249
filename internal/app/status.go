package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gajzzs/dropship/internal/config"
	"github.com/gajzzs/dropship/internal/firewall"
	"github.com/gajzzs/dropship/internal/platform"
	"github.com/gajzzs/dropship/internal/service"
)

const statusTimeout = 3 * time.Second

// ruleLister is implemented by firewalls that can read back what they
// installed.
type ruleLister interface {
	Rules() (firewall.BlockSet, error)
}

func NewStatusCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:                   "status",
		Short:                 "Show whether blocking is active",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()
			running, err := service.NewController(env.log()).Running(ctx)
			if err != nil {
				env.log().Debug("daemon status unavailable", "error", err)
			}

			var rules *ruleReport
			if platform.IsElevated() {
				rules = installedRules(env)
			}

			printStatus(env.out(), cfg, running, rules)
			return nil
		},
	}
}

// ruleReport is what status learned about the installed rules.
type ruleReport struct {
	Blocks firewall.BlockSet
	Err    error
}

// installedRules returns nil when the firewall cannot be read back.
func installedRules(env *Env) *ruleReport {
	fw, err := firewall.New(firewall.Options{Logger: env.log()})
	if err != nil {
		return &ruleReport{Err: err}
	}
	lister, ok := fw.(ruleLister)
	if !ok {
		return nil
	}
	blocks, err := lister.Rules()
	return &ruleReport{Blocks: blocks, Err: err}
}

func printStatus(w io.Writer, cfg *config.Config, running bool, rules *ruleReport) {
	fmt.Fprintln(w, "dropship status")
	fmt.Fprintln(w, "===============")

	fmt.Fprintln(w, "\nDaemon:")
	if running {
		fmt.Fprintln(w, "  Status: Running")
	} else {
		fmt.Fprintln(w, "  Status: Stopped")
	}

	fmt.Fprintln(w, "\nPreferences:")
	if cfg.GamePath != "" {
		fmt.Fprintf(w, "  Game: %s\n", cfg.GamePath)
	} else {
		fmt.Fprintln(w, "  Game: not set")
	}
	if len(cfg.Selected) > 0 {
		fmt.Fprintf(w, "  Regions: %s\n", strings.Join(cfg.Selected, ", "))
	} else {
		fmt.Fprintln(w, "  Regions: none selected")
	}
	if cfg.RegionsFile != "" {
		fmt.Fprintf(w, "  Catalog: %s\n", cfg.RegionsFile)
	}

	switch {
	case rules == nil:
	case rules.Err != nil:
		fmt.Fprintf(w, "\nInstalled rules: unavailable (%v)\n", rules.Err)
	default:
		fmt.Fprintf(w, "\nInstalled rules: %d prefixes\n", len(rules.Blocks))
		for _, p := range rules.Blocks {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
}
