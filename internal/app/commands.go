package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gajzzs/dropship/internal/config"
	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
	"github.com/gajzzs/dropship/internal/ping"
	"github.com/gajzzs/dropship/internal/regions"
	"github.com/gajzzs/dropship/internal/service"
)

// readyTimeout bounds --wait. It covers the time the user spends on the
// authentication prompt.
const readyTimeout = 2 * time.Minute

// Env is shared by every subcommand. The root command fills it in before
// any of them run.
type Env struct {
	ConfigPath string
	Logger     *logging.Logger
	Out        io.Writer
}

func (e *Env) out() io.Writer {
	if e.Out != nil {
		return e.Out
	}
	return os.Stdout
}

func (e *Env) log() *logging.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logging.Default()
}

func (e *Env) loadConfig() (*config.Config, error) {
	if e.ConfigPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		e.ConfigPath = path
	}
	return config.Load(e.ConfigPath)
}

// selection is what enable resolved from flags, arguments and the saved
// preferences.
type selection struct {
	GamePath    string
	Keys        []string
	RegionsFile string
}

// resolveSelection lets flags and arguments override the saved
// preferences and checks the result against the catalog.
func resolveSelection(cfg *config.Config, gamePath, regionsFile string, args []string) (selection, error) {
	sel := selection{
		GamePath:    cfg.GamePath,
		Keys:        cfg.Selected,
		RegionsFile: cfg.RegionsFile,
	}
	if gamePath != "" {
		sel.GamePath = gamePath
	}
	if regionsFile != "" {
		sel.RegionsFile = regionsFile
	}
	if len(args) > 0 {
		sel.Keys = args
	}

	if sel.GamePath == "" {
		return sel, errors.New(errors.KindValidation, "no game selected (use --game-path)")
	}
	if len(sel.Keys) == 0 {
		return sel, errors.New(errors.KindValidation, "no regions selected")
	}

	catalog, err := regions.Load(sel.RegionsFile)
	if err != nil {
		return sel, err
	}
	if _, err := catalog.Blocks(sel.Keys); err != nil {
		return sel, err
	}
	return sel, nil
}

func NewEnableCommand(env *Env) *cobra.Command {
	var (
		gamePath    string
		regionsFile string
		wait        bool
		flush       bool
	)

	cmd := &cobra.Command{
		Use:   "enable [region-key...]",
		Short: "Block the game's traffic to the given regions",
		Long: "Starts the privileged blocker for the game at --game-path. Region keys\n" +
			"and the game path default to the ones used last time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			sel, err := resolveSelection(cfg, gamePath, regionsFile, args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("flush-conntrack") {
				cfg.FlushConntrack = flush
			}

			cfg.GamePath = sel.GamePath
			cfg.RegionsFile = sel.RegionsFile
			cfg.SetSelected(sel.Keys)
			if err := cfg.Save(env.ConfigPath); err != nil {
				env.log().Warn("failed to save preferences", "error", err)
			}

			ctrl := service.NewController(env.log())
			h, err := ctrl.Start(cmd.Context(), service.DaemonOptions{
				GamePath:       sel.GamePath,
				Keys:           cfg.Selected,
				RegionsFile:    sel.RegionsFile,
				FlushConntrack: cfg.FlushConntrack,
				Logger:         env.log(),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(env.out(), "Blocking %s for %s\n", strings.Join(cfg.Selected, ", "), sel.GamePath)
			if !wait {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), readyTimeout)
			defer cancel()
			if err := h.WaitReady(ctx); err != nil {
				return err
			}
			fmt.Fprintln(env.out(), "Blocking active")
			return nil
		},
	}

	cmd.Flags().StringVar(&gamePath, "game-path", "", "game executable or directory")
	cmd.Flags().StringVar(&regionsFile, "regions", "", "YAML region catalog to use instead of the built-in one")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the rules are active")
	cmd.Flags().BoolVar(&flush, "flush-conntrack", false, "drop tracked connections to blocked regions (linux)")
	return cmd
}

func NewDisableCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Stop blocking and remove all rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := service.NewController(env.log())
			if err := ctrl.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(env.out(), "Blocking disabled")
			return nil
		},
	}
}

func NewRegionsCommand(env *Env) *cobra.Command {
	var (
		regionsFile string
		withPing    bool
		sortBy      string
		desc        bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List the known regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			by, err := regions.ParseSortBy(sortBy)
			if err != nil {
				return err
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			if regionsFile == "" {
				regionsFile = cfg.RegionsFile
			}
			catalog, err := regions.Load(regionsFile)
			if err != nil {
				return err
			}

			var statuses map[string]ping.Status
			if withPing {
				prober := ping.NewProber(ping.Config{Timeout: timeout, Logger: env.log()})
				statuses = prober.ProbeAll(cmd.Context(), catalog.PingTargets())
			}

			entries := make([]regions.Entry, 0, len(catalog.Regions()))
			for _, r := range catalog.Regions() {
				entries = append(entries, regions.Entry{Region: r, Ping: statuses[r.Key]})
			}
			regions.Sort(entries, by, !desc)

			selected := make(map[string]bool, len(cfg.Selected))
			for _, key := range cfg.Selected {
				selected[key] = true
			}
			return renderRegions(env.out(), entries, selected, withPing)
		},
	}

	cmd.Flags().StringVar(&regionsFile, "regions", "", "YAML region catalog to use instead of the built-in one")
	cmd.Flags().BoolVar(&withPing, "ping", false, "measure the latency to each region")
	cmd.Flags().StringVar(&sortBy, "sort", "name", "sort by name or ping")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort in descending order")
	cmd.Flags().DurationVar(&timeout, "timeout", ping.DefaultTimeout, "per-region ping timeout")
	return cmd
}

func renderRegions(w io.Writer, entries []regions.Entry, selected map[string]bool, withPing bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if withPing {
		fmt.Fprintln(tw, "\tKEY\tNAME\tCODE\tPING\tPREFIXES")
	} else {
		fmt.Fprintln(tw, "\tKEY\tNAME\tCODE\tPREFIXES")
	}
	for _, e := range entries {
		mark := ""
		if selected[e.Region.Key] {
			mark = "*"
		}
		if withPing {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", mark, e.Region.Key, e.Region.Name, e.Region.Code, e.Ping, len(e.Region.Prefixes))
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", mark, e.Region.Key, e.Region.Name, e.Region.Code, len(e.Region.Prefixes))
		}
	}
	return tw.Flush()
}
