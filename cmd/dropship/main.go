// Author @gajzzs
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gajzzs/dropship/internal/app"
	"github.com/gajzzs/dropship/internal/config"
	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
	"github.com/gajzzs/dropship/internal/service"
)

func newRootCommand(env *app.Env) *cobra.Command {
	var (
		logLevel       string
		logJSON        bool
		daemon         bool
		kill           bool
		gamePath       string
		regionsFile    string
		flushConntrack bool
	)

	rootCmd := &cobra.Command{
		Use:           "dropship [command]",
		Short:         "Block a game's traffic to unwanted matchmaking regions",
		Long:          "dropship drops outbound packets from one game to the address ranges of the regions you select.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env.Logger = logging.New(logging.Config{Level: logging.LevelInfo, JSON: logJSON})
			logging.SetDefault(env.Logger)

			if !cmd.Flags().Changed("log-level") {
				cfg, err := loadPreferences(env.ConfigPath)
				if err != nil {
					env.Logger.Warn("ignoring preferences", "error", err)
				} else if cfg.LogLevel != "" {
					logLevel = cfg.LogLevel
				}
			}
			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return errors.Wrap(err, errors.KindValidation, "invalid log level")
			}
			env.Logger.SetLevel(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case daemon:
				return service.RunDaemon(service.DaemonOptions{
					GamePath:       gamePath,
					Keys:           args,
					RegionsFile:    regionsFile,
					FlushConntrack: flushConntrack,
					Logger:         env.Logger,
				})
			case kill:
				err := service.NewController(env.Logger).Kill(cmd.Context())
				if errors.IsKind(err, errors.KindPermission) {
					// the user dismissed the prompt
					env.Logger.Debug("kill not authorized", "error", err)
					return nil
				}
				return err
			case len(args) > 0:
				return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return cmd.Help()
		},
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&env.ConfigPath, "config", "", "preferences file (default is the user config directory)")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&logJSON, "log-json", false, "log as JSON")

	f := rootCmd.Flags()
	f.BoolVar(&daemon, service.FlagDaemon, false, "run the privileged blocker")
	f.BoolVar(&kill, service.FlagKill, false, "remove all rules and stop running blockers")
	f.StringVar(&gamePath, service.FlagGamePath, "", "game executable or directory")
	f.StringVar(&regionsFile, service.FlagRegions, "", "YAML region catalog")
	f.BoolVar(&flushConntrack, service.FlagFlushConntrack, false, "flush tracked connections to blocked regions")
	for _, name := range []string{service.FlagDaemon, service.FlagKill, service.FlagGamePath, service.FlagRegions, service.FlagFlushConntrack} {
		_ = f.MarkHidden(name)
	}
	rootCmd.MarkFlagsMutuallyExclusive(service.FlagDaemon, service.FlagKill)

	rootCmd.AddCommand(
		app.NewEnableCommand(env),
		app.NewDisableCommand(env),
		app.NewRegionsCommand(env),
		app.NewStatusCommand(env),
	)
	return rootCmd
}

func loadPreferences(path string) (*config.Config, error) {
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

func main() {
	env := &app.Env{}
	if err := newRootCommand(env).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
