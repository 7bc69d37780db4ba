package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Force bool
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the run's stage, cursor and lock",
		Long: `Delete the shared run state so the next invocation starts over.

Imported records are left in place; re-importing them is a no-op. Reset
refuses to run while the lock is held unless --force is given.

Examples:
  wxzimport reset --config import.toml
  wxzimport reset --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "reset even while an invocation holds the lock")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	// Reset needs no archive.
	cfg.Archive = ""
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger := opts.logger(cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	b, err := openBackend(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer b.Close()

	eng, err := b.engine(nil, nil, logger)
	if err != nil {
		return err
	}

	if !opts.Force {
		st, err := eng.Status(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read status", err)
		}
		if st.LockedSince != nil {
			return NewExitError(ExitFailure, fmt.Sprintf("lock held since %s; pass --force to reset anyway", st.LockedSince.UTC().Format("2006-01-02T15:04:05Z")))
		}
	}

	if err := eng.Reset(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to reset", err)
	}
	logger.Info("run state reset")

	return opts.formatter(cmd).Success(map[string]string{"stage": "start"}, "Run state reset. The next invocation starts over.")
}
