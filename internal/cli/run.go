package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/wxzimport/internal/engine"
	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/schema"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Archive string

	// IDGenerator overrides the invocation ID source (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one import invocation",
		Long: `Run one time-boxed import invocation.

The invocation resumes the run at its persisted stage, imports records until
the archive is exhausted or the time budget is spent, and prints a report.
Run it repeatedly (from cron, a queue, or a loop) until the stage is
"finalize". Several invocations may run at once against the same store.

Validation and import problems are written to stderr as event lines:
  [warning][schema-violation] The data in posts/3.json can not be validated against the schema.

Exit codes:
  0 - Invocation finished or yielded
  1 - Invocation halted (lock contention, store failure, cancelled)
  2 - Command error (bad config, archive not found, etc.)

Examples:
  wxzimport run --config import.toml
  wxzimport run --archive ./site.wxz --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvocation(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Archive, "archive", "", "archive path or s3://bucket/key (overrides config)")

	return cmd
}

func runInvocation(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Archive != "" {
		cfg.Archive = opts.Archive
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if cfg.Archive == "" {
		return NewExitError(ExitCommandError, "no archive configured: set archive in the config file or pass --archive")
	}

	logger := opts.logger(cmd.ErrOrStderr())
	out := opts.formatter(cmd)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("error closing backend", "error", err)
		}
	}()
	out.VerboseLog("archive %s: %d entries", cfg.Archive, b.archive.Len())

	v, err := schema.NewCUEValidator()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schemas", err)
	}

	ev := events.New(cmd.ErrOrStderr(), logger)
	var extra []engine.Option
	if opts.IDGenerator != nil {
		extra = append(extra, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng, err := b.engine(v, ev, logger, extra...)
	if err != nil {
		return err
	}

	report, runErr := eng.Run(ctx)
	if runErr != nil {
		if engine.IsLockError(runErr) {
			return WrapExitError(ExitFailure, "another invocation holds the lock", runErr)
		}
		return WrapExitError(ExitFailure, "invocation halted", runErr)
	}
	return out.Success(report, formatReport(report))
}

// formatReport renders a report for operators.
func formatReport(r engine.Report) string {
	var sb strings.Builder
	state := r.Stage
	if r.Yielded {
		state += " (yielded, run again to continue)"
	}
	fmt.Fprintf(&sb, "Invocation %s\n", r.Invocation)
	fmt.Fprintf(&sb, "  stage:     %s\n", state)
	printer.Fprintf(&sb, "  processed: %d (imported %d, skipped %d, failed %d)\n", r.Processed, r.Imported, r.Skipped, r.Failed)
	printer.Fprintf(&sb, "  events:    %d warnings, %d errors\n", r.Warnings, r.Errors)
	fmt.Fprintf(&sb, "  elapsed:   %s\n", r.Elapsed)
	printer.Fprintf(&sb, "  PEAK USAGE: %d bytes", r.PeakMemory)
	return sb.String()
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
