package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wxzimport/internal/engine"
	"github.com/roach88/wxzimport/internal/record"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Archive string
}

// StatusResult is the status command's payload.
type StatusResult struct {
	engine.Status
	// Imported counts records in the target store per type.
	Imported map[string]int `json:"imported"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the run's stage, cursor and lock",
		Long: `Show the shared state of the import run without taking the lock.

Entry counts per type are shown when an archive is configured.

Examples:
  wxzimport status --config import.toml
  wxzimport status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Archive, "archive", "", "archive path or s3://bucket/key (overrides config)")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
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

	logger := opts.logger(cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	b, err := openBackend(ctx, cfg, cfg.Archive != "")
	if err != nil {
		return err
	}
	defer b.Close()

	eng, err := b.engine(nil, nil, logger)
	if err != nil {
		return err
	}
	st, err := eng.Status(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read status", err)
	}
	imported, err := b.target.CountRecords(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count records", err)
	}

	result := StatusResult{Status: st, Imported: imported}
	return opts.formatter(cmd).Success(result, formatStatus(result))
}

func formatStatus(s StatusResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "stage:  %s\n", s.Stage)

	cur := s.Cursor
	switch {
	case cur.Type == record.None:
		fmt.Fprintln(&sb, "cursor: exhausted")
	case cur.Index < 0:
		fmt.Fprintf(&sb, "cursor: %s (not started)\n", cur.Type)
	default:
		fmt.Fprintf(&sb, "cursor: %s #%d, %d in flight, %d to retry\n", cur.Type, cur.Index, len(cur.InFlight), len(cur.Retry))
	}

	if s.LockedSince != nil {
		fmt.Fprintf(&sb, "lock:   held since %s\n", s.LockedSince.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(&sb, "lock:   free")
	}

	types := slices.Sorted(maps.Keys(s.Counts))
	for _, t := range slices.Sorted(maps.Keys(s.Imported)) {
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	for _, t := range types {
		printer.Fprintf(&sb, "%-6s  %d entries, %d imported\n", t+":", s.Counts[t], s.Imported[t])
	}
	return strings.TrimRight(sb.String(), "\n")
}
