package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/sessiontrack/internal/port/outbound"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show completed sessions from the ledger",
	Long: `Show completed sessions recorded by the sqlite ledger, newest first.

Requires completion.ledger: true. Without the ledger, a running daemon still
serves recent completions from memory at GET /v1/sessions/completed.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of sessions to show (0 for all)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", formatText, "output format: text, json or yaml")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := validateFormat(historyOutput); err != nil {
		return err
	}
	if historyLimit < 0 {
		return errors.New("--limit must not be negative")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Completion.Ledger {
		return errors.New("completion.ledger is disabled; enable it to record completed sessions")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := openBackend(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer b.Close()

	records, err := b.ledger(cfg).Recent(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	return writeHistory(cmd.OutOrStdout(), historyOutput, records)
}

func writeHistory(w io.Writer, format string, records []outbound.CompletedSession) error {
	if format != formatText {
		if records == nil {
			records = []outbound.CompletedSession{}
		}
		return writeStructured(w, format, records)
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No completed sessions.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION ID\tSTARTED\tENDED\tLENGTH\tCOMPLETED")
	for _, r := range records {
		length := (time.Duration(r.LengthMS) * time.Millisecond).Round(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.SessionID,
			r.StartTime.Format(time.RFC3339),
			r.EndTime.Format(time.RFC3339),
			length,
			r.CompletedAt.Format(time.RFC3339),
		)
	}
	return tw.Flush()
}
