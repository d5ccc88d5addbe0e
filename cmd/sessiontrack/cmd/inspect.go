package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/sessiontrack/internal/config"
	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

var inspectOutput string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show pending sessions in the store",
	Long: `Show the sessions persisted in the configured store with their state
at the current time: active, ended (still resumable) or expired (waiting for
the sweeper to complete it).

The store is read as-is; sessions left active by a crash are shown active
until the daemon starts and repairs them.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", formatText, "output format: text, json or yaml")
	rootCmd.AddCommand(inspectCmd)
}

// pendingSession is one row of inspect output.
type pendingSession struct {
	SessionID     string        `json:"session_id" yaml:"session_id"`
	State         session.State `json:"state" yaml:"state"`
	StartTime     time.Time     `json:"start_time" yaml:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	LengthMS      int64         `json:"length_ms" yaml:"length_ms"`
	GracePeriodMS int64         `json:"grace_period_ms" yaml:"grace_period_ms"`
}

func newPendingSession(s session.Session, now time.Time) pendingSession {
	p := pendingSession{
		SessionID:     s.ID,
		State:         s.State(now),
		StartTime:     s.StartTime.UTC(),
		LengthMS:      s.Length(now).Milliseconds(),
		GracePeriodMS: s.GracePeriod.Milliseconds(),
	}
	if s.Ended() {
		end := s.EndTime.UTC()
		expires := end.Add(s.GracePeriod)
		p.EndTime = &end
		p.ExpiresAt = &expires
	}
	return p
}

func runInspect(cmd *cobra.Command, args []string) error {
	if err := validateFormat(inspectOutput); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend == config.BackendMemory {
		return fmt.Errorf("the memory store is private to the running daemon; use GET /v1/session instead")
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

	sessions, err := loadSnapshot(ctx, b.store, cfg.Store.Key)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}

	now := time.Now()
	rows := make([]pendingSession, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, newPendingSession(s, now))
	}
	return writePending(cmd.OutOrStdout(), inspectOutput, rows)
}

func writePending(w io.Writer, format string, rows []pendingSession) error {
	if format != formatText {
		return writeStructured(w, format, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No pending sessions.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION ID\tSTATE\tSTARTED\tENDED\tLENGTH")
	for _, r := range rows {
		ended := "-"
		if r.EndTime != nil {
			ended = r.EndTime.Format(time.RFC3339)
		}
		length := (time.Duration(r.LengthMS) * time.Millisecond).Round(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.SessionID, r.State, r.StartTime.Format(time.RFC3339), ended, length)
	}
	return tw.Flush()
}
