package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/sessiontrack/internal/config"
)

var (
	resetForce          bool
	resetIncludeHistory bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the persisted session store",
	Long: `Remove the pending sessions persisted under store.key.

Pending sessions are dropped without being reported. Stop the daemon first:
a running daemon rewrites the store on its next event.

Optional flags:
  --include-history   Also clear the completed-session ledger
  --force             Skip confirmation prompt`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetIncludeHistory, "include-history", false, "Also clear the completed-session ledger")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend == config.BackendMemory {
		fmt.Fprintln(cmd.ErrOrStderr(), "Nothing to reset: the memory store is not persisted.")
		return nil
	}
	if pid := readPIDFile(pidFilePath()); pid != 0 {
		if proc, err := os.FindProcess(pid); err == nil && processIsAlive(proc) {
			return fmt.Errorf("sessiontrack is running (PID %d); run \"sessiontrack stop\" first", pid)
		}
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

	stderr := cmd.ErrOrStderr()
	fmt.Fprintln(stderr, "The following will be removed:")
	fmt.Fprintf(stderr, "  - pending sessions %q (%s store)\n", cfg.Store.Key, cfg.Store.Backend)
	if resetIncludeHistory && cfg.Completion.Ledger {
		fmt.Fprintf(stderr, "  - completed-session ledger (%s)\n", cfg.DatabasePath())
	}

	if !resetForce && !confirm(cmd.InOrStdin(), stderr) {
		fmt.Fprintln(stderr, "Aborted.")
		return nil
	}

	deleter, ok := b.store.(storeDeleter)
	if !ok {
		return fmt.Errorf("store backend %s does not support reset", cfg.Store.Backend)
	}
	var errs []error
	if err := deleter.Delete(ctx, cfg.Store.Key); err != nil {
		errs = append(errs, fmt.Errorf("remove store: %w", err))
	}
	if ledger := b.ledger(cfg); resetIncludeHistory && ledger != nil {
		if err := ledger.Reset(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear ledger: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	fmt.Fprintln(stderr, "Reset complete.")
	return nil
}

// confirm prompts for a y/N answer on in.
func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "\nProceed? [y/N] ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}
