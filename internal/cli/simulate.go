package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ap-approver-selection/internal/scenario"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
	"github.com/pesio-ai/be-ap-approver-selection/internal/store/sqlite"
)

var (
	simFile    string
	simAuditDB string
	simFormat  string
	simVerbose bool
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVarP(&simFile, "file", "f", "", "Path to scenario YAML (required)")
	simulateCmd.Flags().StringVar(&simAuditDB, "audit-db", "", "SQLite file to append selection log entries to (optional)")
	simulateCmd.Flags().StringVar(&simFormat, "format", "text", "Output format (text|json)")
	simulateCmd.Flags().BoolVarP(&simVerbose, "verbose", "v", false, "Log each engine decision to stderr")
	simulateCmd.MarkFlagRequired("file")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run approver selection offline against a scenario file",
	Long: "Loads a pool, constraints and selection cases from YAML, runs each case\n" +
		"through the selection engine, and reports the chosen approvers.\n\n" +
		"Cases with an expect block are checked; any mismatch makes the command fail.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	log := zerolog.Nop()
	if simVerbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
	}

	var sink selection.AuditSink
	if simAuditDB != "" {
		store, err := sqlite.Open(simAuditDB)
		if err != nil {
			return err
		}
		defer store.Close()
		sink = store
	}

	result, err := scenario.LoadAndRun(cmd.Context(), simFile, sink, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch simFormat {
	case "json":
		js, err := scenario.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, js)
	default:
		fmt.Fprint(out, scenario.FormatText(result))
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d cases failed", result.Failed, result.Total)
	}
	return nil
}
