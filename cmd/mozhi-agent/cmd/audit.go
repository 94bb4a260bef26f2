package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/mozhi/agent/audit"
)

var (
	auditDBPath string
	auditJSON   bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the action audit trail",
	Long:  `Commands for listing the append-only record of transcriptions, risk decisions, and injections.`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries in append order",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Read-only open so a running server keeps its lock.
		sink, err := audit.NewBoltSinkFromFile(auditDBPath, &bbolt.Options{ReadOnly: true})
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer sink.Close()

		entries, err := sink.List()
		if err != nil {
			return fmt.Errorf("listing audit entries: %w", err)
		}

		if auditJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tACTION\tTRANSCRIPT\tDETAILS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Transcript, e.Details)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditListCmd.Flags().StringVar(&auditDBPath, "db", "data/audit.db", "Path to the audit database")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Emit entries as JSON")
}
