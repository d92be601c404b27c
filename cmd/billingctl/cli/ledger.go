package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice-billing/jobs"
)

// ErrFindings makes `ledger verify` exit non-zero when the scan finds drift.
var ErrFindings = errors.New("integrity findings reported")

func newLedgerCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger integrity tools",
	}
	cmd.AddCommand(newVerifyCmd(deps), newEnqueueVerifyCmd(deps))
	return cmd
}

func newVerifyCmd(deps Deps) *cobra.Command {
	var (
		businessID int64
		format     string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Scan for unbalanced entries, reservation drift and unposted sales",
		Example: `  billingctl ledger verify
  billingctl ledger verify --business 42 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unsupported format %q", format)
			}
			if businessID < 0 {
				return fmt.Errorf("business must not be negative")
			}
			store, closeStore, err := deps.Store(cmd.Context())
			if err != nil {
				return err
			}
			if closeStore != nil {
				defer closeStore()
			}
			job := jobs.NewLedgerIntegrityJob(store, deps.Logger, nil)
			findings, err := job.Run(cmd.Context(), businessID)
			if err != nil {
				return err
			}
			if err := writeFindings(cmd, format, findings); err != nil {
				return err
			}
			if len(findings) > 0 {
				return fmt.Errorf("%w: %d", ErrFindings, len(findings))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&businessID, "business", 0, "restrict the scan to one business (0 scans all)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func writeFindings(cmd *cobra.Command, format string, findings []jobs.Finding) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}
	if len(findings) == 0 {
		_, err := fmt.Fprintln(out, "no findings")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tBUSINESS\tREF\tDETAIL")
	for _, f := range findings {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", f.Kind, f.BusinessID, f.Ref, f.Detail)
	}
	return tw.Flush()
}

func newEnqueueVerifyCmd(deps Deps) *cobra.Command {
	var businessID int64
	cmd := &cobra.Command{
		Use:   "enqueue-verify",
		Short: "Queue an integrity scan on the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := deps.Enqueuer()
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.EnqueueLedgerIntegrity(cmd.Context(), businessID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s\n", info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().Int64Var(&businessID, "business", 0, "restrict the scan to one business (0 scans all)")
	return cmd
}
