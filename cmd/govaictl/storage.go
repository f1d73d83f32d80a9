package main

import (
	"fmt"
	"time"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/storage"
	"github.com/spf13/cobra"
)

// reconcileResult compares the ledger with the bytes actually stored.
type reconcileResult struct {
	OrganizationID string  `json:"organization_id" yaml:"organization_id"`
	LedgerMB       float64 `json:"ledger_mb" yaml:"ledger_mb"`
	StoredMB       float64 `json:"stored_mb" yaml:"stored_mb"`
	DriftMB        float64 `json:"drift_mb" yaml:"drift_mb"`
	Applied        bool    `json:"applied" yaml:"applied"`
}

func (c *cli) storageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Check the storage ledger against object storage",
	}

	var apply bool
	reconcile := &cobra.Command{
		Use:   "reconcile <org-id>...",
		Short: "Report storage drift; --apply records missing usage",
		Long: `Sums the bytes stored under each organization's prefix and compares
them with this month's storage ledger. With --apply, usage the ledger is
missing is recorded. The ledger is never decreased.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			results := make([]reconcileResult, 0, len(args))
			rows := make([][]string, 0, len(args))
			for _, orgID := range args {
				stored, err := env.files.Usage(ctx, storage.OrganizationPrefix(orgID))
				if err != nil {
					return fmt.Errorf("sum stored bytes for %s: %w", orgID, err)
				}
				record, err := env.quota.GetUsage(ctx, orgID, time.Now())
				if err != nil {
					return fmt.Errorf("read ledger for %s: %w", orgID, err)
				}

				res := reconcileResult{
					OrganizationID: orgID,
					LedgerMB:       record.StorageUsedMB,
					StoredMB:       storage.BytesToMB(stored),
				}
				res.DriftMB = res.StoredMB - res.LedgerMB

				if apply && res.DriftMB > 0 {
					if _, err := env.quota.RecordUsage(ctx, orgID, domain.CounterStorage, res.DriftMB); err != nil {
						return fmt.Errorf("record storage for %s: %w", orgID, err)
					}
					res.Applied = true
				}

				results = append(results, res)
				rows = append(rows, []string{
					orgID,
					fmt.Sprintf("%.3f", res.LedgerMB),
					fmt.Sprintf("%.3f", res.StoredMB),
					fmt.Sprintf("%+.3f", res.DriftMB),
					fmt.Sprintf("%t", res.Applied),
				})
			}
			return c.printer(cmd).print(results, []string{"ORG", "LEDGER_MB", "STORED_MB", "DRIFT_MB", "APPLIED"}, rows)
		},
	}
	reconcile.Flags().BoolVar(&apply, "apply", false, "record positive drift in the ledger")

	cmd.AddCommand(reconcile)
	return cmd
}
