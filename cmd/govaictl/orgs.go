package main

import (
	"fmt"
	"strconv"

	"github.com/govai/console/internal/domain"
	"github.com/spf13/cobra"
)

func (c *cli) orgsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orgs",
		Aliases: []string{"org"},
		Short:   "Manage organizations and their plans",
	}

	var name, plan string
	create := &cobra.Command{
		Use:   "create <org-id>",
		Short: "Register an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := domain.ParsePlanID(plan)
			if err != nil {
				return err
			}
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			org, err := env.plans.CreateOrganization(cmd.Context(), args[0], name, planID)
			if err != nil {
				return fmt.Errorf("create organization: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "organization %s created on plan %s\n", org.ID, org.PlanID)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&plan, "plan", string(domain.PlanFree), "initial plan")
	_ = create.MarkFlagRequired("name")

	setPlan := &cobra.Command{
		Use:   "set-plan <org-id> <plan>",
		Short: "Move an organization to another plan, effective immediately",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := domain.ParsePlanID(args[1])
			if err != nil {
				return err
			}
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			org, err := env.plans.SetOrganizationPlan(cmd.Context(), args[0], planID)
			if err != nil {
				return fmt.Errorf("set plan: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "organization %s is now on plan %s\n", org.ID, org.PlanID)
			return nil
		},
	}

	usage := &cobra.Command{
		Use:   "usage <org-id>",
		Short: "Show this month's usage against plan limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			summary, err := env.quota.GetUsageSummary(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get usage: %w", err)
			}

			rows := make([][]string, 0, len(summary.Metrics)+1)
			for _, m := range summary.Metrics {
				remaining := "unlimited"
				if m.Limit >= 0 {
					remaining = fmt.Sprintf("%g", m.Remaining)
				}
				rows = append(rows, []string{
					string(m.Metric),
					fmt.Sprintf("%g", m.Used),
					fmt.Sprintf("%g", m.Reserved),
					limitString(m.Limit),
					remaining,
				})
			}
			rows = append(rows, []string{
				"reservations",
				strconv.FormatInt(summary.ActiveReservations, 10),
				"-", "-", "-",
			}, []string{
				"cost_usd",
				fmt.Sprintf("%.4f", summary.Cost.CurrentCostUSD),
				"0",
				fmt.Sprintf("%.2f", summary.Cost.CostLimitUSD),
				fmt.Sprintf("%.4f", summary.Cost.CostLimitUSD-summary.Cost.CurrentCostUSD),
			})
			return c.printer(cmd).print(summary, []string{"METRIC", "USED", "RESERVED", "LIMIT", "REMAINING"}, rows)
		},
	}

	var listPlan string
	list := &cobra.Command{
		Use:   "list --plan <plan>",
		Short: "List organizations on a plan with this month's usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := domain.ParsePlanID(listPlan)
			if err != nil {
				return err
			}
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			usage, err := env.quota.ListPlanUsage(cmd.Context(), planID)
			if err != nil {
				return fmt.Errorf("list plan usage: %w", err)
			}
			rows := make([][]string, 0, len(usage))
			for _, u := range usage {
				rows = append(rows, []string{u.OrganizationID, u.Name, u.Period,
					strconv.FormatInt(u.ChatCount, 10),
					strconv.FormatInt(u.DocGenCount, 10),
					fmt.Sprintf("%g", u.StorageUsedMB),
				})
			}
			return c.printer(cmd).print(usage, []string{"ORG", "NAME", "PERIOD", "CHAT", "DOC_GEN", "STORAGE_MB"}, rows)
		},
	}
	list.Flags().StringVar(&listPlan, "plan", "", "plan to report on")
	_ = list.MarkFlagRequired("plan")

	var months int
	history := &cobra.Command{
		Use:   "history <org-id>",
		Short: "Show past months of usage, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			periods, err := env.quota.GetUsageHistory(cmd.Context(), args[0], months)
			if err != nil {
				return fmt.Errorf("get usage history: %w", err)
			}
			rows := make([][]string, 0, len(periods))
			for _, u := range periods {
				rows = append(rows, []string{u.Period,
					strconv.FormatInt(u.ChatCount, 10),
					strconv.FormatInt(u.DocGenCount, 10),
					fmt.Sprintf("%g", u.StorageUsedMB),
				})
			}
			return c.printer(cmd).print(periods, []string{"PERIOD", "CHAT", "DOC_GEN", "STORAGE_MB"}, rows)
		},
	}
	history.Flags().IntVar(&months, "months", 6, fmt.Sprintf("number of months, at most %d", domain.MaxHistoryMonths))

	cmd.AddCommand(create, setPlan, usage, list, history)
	return cmd
}
