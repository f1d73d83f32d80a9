package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/govai/console/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// planFile is the YAML document read by "plans apply".
type planFile struct {
	Plans []planSpec `yaml:"plans" json:"plans"`
}

type planSpec struct {
	ID                    string          `yaml:"id" json:"plan_id"`
	DisplayName           string          `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	MonthlyChatLimit      int64           `yaml:"monthly_chat_limit" json:"monthly_chat_limit"`
	MonthlyDocGenLimit    int64           `yaml:"monthly_doc_gen_limit" json:"monthly_doc_gen_limit"`
	StorageLimitMB        int64           `yaml:"storage_limit_mb" json:"storage_limit_mb"`
	MaxUsers              int64           `yaml:"max_users" json:"max_users"`
	Features              map[string]bool `yaml:"features,omitempty" json:"features,omitempty"`
	MaxMonthlyCostUSD     *float64        `yaml:"max_monthly_cost_usd,omitempty" json:"max_monthly_cost_usd,omitempty"`
	ReasoningMonthlyLimit *int64          `yaml:"reasoning_monthly_limit,omitempty" json:"reasoning_monthly_limit,omitempty"`
}

func (s planSpec) toDomain() (*domain.PlanLimit, error) {
	id, err := domain.ParsePlanID(s.ID)
	if err != nil {
		return nil, err
	}
	return &domain.PlanLimit{
		PlanID:                id,
		DisplayName:           s.DisplayName,
		MonthlyChatLimit:      s.MonthlyChatLimit,
		MonthlyDocGenLimit:    s.MonthlyDocGenLimit,
		StorageLimitMB:        s.StorageLimitMB,
		MaxUsers:              s.MaxUsers,
		Features:              s.Features,
		MaxMonthlyCostUSD:     s.MaxMonthlyCostUSD,
		ReasoningMonthlyLimit: s.ReasoningMonthlyLimit,
	}, nil
}

func fromDomain(p *domain.PlanLimit) planSpec {
	return planSpec{
		ID:                    string(p.PlanID),
		DisplayName:           p.DisplayName,
		MonthlyChatLimit:      p.MonthlyChatLimit,
		MonthlyDocGenLimit:    p.MonthlyDocGenLimit,
		StorageLimitMB:        p.StorageLimitMB,
		MaxUsers:              p.MaxUsers,
		Features:              p.Features,
		MaxMonthlyCostUSD:     p.MaxMonthlyCostUSD,
		ReasoningMonthlyLimit: p.ReasoningMonthlyLimit,
	}
}

// loadPlanFile parses and validates every plan before anything is written.
func loadPlanFile(data []byte) ([]*domain.PlanLimit, error) {
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	if len(f.Plans) == 0 {
		return nil, fmt.Errorf("plan file defines no plans")
	}

	seen := make(map[domain.PlanID]bool)
	plans := make([]*domain.PlanLimit, 0, len(f.Plans))
	for i, spec := range f.Plans {
		p, err := spec.toDomain()
		if err != nil {
			return nil, fmt.Errorf("plans[%d]: %w", i, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("plans[%d] (%s): %w", i, p.PlanID, err)
		}
		if seen[p.PlanID] {
			return nil, fmt.Errorf("plans[%d]: duplicate plan %q", i, p.PlanID)
		}
		seen[p.PlanID] = true
		plans = append(plans, p)
	}
	return plans, nil
}

func (c *cli) plansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect and update plan limits",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show every plan's limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			plans, err := env.plans.ListPlans(cmd.Context())
			if err != nil {
				return fmt.Errorf("list plans: %w", err)
			}

			specs := make([]planSpec, 0, len(plans))
			rows := make([][]string, 0, len(plans))
			for _, p := range plans {
				specs = append(specs, fromDomain(p))
				rows = append(rows, []string{
					string(p.PlanID),
					limitString(p.MonthlyChatLimit),
					limitString(p.MonthlyDocGenLimit),
					limitString(p.StorageLimitMB),
					fmt.Sprintf("%d", p.MaxUsers),
					enabledFeatures(p.Features),
				})
			}
			return c.printer(cmd).print(planFile{Plans: specs},
				[]string{"PLAN", "CHAT", "DOC_GEN", "STORAGE_MB", "MAX_USERS", "FEATURES"}, rows)
		},
	}

	var file string
	var dryRun bool
	apply := &cobra.Command{
		Use:   "apply -f plans.yaml",
		Short: "Create or replace plans from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read plan file: %w", err)
			}
			plans, err := loadPlanFile(data)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d plan(s) valid; nothing written (dry run).\n", len(plans))
				return nil
			}

			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			for _, p := range plans {
				if _, err := env.plans.UpsertPlan(cmd.Context(), p); err != nil {
					return fmt.Errorf("apply plan %s: %w", p.PlanID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "plan %s applied\n", p.PlanID)
			}
			return nil
		},
	}
	apply.Flags().StringVarP(&file, "file", "f", "", "YAML plan file")
	apply.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	_ = apply.MarkFlagRequired("file")

	cmd.AddCommand(list, apply)
	return cmd
}

func enabledFeatures(features map[string]bool) string {
	var on []string
	for name, enabled := range features {
		if enabled {
			on = append(on, name)
		}
	}
	if len(on) == 0 {
		return "-"
	}
	sort.Strings(on)
	return strings.Join(on, ",")
}
