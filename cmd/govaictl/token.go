package main

import (
	"fmt"
	"time"

	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/middleware"
	"github.com/spf13/cobra"
)

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint access tokens for service accounts and local testing",
	}

	var userID, orgID, role string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token with SUPABASE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case auth.RoleMember, auth.RoleAdmin, auth.RoleService:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 || ttl > 30*24*time.Hour {
				return fmt.Errorf("ttl must be between 1s and 720h")
			}

			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			token, err := middleware.IssueToken([]byte(env.cfg.JWTSecret), userID, orgID, role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "subject user ID")
	issue.Flags().StringVar(&orgID, "org", "", "organization ID claim")
	issue.Flags().StringVar(&role, "role", auth.RoleMember, "member, admin or service")
	issue.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(issue)
	return cmd
}
