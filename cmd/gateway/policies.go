package main

import (
	"admission-gateway/internal/config"
	"admission-gateway/middleware/ratelimit/application"

	"github.com/spf13/cobra"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Print the effective policy set",
	Long: `Print the policies the gateway would register, as YAML.

The output can be saved and referenced from rate_limit.policy_file.

Examples:
  gateway policies > policies.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		policies, err := cfg.Policies()
		if err != nil {
			return err
		}
		reg, err := application.NewRegistry(policies...)
		if err != nil {
			return err
		}
		return config.EncodePolicies(cmd.OutOrStdout(), reg.Policies())
	},
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}
