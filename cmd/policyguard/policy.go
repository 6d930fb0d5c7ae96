package main

import (
	"fmt"

	"github.com/PrateekKumar1709/policyguard/internal/policy"
	"github.com/spf13/cobra"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Policy file utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "lint <file>...",
		Short: "Validate policy YAML files without loading them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				params, err := policy.LoadFile(path)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					failed++
					continue
				}
				rules := 0
				for _, p := range params {
					rules += len(p.Rules)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d policies, %d rules)\n", path, len(params), rules)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	})
	return cmd
}
