package main

import (
	"encoding/json"
	"fmt"

	"github.com/PrateekKumar1709/policyguard/internal/config"
	"github.com/PrateekKumar1709/policyguard/internal/server"
	"github.com/spf13/cobra"
)

// callCmd runs one operation against the configured storage and prints the
// JSON result. Useful for scripting against a sqlite or postgres store.
func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <operation> [json-args]",
		Short: "Invoke a single operation and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := mustBuildLogger(cfg.Logger.Level)
			defer logger.Sync() //nolint:errcheck // best-effort flush

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}
			res, err := a.guard.Dispatch(cmd.Context(), server.Op(args[0]), raw)
			if err != nil {
				return fmt.Errorf("%s (%s): %w", args[0], server.Classify(err), err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
