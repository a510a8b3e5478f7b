package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/model"
)

func newValidateLevelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-level <path>",
		Short: "Check that a level file loads against the default catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := readLevel(args[0])
			if err != nil {
				return err
			}
			base, err := core.NewState(model.DefaultSessionConfig(), kb.DefaultCatalog())
			if err != nil {
				return err
			}
			st, err := core.ApplyLevel(base, lvl)
			if err != nil {
				return fmt.Errorf("level %s: %w", lvl.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "level %q ok: %d orders, %d department overrides, %.0f minute session\n",
				lvl.Name, len(st.Scheduled), len(lvl.Departments), st.Clock.Duration.Minutes())
			return nil
		},
	}
}
