// cmd/check.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/actuator/internal/config"
	"github.com/xkilldash9x/actuator/internal/session"
)

// newCheckCmd validates the configuration and, optionally, plan files without a browser.
func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [plan...]",
		Short: "Validates the configuration and session plans.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := config.NewConfigFromViper(a.v)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "config ok (driver %s, %d profiles)\n", cfg.Browser().Driver, len(cfg.Session().Profiles))

			for _, path := range args {
				plan, err := session.LoadPlan(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "%s ok (%q, %d steps)\n", path, plan.Name, len(plan.Steps))
			}
			return nil
		},
	}
}
