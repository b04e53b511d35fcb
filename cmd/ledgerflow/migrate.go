package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(stderr, cfg, rootOpts.Verbose)

			s, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore(s, logger)

			fmt.Fprintf(cmd.OutOrStdout(), "%s store migrated\n", cfg.Store)
			return nil
		},
	}
}
