package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create or repair the store schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Provision(); err != nil {
				return fmt.Errorf("failed to provision database: %w", err)
			}
			logger.Info("Database provisioned")
			return nil
		},
	}
}
