package main

import (
	"fmt"

	"github.com/amaumene/announcarr/internal/models"
	"github.com/amaumene/announcarr/internal/utils"
	"github.com/spf13/cobra"
)

func newRulesCmd() *cobra.Command {
	rules := &cobra.Command{
		Use:   "rules",
		Short: "Manage filter rules and auto-download entries",
	}

	rules.AddCommand(
		&cobra.Command{
			Use:   "add-filter PATTERN",
			Short: "Archive releases whose whole name matches PATTERN",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(func(db *models.Database) error {
					return addRule(db, "filter", args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "add-adl TYPE PATTERN",
			Short: "Auto-download releases matching PATTERN (TYPE is tv or generic)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(func(db *models.Database) error {
					return addRule(db, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "import KIND FILE",
			Short: "Add every pattern of FILE (KIND is filter, tv or generic)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				patterns, err := utils.LoadRuleFile(args[1])
				if err != nil {
					return fmt.Errorf("failed to read rule file: %w", err)
				}
				return withDatabase(func(db *models.Database) error {
					for _, pattern := range patterns {
						if err := addRule(db, args[0], pattern); err != nil {
							return err
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rules\n", len(patterns))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every rule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(func(db *models.Database) error {
					return listRules(cmd, db)
				})
			},
		},
	)

	return rules
}

func withDatabase(fn func(db *models.Database) error) error {
	_, _, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// addRule validates and stores one pattern. kind is filter, tv or generic.
func addRule(db *models.Database, kind, pattern string) error {
	if err := utils.ValidatePattern(pattern); err != nil {
		return err
	}
	if kind == "filter" {
		return db.CreateFilterRule(pattern)
	}
	adlType, err := models.ParseAdlType(kind)
	if err != nil {
		return err
	}
	return db.CreateAdlEntry(adlType, pattern)
}

func listRules(cmd *cobra.Command, db *models.Database) error {
	out := cmd.OutOrStdout()

	filters, err := db.GetFilterRules()
	if err != nil {
		return fmt.Errorf("failed to get filter rules: %w", err)
	}
	for _, rule := range filters {
		fmt.Fprintf(out, "filter\t%s\n", rule.Pattern)
	}

	for _, adlType := range []models.AdlType{models.AdlTypeTV, models.AdlTypeGeneric} {
		entries, err := db.GetAdlEntries(adlType)
		if err != nil {
			return fmt.Errorf("failed to get %s entries: %w", adlType, err)
		}
		for _, entry := range entries {
			fmt.Fprintf(out, "%s\t%s\n", adlType, entry.Pattern)
		}
	}
	return nil
}
