package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/questionflow/internal/api"
	"github.com/soaringjerry/questionflow/internal/services"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a questionnaire definition into the database",
	Long: "seed stores the built-in questionnaire, or the definition given with --file, " +
		"when no questions exist yet. With --force the stored questions are replaced.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		force, _ := cmd.Flags().GetBool("force")

		def, err := loadDefinition(cfg, file)
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		if !force {
			seeded, err := api.SeedIfEmpty(cmd.Context(), store, def, cfg.Questionnaire())
			if err != nil {
				return err
			}
			if !seeded {
				fmt.Fprintln(cmd.OutOrStdout(), "questions already present; use --force to replace them")
			}
			return nil
		}
		if def == nil {
			if def, err = services.DefaultQuestionnaire(); err != nil {
				return err
			}
		}
		n, err := api.SeedQuestionnaire(cmd.Context(), store, def, cfg.Questionnaire())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d questions\n", n)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a questionnaire definition without storing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		def, err := services.LoadQuestionnaireFile(args[0])
		if err != nil {
			return err
		}
		g, err := def.Graph(cfg.Questionnaire())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d questions, starts at %s\n", args[0], g.Len(), g.First().ID)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "", "JSON or YAML questionnaire definition (defaults to QUESTIONFLOW_SEED_FILE)")
	seedCmd.Flags().Bool("force", false, "Replace existing questions")
}
