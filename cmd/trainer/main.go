// Package main provides the rule store training CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "cxr-trainer",
		Short: "Mine and inspect chest X-ray association rule stores",
		Long: `cxr-trainer mines association rules from chest X-ray finding labels
with Apriori and persists the resulting rule store to the configured
artifact backend. The same store can then be inspected or queried.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to a configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cxr-trainer v%s (%s)\n", version, commit)
		},
	})

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Mine a rule store and save it",
		RunE:  runTrain,
	}
	trainCmd.Flags().String("csv", "", "Train from this CSV file instead of the configured dataset")
	trainCmd.Flags().Float64("min-support", 0, "Minimum itemset support (overrides mining.min_support)")
	trainCmd.Flags().String("metric", "", "Rule metric: confidence, lift, support or leverage")
	trainCmd.Flags().Float64("min-threshold", 0, "Minimum value of the rule metric")
	trainCmd.Flags().Int("max-len", 0, "Maximum itemset length, 0 for unbounded")
	trainCmd.Flags().Bool("features", false, "Also mine the image feature rule store")
	rootCmd.AddCommand(trainCmd)

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "List rules from the saved rule store",
		RunE:  runRules,
	}
	rulesCmd.Flags().Int("limit", 20, "Maximum number of rules to print, 0 for all")
	rulesCmd.Flags().Float64("min-confidence", 0, "Only print rules at or above this confidence")
	rootCmd.AddCommand(rulesCmd)

	queryCmd := &cobra.Command{
		Use:   "query [finding...]",
		Short: "Apply the saved rule store to observed findings",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().StringSlice("severe", nil, "Conditions to report as complications")
	rootCmd.AddCommand(queryCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
