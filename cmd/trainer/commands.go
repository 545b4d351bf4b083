package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cxr-association-engine/internal/config"
	"github.com/cxr-association-engine/internal/dataset"
	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/service"
)

// setup loads configuration, applies mutate and builds the model service
func setup(cmd *cobra.Command, mutate func(*domain.Config) error) (*service.Components, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	manager, err := loadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	cfg := manager.GetConfig()
	if mutate != nil {
		if err := mutate(cfg); err != nil {
			return nil, nil, err
		}
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// stdout is reserved for command output
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	components, err := service.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return components, logger, nil
}

func loadConfig(path string) (domain.ConfigManager, error) {
	manager, err := config.NewManagerWithFile(path)
	if err != nil {
		return nil, err
	}
	return manager, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	cmd.SetContext(ctx)

	components, logger, err := setup(cmd, func(cfg *domain.Config) error {
		flags := cmd.Flags()
		if flags.Changed("csv") {
			cfg.Dataset.Source = dataset.SourceCSV
			cfg.Dataset.CSVPath, _ = flags.GetString("csv")
		}
		if flags.Changed("min-support") {
			cfg.Mining.MinSupport, _ = flags.GetFloat64("min-support")
		}
		if flags.Changed("metric") {
			raw, _ := flags.GetString("metric")
			metric, err := domain.ParseMetric(raw)
			if err != nil {
				return err
			}
			cfg.Mining.Metric = string(metric)
		}
		if flags.Changed("min-threshold") {
			cfg.Mining.MinThreshold, _ = flags.GetFloat64("min-threshold")
		}
		if flags.Changed("max-len") {
			cfg.Mining.MaxLen, _ = flags.GetInt("max-len")
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer closeComponents(components, logger)

	report, err := components.Service.Retrain(ctx, nil, domain.MiningParams{})
	if err != nil {
		return err
	}
	printReport("rule store", report)

	if features, _ := cmd.Flags().GetBool("features"); features {
		report, err := components.Service.TrainFeatures(ctx, nil)
		if err != nil {
			return err
		}
		printReport("feature rule store", report)
	}
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	components, logger, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer closeComponents(components, logger)

	info, err := components.Service.Load(cmd.Context())
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	rules := components.Service.Rules(limit, minConfidence)

	fmt.Printf("Rule store %s (%s): showing %d of %d rules\n", info.SnapshotID, info.Source, len(rules), info.Rules)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tSUPPORT\tCONFIDENCE\tLIFT")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\n", r.String(), r.Support, r.Confidence, r.Lift)
	}
	return w.Flush()
}

func runQuery(cmd *cobra.Command, args []string) error {
	components, logger, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer closeComponents(components, logger)

	if _, err := components.Service.Load(cmd.Context()); err != nil {
		return err
	}

	severe, _ := cmd.Flags().GetStringSlice("severe")
	result, err := components.Service.Query(cmd.Context(), domain.QueryRequest{Observed: args, Severe: severe})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func printReport(kind string, report *domain.TrainingReport) {
	fmt.Printf("Saved %s %s: %d transactions, %d items, %d frequent itemsets, %d rules in %s\n",
		kind, report.SnapshotID, report.Transactions, report.Items, report.Itemsets, report.Rules, report.Duration)
}

func closeComponents(c *service.Components, logger *logrus.Logger) {
	if err := c.Close(); err != nil {
		logger.WithError(err).Warn("Failed to release model service")
	}
}
