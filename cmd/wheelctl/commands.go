package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/analysis"
	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/storage"
	"github.com/xaenox/wheel-bot/pkg/config"
	applog "github.com/xaenox/wheel-bot/pkg/logger"
)

// sampleScores is a deliberately lopsided wheel, work heavy and family light.
var sampleScores = map[string]int{
	"Семья":           3,
	"Друзья":          3,
	"Здоровье":        3,
	"Хобби":           3,
	"Деньги":          6,
	"Отдых":           5,
	"Личное развитие": 8,
	"Работа/бизнес":   8,
}

type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "wheelctl",
		Short:        "Operator tools for the Wheel of Life bot",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to the config file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "llm-check",
			Short: "Run the analysis chain on a sample wheel",
			Args:  cobra.NoArgs,
			RunE:  a.runLLMCheck,
		},
		&cobra.Command{
			Use:   "list-models",
			Short: "List the models available on the Ollama server",
			Args:  cobra.NoArgs,
			RunE:  a.runListModels,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			Args:  cobra.NoArgs,
			RunE:  a.runMigrate,
		},
	)
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	logger, err := applog.New(cfg.Log.Level, "development")
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func (a *app) runLLMCheck(cmd *cobra.Command, args []string) error {
	chain, err := analysis.FromConfig(a.cfg.LLM, a.logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	names := make([]string, 0, len(chain.Providers()))
	for _, p := range chain.Providers() {
		names = append(names, p.Name())
	}
	fmt.Fprintf(out, "Providers: %s\n\n", strings.Join(names, ", "))

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.LLM.CallTimeout+a.cfg.LLM.ProbeTimeout)
	defer cancel()
	text := chain.Analyze(ctx, models.OrderedScores(sampleScores))
	fmt.Fprintln(out, text)
	if analysis.IsFailure(text) {
		return errors.New("no provider produced an analysis")
	}
	return nil
}

func (a *app) runListModels(cmd *cobra.Command, args []string) error {
	ollama := a.cfg.LLM.Ollama
	if ollama.URL == "" {
		return errors.New("ollama url is not configured")
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ollama URL: %s\nCurrent model: %s\n\n", ollama.URL, ollama.Model)

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.LLM.ProbeTimeout)
	defer cancel()
	list, err := analysis.NewOllamaProvider(ollama.URL, ollama.Model, a.logger).ListModels(ctx)
	if err != nil {
		return fmt.Errorf("error connecting to ollama: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No models found.")
		return nil
	}

	sep := strings.Repeat("-", 50)
	fmt.Fprintln(out, sep)
	for _, m := range list {
		fmt.Fprintf(out, "Name: %s\nSize: %d bytes\nModified: %s\n%s\n", m.Name, m.Size, m.ModifiedAt, sep)
	}
	return nil
}

func (a *app) runMigrate(cmd *cobra.Command, args []string) error {
	if a.cfg.Database.Driver == "memory" {
		return errors.New("the memory driver has no schema")
	}
	store, err := storage.Open(a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", a.cfg.Database.Driver)
	return nil
}
