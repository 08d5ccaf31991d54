package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/DocChat/internal/app"
	"github.com/dharsanguruparan/DocChat/internal/completion"
	"github.com/dharsanguruparan/DocChat/internal/config"
	"github.com/dharsanguruparan/DocChat/internal/database"
	"github.com/dharsanguruparan/DocChat/internal/extract"
	"github.com/dharsanguruparan/DocChat/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "docchat: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docchat",
		Short: "DocChat document summarization service",
		Long: `DocChat accepts documents, summarizes them in the background and answers
questions about finished summaries. Settings come from DOCCHAT_* environment
variables and an optional .env file.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newExtractCmd(),
		newSummarizeCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cfg *config.Config) {
				if addr != "" {
					cfg.Address = addr
				}
			}, func(a *app.App) error {
				return a.Serve(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides DOCCHAT_ADDRESS)")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process jobs from the asynq queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cfg *config.Config) {
				if concurrency > 0 {
					cfg.ProcessingPool = concurrency
				}
			}, func(a *app.App) error {
				return a.Work(cmd.Context())
			})
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Concurrent jobs (overrides DOCCHAT_WORKERS)")
	return cmd
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the text extracted from a PDF, DOCX or TXT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := extractFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newSummarizeCmd() *cobra.Command {
	var modelName string
	cmd := &cobra.Command{
		Use:   "summarize <file>",
		Short: "Extract a file and summarize it without creating a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if modelName != "" {
				cfg.SummaryModel = modelName
			}
			text, err := extractFile(args[0])
			if err != nil {
				return err
			}
			client := completion.NewClient(completion.Config{
				APIKey:       cfg.OpenAIAPIKey,
				BaseURL:      cfg.OpenAIBaseURL,
				SummaryModel: cfg.SummaryModel,
				ChatModel:    cfg.ChatModel,
				Timeout:      cfg.OpenAITimeout,
			}, nil)
			summary, err := client.Summarize(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelName, "model", "", "Summary model (overrides DOCCHAT_SUMMARY_MODEL)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the jobs table in DOCCHAT_DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DOCCHAT_DATABASE_URL is not set")
			}
			pool, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func extractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return extract.FromBytes(data, path)
}

// withApp loads config, applies overrides, builds the app and runs fn.
func withApp(cmd *cobra.Command, override func(*config.Config), fn func(*app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	override(cfg)
	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		log.Sync()
		return err
	}
	defer a.Close()
	return fn(a)
}
