package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/promptpipe/pkg/logger"
	"github.com/jingkaihe/promptpipe/pkg/presenter"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("PROMPTPIPE")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.promptpipe")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "promptpipe",
	Short: "Compose prompt templates and review generated artifacts",
	Long: `promptpipe mechanizes the copy/paste workflow of prompt-engineering guides:
it resolves named prompt templates (expanding cross-template references),
injects runtime context such as staged diffs or code snippets, and reviews
generated artifacts against severity-tagged checklists.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if level, err := cmd.Flags().GetString("log-level"); err == nil && level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				presenter.Warning(fmt.Sprintf("Invalid log level %q, using default", level))
			}
		}
		if format, err := cmd.Flags().GetString("log-format"); err == nil && format != "" {
			logger.SetLogFormat(format)
		}
		if quiet, err := cmd.Flags().GetBool("quiet"); err == nil {
			presenter.SetQuiet(quiet)
		}
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := initTracing(ctx)
	if err != nil {
		presenter.Warning(fmt.Sprintf("Failed to initialize tracing: %v", err))
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.G(ctx).WithError(err).Debug("failed to shut down tracing")
			}
		}()
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (fmt, json)")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress informational output")
	rootCmd.PersistentFlags().StringSlice("prompts-dir", nil, "Additional template directories, searched after the defaults")
	rootCmd.PersistentFlags().StringSlice("checklists-dir", nil, "Additional checklist directories, searched after the defaults")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("prompts_dirs", rootCmd.PersistentFlags().Lookup("prompts-dir"))
	viper.BindPFlag("checklists_dirs", rootCmd.PersistentFlags().Lookup("checklists-dir"))

	rootCmd.AddCommand(withTracing(composeCmd))
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(checklistsCmd)
	rootCmd.AddCommand(withTracing(reviewCmd))
	rootCmd.AddCommand(withTracing(watchCmd))
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
