package main

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/promptpipe/pkg/checklist"
	"github.com/jingkaihe/promptpipe/pkg/templates"
)

// Config is the application configuration, populated from the config file,
// environment variables, and flags.
type Config struct {
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	PromptsDirs    []string      `mapstructure:"prompts_dirs"`
	ChecklistsDirs []string      `mapstructure:"checklists_dirs"`
	Tracing        TracingConfig `mapstructure:"tracing"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Sampler string  `mapstructure:"sampler"`
	Ratio   float64 `mapstructure:"ratio"`
}

// getConfig decodes viper's merged settings into a Config
func getConfig() (*Config, error) {
	config := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create config decoder")
	}

	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	return config, nil
}

// extraDirs merges directories from a flag with the configured ones, flag
// directories first so they take precedence.
func extraDirs(cmd *cobra.Command, flag string, configured []string) []string {
	dirs, err := cmd.Flags().GetStringSlice(flag)
	if err != nil {
		dirs = nil
	}
	return append(dirs, configured...)
}

// newTemplateStore builds the template store from flags and configuration
func newTemplateStore(cmd *cobra.Command) (*templates.Store, error) {
	config, err := getConfig()
	if err != nil {
		return nil, err
	}

	dirs := extraDirs(cmd, "prompts-dir", config.PromptsDirs)
	return templates.NewStore(templates.WithAdditionalTemplateDirs(dirs...))
}

// newChecklistStore builds the checklist store from flags and configuration
func newChecklistStore(cmd *cobra.Command) (*checklist.Store, error) {
	config, err := getConfig()
	if err != nil {
		return nil, err
	}

	dirs := extraDirs(cmd, "checklists-dir", config.ChecklistsDirs)
	return checklist.NewStore(checklist.WithAdditionalChecklistDirs(dirs...))
}
