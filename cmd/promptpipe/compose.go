package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpipe/pkg/compose"
	"github.com/jingkaihe/promptpipe/pkg/presenter"
	"github.com/jingkaihe/promptpipe/pkg/templates"
)

// ComposeConfig holds configuration for the compose command
type ComposeConfig struct {
	Sets       []string
	SetFiles   []string
	StagedDiff bool
	Output     string
}

// NewComposeConfig creates a ComposeConfig with default values
func NewComposeConfig() *ComposeConfig {
	return &ComposeConfig{}
}

var composeCmd = &cobra.Command{
	Use:   "compose [template]",
	Short: "Compose a prompt template with runtime context",
	Long: `Resolve a named template, expand its @include references, and substitute
the supplied context values into its insertion points. The composed prompt is
printed to stdout (or written to a file) ready to be pasted into an AI
assistant.

Context values come from --set key=value flags, --set-file key=path flags,
and --staged-diff, which binds the output of 'git diff --cached' to the
"diff" insertion point.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getComposeConfigFromFlags(cmd)

		store, err := newTemplateStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create template store")
			os.Exit(1)
		}

		values, err := buildContext(ctx, config)
		if err != nil {
			presenter.Error(err, "Failed to build context")
			os.Exit(1)
		}

		output, err := composeTemplate(ctx, store, args[0], values)
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to compose template %q", args[0]))
			os.Exit(1)
		}

		if config.Output != "" {
			if err := os.WriteFile(config.Output, []byte(output), 0o644); err != nil {
				presenter.Error(err, "Failed to write output file")
				os.Exit(1)
			}
			presenter.Success(fmt.Sprintf("Composed prompt written to %s", config.Output))
			return
		}

		fmt.Fprint(cmd.OutOrStdout(), output)
	},
}

func init() {
	composeCmd.Flags().StringArray("set", nil, "Bind an insertion point to a value (key=value, repeatable)")
	composeCmd.Flags().StringArray("set-file", nil, "Bind an insertion point to a file's content (key=path, repeatable)")
	composeCmd.Flags().Bool("staged-diff", false, "Bind 'git diff --cached' output to the diff insertion point")
	composeCmd.Flags().StringP("output", "o", "", "Write the composed prompt to a file instead of stdout")
}

// getComposeConfigFromFlags extracts compose configuration from command flags
func getComposeConfigFromFlags(cmd *cobra.Command) *ComposeConfig {
	config := NewComposeConfig()

	if sets, err := cmd.Flags().GetStringArray("set"); err == nil {
		config.Sets = sets
	}
	if setFiles, err := cmd.Flags().GetStringArray("set-file"); err == nil {
		config.SetFiles = setFiles
	}
	if stagedDiff, err := cmd.Flags().GetBool("staged-diff"); err == nil {
		config.StagedDiff = stagedDiff
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}

	return config
}

// parseBinding splits a key=value flag argument
func parseBinding(arg string) (string, string, error) {
	key, value, found := strings.Cut(arg, "=")
	if !found || key == "" {
		return "", "", errors.Errorf("invalid binding %q, expected key=value", arg)
	}
	return key, value, nil
}

// buildContext assembles the compose context from the configured sources
func buildContext(ctx context.Context, config *ComposeConfig) (*compose.Context, error) {
	values := compose.NewContext()

	for _, arg := range config.Sets {
		key, value, err := parseBinding(arg)
		if err != nil {
			return nil, err
		}
		values.Set(key, value)
	}

	for _, arg := range config.SetFiles {
		key, path, err := parseBinding(arg)
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read value file for %q", key)
		}
		values.Set(key, string(content))
	}

	if config.StagedDiff {
		if !isGitRepository() {
			return nil, errors.New("--staged-diff requires a git repository")
		}
		if !hasStagedChanges() {
			return nil, errors.New("no staged changes found, stage your changes with 'git add' first")
		}
		diff, err := getStagedDiff(ctx)
		if err != nil {
			return nil, err
		}
		values.Set("diff", diff)
	}

	return values, nil
}

// composeTemplate resolves and composes a template, surfacing warnings
func composeTemplate(ctx context.Context, store *templates.Store, name string, values *compose.Context) (string, error) {
	resolved, err := store.Resolve(ctx, name)
	if err != nil {
		return "", err
	}

	result, err := compose.Compose(ctx, resolved, values)
	if err != nil {
		return "", err
	}

	for _, warning := range result.Warnings {
		presenter.Warning(warning.String())
	}

	return result.Output, nil
}
