package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpipe/pkg/presenter"
	"github.com/jingkaihe/promptpipe/pkg/review"
)

// ReviewConfig holds configuration for the review command
type ReviewConfig struct {
	ArtifactPath string
	ArtifactName string
	StagedDiff   bool
	Format       string
}

// NewReviewConfig creates a new ReviewConfig with default values
func NewReviewConfig() *ReviewConfig {
	return &ReviewConfig{
		Format: "text",
	}
}

// Validate checks the configuration for errors
func (c *ReviewConfig) Validate() error {
	if c.Format != "text" && c.Format != "json" {
		return errors.Errorf("invalid format %q: must be 'text' or 'json'", c.Format)
	}
	if c.ArtifactPath == "" && !c.StagedDiff {
		return errors.New("an artifact is required: pass --artifact or --staged-diff")
	}
	if c.ArtifactPath != "" && c.StagedDiff {
		return errors.New("--artifact and --staged-diff are mutually exclusive")
	}
	return nil
}

var reviewCmd = &cobra.Command{
	Use:   "review [checklist]",
	Short: "Review an artifact against a checklist",
	Long: `Review an artifact against a quality checklist and report the findings.

The artifact is read from a file (--artifact), from stdin (--artifact -),
or from the staged git diff (--staged-diff). The command exits non-zero
when the review is blocked by a critical or high severity failure.

Examples:
  promptpipe review shell-script-review --artifact deploy.sh
  cat deploy.sh | promptpipe review shell-script-review --artifact -
  promptpipe review commit-message-review --staged-diff --format json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		config, err := getReviewConfigFromFlags(cmd)
		if err != nil {
			presenter.Error(err, "Invalid review options")
			os.Exit(1)
		}

		store, err := newChecklistStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create checklist store")
			os.Exit(1)
		}

		cl, err := store.Load(ctx, args[0])
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to load checklist %q", args[0]))
			os.Exit(1)
		}

		artifact, err := loadArtifact(cmd, config)
		if err != nil {
			presenter.Error(err, "Failed to read artifact")
			os.Exit(1)
		}

		report := review.NewReviewer().Review(ctx, cl, artifact)

		if config.Format == "json" {
			jsonData, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				presenter.Error(err, "Failed to render report")
				os.Exit(1)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
		} else {
			presenter.Report(report)
		}

		if report.Status == review.StatusBlocked {
			os.Exit(1)
		}
	},
}

func getReviewConfigFromFlags(cmd *cobra.Command) (*ReviewConfig, error) {
	config := NewReviewConfig()

	if artifact, err := cmd.Flags().GetString("artifact"); err == nil {
		config.ArtifactPath = artifact
	}
	if name, err := cmd.Flags().GetString("name"); err == nil {
		config.ArtifactName = name
	}
	if stagedDiff, err := cmd.Flags().GetBool("staged-diff"); err == nil {
		config.StagedDiff = stagedDiff
	}
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadArtifact(cmd *cobra.Command, config *ReviewConfig) (review.Artifact, error) {
	ctx := cmd.Context()

	if config.StagedDiff {
		if !isGitRepository() {
			return review.Artifact{}, errors.New("not in a git repository")
		}
		if !hasStagedChanges() {
			return review.Artifact{}, errors.New("no staged changes found")
		}
		diff, err := getStagedDiff(ctx)
		if err != nil {
			return review.Artifact{}, err
		}
		name := config.ArtifactName
		if name == "" {
			name = "staged-diff"
		}
		return review.Artifact{Name: name, Content: diff}, nil
	}

	if config.ArtifactPath == "-" {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return review.Artifact{}, errors.Wrap(err, "failed to read artifact from stdin")
		}
		name := config.ArtifactName
		if name == "" {
			name = "stdin"
		}
		return review.Artifact{Name: name, Content: string(content)}, nil
	}

	content, err := os.ReadFile(config.ArtifactPath)
	if err != nil {
		return review.Artifact{}, errors.Wrapf(err, "failed to read artifact %s", config.ArtifactPath)
	}
	name := config.ArtifactName
	if name == "" {
		name = filepath.Base(config.ArtifactPath)
	}
	return review.Artifact{Name: name, Content: string(content)}, nil
}

func init() {
	reviewCmd.Flags().StringP("artifact", "a", "", "Artifact file to review, or '-' for stdin")
	reviewCmd.Flags().String("name", "", "Artifact name used in the report (defaults to the file name)")
	reviewCmd.Flags().Bool("staged-diff", false, "Review the staged git diff as the artifact")
	reviewCmd.Flags().String("format", "text", "Output format (text or json)")
}
