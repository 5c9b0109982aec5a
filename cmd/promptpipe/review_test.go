package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewConfigValidate(t *testing.T) {
	tests := []struct {
		name          string
		config        *ReviewConfig
		expectedError string
	}{
		{
			name: "artifact file",
			config: &ReviewConfig{
				ArtifactPath: "script.sh",
				Format:       "text",
			},
		},
		{
			name: "staged diff",
			config: &ReviewConfig{
				StagedDiff: true,
				Format:     "json",
			},
		},
		{
			name: "no artifact source",
			config: &ReviewConfig{
				Format: "text",
			},
			expectedError: "an artifact is required",
		},
		{
			name: "both artifact sources",
			config: &ReviewConfig{
				ArtifactPath: "script.sh",
				StagedDiff:   true,
				Format:       "text",
			},
			expectedError: "mutually exclusive",
		},
		{
			name: "invalid format",
			config: &ReviewConfig{
				ArtifactPath: "script.sh",
				Format:       "yaml",
			},
			expectedError: "invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadArtifactFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "deploy.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\nset -euo pipefail\n"), 0o644))

	cmd := &cobra.Command{}
	artifact, err := loadArtifact(cmd, &ReviewConfig{ArtifactPath: path, Format: "text"})
	require.NoError(t, err)

	assert.Equal(t, "deploy.sh", artifact.Name)
	assert.Contains(t, artifact.Content, "set -euo pipefail")
}

func TestLoadArtifactFromFileWithNameOverride(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "artifact.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	cmd := &cobra.Command{}
	artifact, err := loadArtifact(cmd, &ReviewConfig{
		ArtifactPath: path,
		ArtifactName: "release-notes.md",
		Format:       "text",
	})
	require.NoError(t, err)

	assert.Equal(t, "release-notes.md", artifact.Name)
}

func TestLoadArtifactFromStdin(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("echo hello"))

	artifact, err := loadArtifact(cmd, &ReviewConfig{ArtifactPath: "-", Format: "text"})
	require.NoError(t, err)

	assert.Equal(t, "stdin", artifact.Name)
	assert.Equal(t, "echo hello", artifact.Content)
}

func TestLoadArtifactMissingFile(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := loadArtifact(cmd, &ReviewConfig{ArtifactPath: "/nonexistent/file.sh", Format: "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read artifact")
}
