package main

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"
)

func isGitRepository() bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	err := cmd.Run()
	return err == nil
}

func hasStagedChanges() bool {
	cmd := exec.Command("git", "diff", "--cached", "--quiet")
	err := cmd.Run()
	return err != nil
}

// getStagedDiff returns the output of git diff --cached
func getStagedDiff(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--cached")
	output, err := cmd.Output()
	if err != nil {
		return "", errors.Wrap(err, "failed to get staged diff")
	}
	return string(output), nil
}
