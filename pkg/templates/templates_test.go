package templates

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStore_Load(t *testing.T) {
	tempDir := t.TempDir()

	writeTemplate(t, tempDir, "commit-prompt.md", `---
name: Commit Prompt
description: Generates commit messages
---
Summarize this diff: {{.diff}}
`)

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)

	tmpl, err := store.Load(context.Background(), "commit-prompt")
	require.NoError(t, err)

	assert.Equal(t, "commit-prompt", tmpl.ID)
	assert.Equal(t, "Commit Prompt", tmpl.Metadata.Name)
	assert.Equal(t, "Generates commit messages", tmpl.Metadata.Description)
	assert.Equal(t, "Summarize this diff: {{.diff}}\n", tmpl.Raw)
	assert.NotContains(t, tmpl.Raw, "---")
}

func TestStore_Load_NoFrontmatter(t *testing.T) {
	tempDir := t.TempDir()
	writeTemplate(t, tempDir, "plain.md", "Just some prompt text.\n")

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)

	tmpl, err := store.Load(context.Background(), "plain")
	require.NoError(t, err)
	assert.Empty(t, tmpl.Metadata.Name)
	assert.Equal(t, "Just some prompt text.\n", tmpl.Raw)
}

func TestStore_Load_NotFound(t *testing.T) {
	store, err := NewStore(WithTemplateDirs(t.TempDir()), WithBuiltinFS(nil))
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestStore_Load_DirectoryPrecedence(t *testing.T) {
	repoDir := t.TempDir()
	homeDir := t.TempDir()

	writeTemplate(t, repoDir, "greeting.md", "repo version")
	writeTemplate(t, homeDir, "greeting.md", "home version")

	store, err := NewStore(WithTemplateDirs(repoDir, homeDir))
	require.NoError(t, err)

	tmpl, err := store.Load(context.Background(), "greeting")
	require.NoError(t, err)
	assert.Equal(t, "repo version", tmpl.Raw)
}

func TestStore_Load_ReloadOnChange(t *testing.T) {
	tempDir := t.TempDir()
	path := writeTemplate(t, tempDir, "evolving.md", "first")

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)
	ctx := context.Background()

	tmpl, err := store.Load(ctx, "evolving")
	require.NoError(t, err)
	assert.Equal(t, "first", tmpl.Raw)

	// Rewrite with a distinct mtime so the cache notices the change
	require.NoError(t, os.WriteFile(path, []byte("second"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	tmpl, err = store.Load(ctx, "evolving")
	require.NoError(t, err)
	assert.Equal(t, "second", tmpl.Raw)
}

func TestStore_Resolve_ExpandsIncludesInPlace(t *testing.T) {
	tempDir := t.TempDir()

	writeTemplate(t, tempDir, "outer.md", "before\n@include(inner)\nafter\n")
	writeTemplate(t, tempDir, "inner.md", "INNER")

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)

	resolved, err := store.Resolve(context.Background(), "outer")
	require.NoError(t, err)
	assert.Equal(t, "before\nINNER\nafter\n", resolved)
}

func TestStore_Resolve_NestedIncludes(t *testing.T) {
	tempDir := t.TempDir()

	writeTemplate(t, tempDir, "a.md", "A[@include(sub/b)]")
	writeTemplate(t, tempDir, "sub/b.md", "B[@include(c)]")
	writeTemplate(t, tempDir, "c.md", "C")

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)

	resolved, err := store.Resolve(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "A[B[C]]", resolved)
}

func TestStore_Resolve_CycleFailsFast(t *testing.T) {
	tempDir := t.TempDir()

	writeTemplate(t, tempDir, "ping.md", "@include(pong)")
	writeTemplate(t, tempDir, "pong.md", "@include(ping)")

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)

	_, err = store.Resolve(context.Background(), "ping")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicReference)
	assert.Contains(t, err.Error(), "ping -> pong -> ping")
}

func TestStore_Resolve_SelfInclude(t *testing.T) {
	tempDir := t.TempDir()
	writeTemplate(t, tempDir, "narcissus.md", "@include(narcissus)")

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)

	_, err = store.Resolve(context.Background(), "narcissus")
	assert.ErrorIs(t, err, ErrCyclicReference)
}

func TestStore_Resolve_MissingInclude(t *testing.T) {
	tempDir := t.TempDir()
	writeTemplate(t, tempDir, "broken.md", "@include(ghost)")

	store, err := NewStore(WithTemplateDirs(tempDir), WithBuiltinFS(nil))
	require.NoError(t, err)

	_, err = store.Resolve(context.Background(), "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestStore_Resolve_RepeatedNonCyclicInclude(t *testing.T) {
	tempDir := t.TempDir()

	// Diamond shape: shared appears twice but there is no cycle
	writeTemplate(t, tempDir, "root.md", "@include(shared) and @include(shared)")
	writeTemplate(t, tempDir, "shared.md", "S")

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)

	resolved, err := store.Resolve(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "S and S", resolved)
}

func TestStore_Builtins(t *testing.T) {
	store, err := NewStore(WithTemplateDirs(t.TempDir()))
	require.NoError(t, err)
	ctx := context.Background()

	tmpl, err := store.Load(ctx, "commit-message")
	require.NoError(t, err)
	assert.Equal(t, "Commit Message", tmpl.Metadata.Name)
	assert.Contains(t, tmpl.Path, "builtin:")

	// Builtin includes resolve against other builtins
	resolved, err := store.Resolve(ctx, "commit-message")
	require.NoError(t, err)
	assert.Contains(t, resolved, "imperative mood")
	assert.NotContains(t, resolved, "@include")
}

func TestStore_BuiltinShadowedByDirectory(t *testing.T) {
	tempDir := t.TempDir()
	writeTemplate(t, tempDir, "commit-message.md", "custom commit prompt {{.diff}}")

	store, err := NewStore(WithTemplateDirs(tempDir))
	require.NoError(t, err)

	tmpl, err := store.Load(context.Background(), "commit-message")
	require.NoError(t, err)
	assert.Equal(t, "custom commit prompt {{.diff}}", tmpl.Raw)
}

func TestStore_List(t *testing.T) {
	tempDir := t.TempDir()
	writeTemplate(t, tempDir, "zebra.md", "z")
	writeTemplate(t, tempDir, "nested/alpha.md", "a")

	store, err := NewStore(WithTemplateDirs(tempDir), WithBuiltinFS(nil))
	require.NoError(t, err)

	all, err := store.List(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(all))
	for _, tmpl := range all {
		ids = append(ids, tmpl.ID)
	}
	assert.Equal(t, []string{"nested/alpha", "zebra"}, ids)
}

func TestStore_List_IncludesBuiltins(t *testing.T) {
	store, err := NewStore(WithTemplateDirs(t.TempDir()))
	require.NoError(t, err)

	all, err := store.List(context.Background())
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, tmpl := range all {
		ids[tmpl.ID] = true
	}
	assert.True(t, ids["commit-message"])
	assert.True(t, ids["shell-script"])
	assert.True(t, ids["python-docstring"])
}

func TestTemplate_Includes(t *testing.T) {
	tmpl := &Template{Raw: "x @include(first.md) y @include(sub/second) z"}
	assert.Equal(t, []string{"first", "sub/second"}, tmpl.Includes())
}
