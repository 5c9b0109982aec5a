// Package templates loads prompt templates from the filesystem and resolves
// cross-template references. Templates are markdown files with optional YAML
// frontmatter, discovered across an ordered list of directories where earlier
// directories take precedence. A template can pull in other templates with
// @include(path) references, which are expanded depth-first in place.
package templates

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpipe/pkg/logger"
)

var (
	// ErrTemplateNotFound is returned when a template cannot be resolved in
	// any configured directory or among the builtin templates.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrCyclicReference is returned when @include expansion encounters a
	// reference cycle.
	ErrCyclicReference = errors.New("cyclic template reference")
)

// includePattern matches @include(path) references in template bodies.
var includePattern = regexp.MustCompile(`@include\(([^)\n]+)\)`)

// Metadata holds the YAML frontmatter of a template file.
type Metadata struct {
	Name        string
	Description string
}

// Template is an immutable, loaded prompt template.
type Template struct {
	// ID is the template identifier, the file path relative to its
	// template directory without the .md extension.
	ID string
	// Path is the absolute file path, or "builtin:<id>" for embedded templates.
	Path string
	// Raw is the template body with frontmatter stripped and includes unexpanded.
	Raw string
	// Metadata is the parsed frontmatter.
	Metadata Metadata
}

// Includes returns the template IDs referenced by @include expressions in Raw,
// in textual order.
func (t *Template) Includes() []string {
	matches := includePattern.FindAllStringSubmatch(t.Raw, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, normalizeID(strings.TrimSpace(m[1])))
	}
	return refs
}

// Store discovers and caches templates. Loads reload from disk when the
// backing file changes; the cache is read-mostly and safe for concurrent use.
type Store struct {
	templateDirs []string
	builtin      fs.FS

	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	tmpl    *Template
	modTime time.Time
	size    int64
}

// StoreOption configures a Store
type StoreOption func(*Store) error

// WithTemplateDirs sets custom template directories
func WithTemplateDirs(dirs ...string) StoreOption {
	return func(s *Store) error {
		if len(dirs) == 0 {
			return errors.New("at least one template directory must be specified")
		}
		s.templateDirs = dirs
		return nil
	}
}

// WithAdditionalTemplateDirs adds directories after the current ones. If no
// directories are set yet it starts from the defaults. Empty input is a no-op.
func WithAdditionalTemplateDirs(dirs ...string) StoreOption {
	return func(s *Store) error {
		if len(dirs) == 0 {
			return nil
		}
		if len(s.templateDirs) == 0 {
			if err := WithDefaultTemplateDirs()(s); err != nil {
				return errors.Wrap(err, "failed to initialize with default directories")
			}
		}
		s.templateDirs = append(s.templateDirs, dirs...)
		return nil
	}
}

// WithDefaultTemplateDirs resets to the default template directories
func WithDefaultTemplateDirs() StoreOption {
	return func(s *Store) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		s.templateDirs = []string{
			"./prompts", // Repo-specific (higher precedence)
			filepath.Join(homeDir, ".promptpipe", "prompts"), // User home directory
		}
		return nil
	}
}

// WithBuiltinFS overrides the embedded builtin templates. Builtins have the
// lowest precedence; passing nil disables them.
func WithBuiltinFS(fsys fs.FS) StoreOption {
	return func(s *Store) error {
		s.builtin = fsys
		return nil
	}
}

// NewStore creates a template store with optional configuration
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		builtin: BuiltinFS(),
		cache:   make(map[string]*cacheEntry),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "failed to apply template store option")
		}
	}

	if len(s.templateDirs) == 0 {
		if err := WithDefaultTemplateDirs()(s); err != nil {
			return nil, errors.Wrap(err, "failed to apply default template directories")
		}
	}

	return s, nil
}

// Dirs returns the directories searched for templates, in precedence order.
func (s *Store) Dirs() []string {
	dirs := make([]string, len(s.templateDirs))
	copy(dirs, s.templateDirs)
	return dirs
}

// normalizeID converts a user-supplied template reference into a canonical ID.
func normalizeID(name string) string {
	name = filepath.ToSlash(name)
	name = strings.TrimPrefix(name, "./")
	return strings.TrimSuffix(name, ".md")
}

// findTemplateFile searches for a template file in the configured directories
func (s *Store) findTemplateFile(name string) (string, error) {
	// Try both .md and the bare name
	possibleNames := []string{
		name + ".md",
		name,
	}

	for _, dir := range s.templateDirs {
		for _, candidate := range possibleNames {
			fullPath := filepath.Join(dir, filepath.FromSlash(candidate))
			if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
				return fullPath, nil
			}
		}
	}

	return "", errors.Wrapf(ErrTemplateNotFound, "template %q not found in directories %v", name, s.templateDirs)
}

// Load resolves a template identifier to its parsed content. Results are
// cached; a cached entry is reused only while the backing file's size and
// mtime are unchanged.
func (s *Store) Load(ctx context.Context, name string) (*Template, error) {
	id := normalizeID(name)
	logger.G(ctx).WithField("template", id).Debug("loading template")

	path, err := s.findTemplateFile(id)
	if err != nil {
		if s.builtin != nil {
			if tmpl, ok := s.loadBuiltin(ctx, id); ok {
				return tmpl, nil
			}
		}
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat template file %q", path)
	}

	s.mu.RLock()
	entry, ok := s.cache[id]
	s.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.tmpl, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read template file %q", path)
	}

	metadata, body, err := parseFrontmatter(string(content))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse template %q", path)
	}

	tmpl := &Template{
		ID:       id,
		Path:     path,
		Raw:      body,
		Metadata: metadata,
	}

	s.mu.Lock()
	s.cache[id] = &cacheEntry{tmpl: tmpl, modTime: info.ModTime(), size: info.Size()}
	s.mu.Unlock()

	return tmpl, nil
}

// loadBuiltin loads an embedded template. Builtins never change, so cache
// entries for them are permanent.
func (s *Store) loadBuiltin(ctx context.Context, id string) (*Template, bool) {
	cacheKey := "builtin:" + id

	s.mu.RLock()
	entry, ok := s.cache[cacheKey]
	s.mu.RUnlock()
	if ok {
		return entry.tmpl, true
	}

	content, err := fs.ReadFile(s.builtin, id+".md")
	if err != nil {
		return nil, false
	}

	metadata, body, err := parseFrontmatter(string(content))
	if err != nil {
		logger.G(ctx).WithField("template", id).WithError(err).Warn("skipping malformed builtin template")
		return nil, false
	}

	tmpl := &Template{
		ID:       id,
		Path:     cacheKey,
		Raw:      body,
		Metadata: metadata,
	}

	s.mu.Lock()
	s.cache[cacheKey] = &cacheEntry{tmpl: tmpl}
	s.mu.Unlock()

	return tmpl, true
}

// Resolve loads a template and expands its @include references recursively.
// Expansion is depth-first and preserves the textual position of each
// reference. A reference cycle fails with ErrCyclicReference; a reference to
// an unknown template fails with ErrTemplateNotFound.
func (s *Store) Resolve(ctx context.Context, name string) (string, error) {
	return s.expand(ctx, normalizeID(name), nil)
}

func (s *Store) expand(ctx context.Context, id string, trail []string) (string, error) {
	for _, seen := range trail {
		if seen == id {
			return "", errors.Wrapf(ErrCyclicReference, "include chain %s -> %s", strings.Join(trail, " -> "), id)
		}
	}

	tmpl, err := s.Load(ctx, id)
	if err != nil {
		return "", err
	}

	trail = append(trail, id)

	var expandErr error
	result := includePattern.ReplaceAllStringFunc(tmpl.Raw, func(match string) string {
		if expandErr != nil {
			return match
		}
		ref := normalizeID(strings.TrimSpace(includePattern.FindStringSubmatch(match)[1]))
		expanded, err := s.expand(ctx, ref, trail)
		if err != nil {
			expandErr = err
			return match
		}
		return expanded
	})
	if expandErr != nil {
		return "", expandErr
	}

	return result, nil
}

// List returns all discoverable templates sorted by ID. Templates in earlier
// directories shadow later ones; builtins have the lowest precedence.
func (s *Store) List(ctx context.Context) ([]*Template, error) {
	seen := make(map[string]bool)
	var result []*Template

	for _, dir := range s.templateDirs {
		if _, err := os.Stat(dir); err != nil {
			// Directory might not exist, continue
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan template directory %q", dir)
		}

		for _, match := range matches {
			id := normalizeID(match)
			if seen[id] {
				continue
			}
			tmpl, err := s.Load(ctx, id)
			if err != nil {
				logger.G(ctx).WithField("template", id).WithError(err).Warn("skipping unreadable template")
				continue
			}
			seen[id] = true
			result = append(result, tmpl)
		}
	}

	if s.builtin != nil {
		builtinIDs, err := fs.Glob(s.builtin, "*.md")
		if err == nil {
			for _, name := range builtinIDs {
				id := normalizeID(name)
				if seen[id] {
					continue
				}
				if tmpl, ok := s.loadBuiltin(ctx, id); ok {
					seen[id] = true
					result = append(result, tmpl)
				}
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
