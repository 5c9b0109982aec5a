// Package checklist loads review checklists from markdown files. A checklist
// file declares its items in YAML frontmatter; the markdown body is free-form
// guidance for human reviewers and is kept verbatim. Items are immutable once
// a checklist is loaded so pass/fail counts stay consistent for a run.
package checklist

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/promptpipe/pkg/logger"
)

// ErrChecklistNotFound is returned when a checklist cannot be resolved in
// any configured directory or among the builtin checklists.
var ErrChecklistNotFound = errors.New("checklist not found")

// Severity classifies how serious a failed checklist item is. It is a closed
// enumeration; loading a checklist with any other value fails.
type Severity string

// Severity levels, from most to least serious. CRITICAL and HIGH failures
// block the reviewed artifact.
const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// ParseSeverity converts a string into a Severity, case-insensitively
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityLow:
		return SeverityLow, nil
	default:
		return "", errors.Errorf("invalid severity %q, must be one of CRITICAL, HIGH, MEDIUM, LOW", s)
	}
}

// Item is a single reviewable requirement.
type Item struct {
	// ID identifies the item within its checklist
	ID string
	// Description is the human-readable requirement
	Description string
	// Severity classifies a failure of this item
	Severity Severity
	// MustMatch is an optional regex the artifact must contain
	MustMatch string
	// MustNotMatch is an optional regex the artifact must not contain
	MustNotMatch string
	// AppliesTo is an optional glob matched against the artifact name;
	// items whose glob does not match are skipped
	AppliesTo string
}

// Checklist is an ordered, read-only sequence of items loaded from one file.
type Checklist struct {
	// ID is the checklist identifier, the file path relative to its
	// directory without the .md extension
	ID string
	// Path is the absolute file path, or "builtin:<id>" for embedded checklists
	Path string
	// Name is the display name from frontmatter
	Name string
	// Description is the one-line summary from frontmatter
	Description string
	// Body is the markdown guidance below the frontmatter
	Body string

	items []Item
}

// Items returns a copy of the checklist's items in declaration order
func (c *Checklist) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of items
func (c *Checklist) Len() int {
	return len(c.items)
}

type fileHeader struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Items       []itemSpec `yaml:"items"`
}

type itemSpec struct {
	ID           string `yaml:"id"`
	Description  string `yaml:"description"`
	Severity     string `yaml:"severity"`
	MustMatch    string `yaml:"must_match"`
	MustNotMatch string `yaml:"must_not_match"`
	AppliesTo    string `yaml:"applies_to"`
}

// Parse decodes a checklist from raw markdown content
func Parse(id, path, content string) (*Checklist, error) {
	header, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, errors.Wrapf(err, "checklist %q", id)
	}

	var spec fileHeader
	if err := yaml.Unmarshal([]byte(header), &spec); err != nil {
		return nil, errors.Wrapf(err, "failed to decode checklist %q frontmatter", id)
	}

	if len(spec.Items) == 0 {
		return nil, errors.Errorf("checklist %q declares no items", id)
	}

	cl := &Checklist{
		ID:          id,
		Path:        path,
		Name:        spec.Name,
		Description: spec.Description,
		Body:        body,
	}

	seen := make(map[string]bool)
	for i, item := range spec.Items {
		if strings.TrimSpace(item.Description) == "" {
			return nil, errors.Errorf("checklist %q item %d has no description", id, i+1)
		}

		severity, err := ParseSeverity(item.Severity)
		if err != nil {
			return nil, errors.Wrapf(err, "checklist %q item %d", id, i+1)
		}

		itemID := item.ID
		if itemID == "" {
			itemID = slugify(item.Description)
		}
		if seen[itemID] {
			return nil, errors.Errorf("checklist %q has duplicate item id %q", id, itemID)
		}
		seen[itemID] = true

		cl.items = append(cl.items, Item{
			ID:           itemID,
			Description:  strings.TrimSpace(item.Description),
			Severity:     severity,
			MustMatch:    item.MustMatch,
			MustNotMatch: item.MustNotMatch,
			AppliesTo:    item.AppliesTo,
		})
	}

	return cl, nil
}

// splitFrontmatter separates the YAML frontmatter block from the markdown body
func splitFrontmatter(content string) (string, string, error) {
	if !strings.HasPrefix(content, "---") {
		return "", "", errors.New("missing frontmatter, checklist items are declared in a leading YAML block")
	}

	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return "", "", errors.New("unterminated frontmatter block")
	}

	header := strings.Join(lines[1:end], "\n")
	body := strings.TrimPrefix(strings.Join(lines[end+1:], "\n"), "\n")
	return header, body, nil
}

// slugify derives an item ID from its description
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Store discovers checklists across an ordered list of directories, with
// earlier directories taking precedence and builtins last.
type Store struct {
	checklistDirs []string
	builtin       fs.FS
}

// StoreOption configures a Store
type StoreOption func(*Store) error

// WithChecklistDirs sets custom checklist directories
func WithChecklistDirs(dirs ...string) StoreOption {
	return func(s *Store) error {
		if len(dirs) == 0 {
			return errors.New("at least one checklist directory must be specified")
		}
		s.checklistDirs = dirs
		return nil
	}
}

// WithAdditionalChecklistDirs adds directories after the current ones. If no
// directories are set yet it starts from the defaults. Empty input is a no-op.
func WithAdditionalChecklistDirs(dirs ...string) StoreOption {
	return func(s *Store) error {
		if len(dirs) == 0 {
			return nil
		}
		if len(s.checklistDirs) == 0 {
			if err := WithDefaultChecklistDirs()(s); err != nil {
				return errors.Wrap(err, "failed to initialize with default directories")
			}
		}
		s.checklistDirs = append(s.checklistDirs, dirs...)
		return nil
	}
}

// WithDefaultChecklistDirs resets to the default checklist directories
func WithDefaultChecklistDirs() StoreOption {
	return func(s *Store) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		s.checklistDirs = []string{
			"./checklists", // Repo-specific (higher precedence)
			filepath.Join(homeDir, ".promptpipe", "checklists"), // User home directory
		}
		return nil
	}
}

// WithBuiltinFS overrides the embedded builtin checklists; nil disables them
func WithBuiltinFS(fsys fs.FS) StoreOption {
	return func(s *Store) error {
		s.builtin = fsys
		return nil
	}
}

// NewStore creates a checklist store with optional configuration
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{builtin: BuiltinFS()}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "failed to apply checklist store option")
		}
	}

	if len(s.checklistDirs) == 0 {
		if err := WithDefaultChecklistDirs()(s); err != nil {
			return nil, errors.Wrap(err, "failed to apply default checklist directories")
		}
	}

	return s, nil
}

func normalizeID(name string) string {
	name = filepath.ToSlash(name)
	name = strings.TrimPrefix(name, "./")
	return strings.TrimSuffix(name, ".md")
}

// Load resolves a checklist identifier to its parsed, immutable content
func (s *Store) Load(ctx context.Context, name string) (*Checklist, error) {
	id := normalizeID(name)
	logger.G(ctx).WithField("checklist", id).Debug("loading checklist")

	for _, dir := range s.checklistDirs {
		for _, candidate := range []string{id + ".md", id} {
			fullPath := filepath.Join(dir, filepath.FromSlash(candidate))
			info, err := os.Stat(fullPath)
			if err != nil || info.IsDir() {
				continue
			}
			content, err := os.ReadFile(fullPath)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read checklist file %q", fullPath)
			}
			return Parse(id, fullPath, string(content))
		}
	}

	if s.builtin != nil {
		if content, err := fs.ReadFile(s.builtin, id+".md"); err == nil {
			return Parse(id, "builtin:"+id, string(content))
		}
	}

	return nil, errors.Wrapf(ErrChecklistNotFound, "checklist %q not found in directories %v", id, s.checklistDirs)
}

// List returns all discoverable checklists sorted by ID
func (s *Store) List(ctx context.Context) ([]*Checklist, error) {
	seen := make(map[string]bool)
	var result []*Checklist

	for _, dir := range s.checklistDirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan checklist directory %q", dir)
		}

		for _, match := range matches {
			id := normalizeID(match)
			if seen[id] {
				continue
			}
			cl, err := s.Load(ctx, id)
			if err != nil {
				logger.G(ctx).WithField("checklist", id).WithError(err).Warn("skipping unreadable checklist")
				continue
			}
			seen[id] = true
			result = append(result, cl)
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
				cl, err := s.Load(ctx, id)
				if err != nil {
					continue
				}
				seen[id] = true
				result = append(result, cl)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
