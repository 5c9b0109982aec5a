package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpipe/pkg/compose"
	"github.com/jingkaihe/promptpipe/pkg/logger"
	"github.com/jingkaihe/promptpipe/pkg/presenter"
	"github.com/jingkaihe/promptpipe/pkg/templates"
)

// WatchConfig holds configuration for the watch command
type WatchConfig struct {
	Compose      *ComposeConfig
	DebounceTime int
}

// NewWatchConfig creates a new WatchConfig with default values
func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		Compose:      NewComposeConfig(),
		DebounceTime: 500,
	}
}

// Validate validates the WatchConfig and returns an error if invalid
func (c *WatchConfig) Validate() error {
	if c.DebounceTime < 0 {
		return errors.Errorf("debounce time cannot be negative: %d", c.DebounceTime)
	}
	return nil
}

// FileEvent represents a file system event with additional metadata
type FileEvent struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

var watchCmd = &cobra.Command{
	Use:   "watch [template]",
	Short: "Recompose a template whenever its source files change",
	Long: `Continuously monitors the template directories and recomposes the named
template whenever a markdown file changes. The recomposed prompt is written
to the output file (or stdout) on every change, so an editor session on a
template or one of its includes gives immediate feedback.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		config := getWatchConfigFromFlags(cmd)
		if err := config.Validate(); err != nil {
			presenter.Error(err, "Invalid configuration")
			os.Exit(1)
		}

		store, err := newTemplateStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create template store")
			os.Exit(1)
		}

		values, err := buildContext(ctx, config.Compose)
		if err != nil {
			presenter.Error(err, "Failed to build context")
			os.Exit(1)
		}

		// Compose once up front so a broken template is reported before
		// entering the watch loop.
		recompose(ctx, store, args[0], values, config)

		runWatchMode(ctx, store, args[0], values, config)
	},
}

func init() {
	defaults := NewWatchConfig()
	watchCmd.Flags().StringArray("set", nil, "Bind an insertion point to a value (key=value, repeatable)")
	watchCmd.Flags().StringArray("set-file", nil, "Bind an insertion point to a file's content (key=path, repeatable)")
	watchCmd.Flags().StringP("output", "o", "", "Write the composed prompt to a file instead of stdout")
	watchCmd.Flags().IntP("debounce", "d", defaults.DebounceTime, "Debounce time in milliseconds for file change events")
}

// getWatchConfigFromFlags extracts watch configuration from command flags
func getWatchConfigFromFlags(cmd *cobra.Command) *WatchConfig {
	config := NewWatchConfig()

	if sets, err := cmd.Flags().GetStringArray("set"); err == nil {
		config.Compose.Sets = sets
	}
	if setFiles, err := cmd.Flags().GetStringArray("set-file"); err == nil {
		config.Compose.SetFiles = setFiles
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Compose.Output = output
	}
	if debounceTime, err := cmd.Flags().GetInt("debounce"); err == nil {
		config.DebounceTime = debounceTime
	}

	return config
}

func runWatchMode(ctx context.Context, store *templates.Store, name string, values *compose.Context, config *WatchConfig) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		presenter.Error(err, "Failed to create file watcher")
		logger.G(ctx).WithError(err).Fatal("Failed to create file watcher")
	}
	defer watcher.Close()

	events := make(chan FileEvent)
	debouncedEvents := make(chan FileEvent)

	go debounceFileEvents(ctx, events, debouncedEvents, time.Duration(config.DebounceTime)*time.Millisecond)

	// Process debounced events
	go func() {
		for {
			select {
			case event, ok := <-debouncedEvents:
				if !ok {
					return
				}
				presenter.Info(fmt.Sprintf("Change detected: %s (%s)", event.Path, event.Op))
				logger.G(ctx).WithFields(map[string]interface{}{
					"file":      event.Path,
					"operation": event.Op.String(),
				}).Debug("Template file changed")
				recompose(ctx, store, name, values, config)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Watch for raw events
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if !strings.HasSuffix(event.Name, ".md") {
					continue
				}
				events <- FileEvent{
					Path: event.Name,
					Op:   event.Op,
					Time: time.Now(),
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				presenter.Error(err, "File watcher error")
				logger.G(ctx).WithError(err).Error("Error watching template directories")
			case <-ctx.Done():
				return
			}
		}
	}()

	watched := 0
	for _, dir := range store.Dirs() {
		if _, err := os.Stat(dir); err != nil {
			logger.G(ctx).WithField("directory", dir).Debug("Skipping missing template directory")
			continue
		}
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				logger.G(ctx).WithField("directory", path).Debug("Adding directory to watcher")
				return watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to watch directory %s", dir))
			logger.G(ctx).WithError(err).WithField("directory", dir).Fatal("Failed to watch template directory")
		}
		watched++
	}
	if watched == 0 {
		presenter.Error(errors.New("no template directories exist"), "Nothing to watch")
		os.Exit(1)
	}

	presenter.Info("Watching template directories... Press Ctrl+C to stop")
	logger.G(ctx).WithField("directories", watched).Info("Template watcher initialized")

	<-ctx.Done()
}

func recompose(ctx context.Context, store *templates.Store, name string, values *compose.Context, config *WatchConfig) {
	output, err := composeTemplate(ctx, store, name, values)
	if err != nil {
		presenter.Error(err, fmt.Sprintf("Failed to compose template %q", name))
		return
	}

	if config.Compose.Output != "" {
		if err := os.WriteFile(config.Compose.Output, []byte(output), 0o644); err != nil {
			presenter.Error(err, "Failed to write output file")
			return
		}
		presenter.Success(fmt.Sprintf("Composed prompt written to %s", config.Compose.Output))
		return
	}

	presenter.Separator()
	fmt.Print(output)
}

// Debounce file events to prevent processing multiple rapid changes to the same file
func debounceFileEvents(ctx context.Context, input <-chan FileEvent, output chan<- FileEvent, delay time.Duration) {
	var pending = make(map[string]*time.Timer)

	for {
		select {
		case event, ok := <-input:
			if !ok {
				for _, timer := range pending {
					timer.Stop()
				}
				return
			}
			if timer, exists := pending[event.Path]; exists {
				timer.Stop()
				delete(pending, event.Path)
			}

			eventCopy := event
			pending[event.Path] = time.AfterFunc(delay, func() {
				select {
				case output <- eventCopy:
					delete(pending, eventCopy.Path)
				case <-ctx.Done():
					delete(pending, eventCopy.Path)
				}
			})
		case <-ctx.Done():
			for _, timer := range pending {
				timer.Stop()
			}
			return
		}
	}
}
