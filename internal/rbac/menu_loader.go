package rbac

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

//go:embed menu_rules.yaml
var defaultMenuRules []byte

type menuFile struct {
	Menus []MenuRule `yaml:"menus"`
}

// DefaultMenuTable parses the rules compiled into the binary.
func DefaultMenuTable() (*MenuTable, error) {
	return ParseMenuTable(defaultMenuRules)
}

// ParseMenuTable decodes a YAML rule document. Unknown fields are rejected.
func ParseMenuTable(data []byte) (*MenuTable, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file menuFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("rbac: decode menu rules: %w", err)
	}
	return NewMenuTable(file.Menus)
}

// LoadMenuTable reads rules from path, or the embedded defaults when path is empty.
func LoadMenuTable(path string) (*MenuTable, error) {
	if path == "" {
		return DefaultMenuTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read menu rules: %w", err)
	}
	return ParseMenuTable(data)
}

// WatchMenuRules reloads path on change and publishes the new table into
// resolver. A file that fails to parse leaves the active table in place.
// onReload, when set, runs after each successful publish. It blocks until
// ctx is cancelled.
func WatchMenuRules(ctx context.Context, path string, resolver *MenuResolver, logger *slog.Logger, onReload func()) error {
	if path == "" {
		return errors.New("rbac: menu rules path required for watching")
	}
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rbac: new watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files via rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("rbac: watch %s: %w", path, err)
	}
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			table, err := LoadMenuTable(path)
			if err != nil {
				logger.Error("reload menu rules", slog.String("path", path), slog.Any("error", err))
				continue
			}
			active := resolver.Publish(table)
			if onReload != nil {
				onReload()
			}
			logger.Info("menu rules reloaded", slog.Uint64("version", active.Version), slog.Int("rules", len(active.keys)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("menu rules watcher", slog.Any("error", err))
		}
	}
}
