// Package cli implements the quarry command-line interface.
//
// Commands fetch dependency metadata from gem registries, render the
// resulting closure, manage the artifact cache, and serve a local mirror.
// All commands support --verbose (-v) for debug-level logging via
// charmbracelet/log; the logger is shared through the CLI struct.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/pkg/buildinfo"
	"github.com/quarrydev/quarry/pkg/cache"
	"github.com/quarrydev/quarry/pkg/config"
)

// appName is used for cache and config directories and display.
const appName = "quarry"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
}

// New creates a CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "quarry",
		Short:        "Quarry fetches gem dependency metadata from registries",
		Long:         `Quarry resolves the transitive dependency closure of gem names against one or more registries, tolerating flaky networks and registries that only expose the legacy full index.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to quarry.toml (default: XDG config dir)")

	root.AddCommand(c.fetchCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.mirrorCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the configured or default quarry.toml.
func (c *CLI) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// newCache builds the artifact cache backend: Redis when configured, the
// on-disk cache otherwise. Failures degrade to the null cache; caching is
// an optimization, never a requirement.
func (c *CLI) newCache(ctx context.Context, cfg *config.Config, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}

	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			c.Logger.Warn("redis cache unreachable, continuing without caching",
				"addr", cfg.Redis.Addr, "err", err)
			return cache.NewNullCache()
		}
		return rc
	}

	dir := cfg.CachePath
	if dir == "" {
		var err error
		dir, err = cacheDir()
		if err != nil {
			return cache.NewNullCache()
		}
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return cache.NewNullCache()
	}
	return fc
}

// cacheDir returns the cache directory using the XDG convention
// (~/.cache/quarry/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
