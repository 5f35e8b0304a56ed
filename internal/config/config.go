// Package config loads the YAML configuration of the grid server.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	Default  bool   `yaml:"default"`
}

// DSN renders the lib/pq connection string.
func (d Database) DSN() string {
	schema := d.Schema
	if schema == "" {
		schema = "public"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable search_path=%s,public",
		d.Host, d.Port, d.User, d.Password, d.Database, schema)
}

type Config struct {
	Application struct {
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		Author   string `yaml:"author"`
		Language string `yaml:"language"`
	} `yaml:"application"`
	Server struct {
		Port string `yaml:"port"`
		// RateLimit is requests per second; zero disables limiting.
		RateLimit float64 `yaml:"rate_limit"`
		Burst     int     `yaml:"burst"`
	} `yaml:"server"`
	Database []Database `yaml:"database"`
	Catalog  struct {
		Path string `yaml:"path"`
		// Data is a JSON array of rows served in memory instead of a
		// database table.
		Data string `yaml:"data"`
	} `yaml:"catalog"`
	Pool struct {
		MaxConnections int    `yaml:"max_connections"`
		IdleTimeout    string `yaml:"idle_timeout"`
		AbsTimeout     string `yaml:"abs_timeout"`
	} `yaml:"pool"`
	Grid struct {
		PageSize int `yaml:"page_size"`
	} `yaml:"grid"`
}

// Load reads path after loading .env into the environment. ${VAR}
// references in the file are expanded.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error as it might not exist in prod

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Application.Language == "" {
		cfg.Application.Language = "en"
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.Burst <= 0 {
		cfg.Server.Burst = max(int(cfg.Server.RateLimit), 1)
	}
	return &cfg, nil
}

// DefaultDatabase returns the database marked default, else the first one.
func (c *Config) DefaultDatabase() (Database, bool) {
	for _, d := range c.Database {
		if d.Default {
			return d, true
		}
	}
	if len(c.Database) > 0 {
		return c.Database[0], true
	}
	return Database{}, false
}

// PoolTuning returns the connection pool settings with defaults applied.
func (c *Config) PoolTuning() (maxConns int, idle, abs time.Duration, err error) {
	idle, abs = 5*time.Minute, time.Hour
	if s := c.Pool.IdleTimeout; s != "" {
		if idle, err = time.ParseDuration(s); err != nil {
			return 0, 0, 0, fmt.Errorf("config: pool.idle_timeout: %w", err)
		}
	}
	if s := c.Pool.AbsTimeout; s != "" {
		if abs, err = time.ParseDuration(s); err != nil {
			return 0, 0, 0, fmt.Errorf("config: pool.abs_timeout: %w", err)
		}
	}
	maxConns = c.Pool.MaxConnections
	if maxConns == 0 {
		maxConns = 10
	}
	return maxConns, idle, abs, nil
}

// Watch calls fn whenever one of paths is written, until ctx is done. Editors
// that replace a file are handled by watching the parent directories.
func Watch(ctx context.Context, fn func(path string), paths ...string) error {
	if len(paths) == 0 {
		return errors.New("config: nothing to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				fn(event.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching config", "err", err)
		}
	}
}
