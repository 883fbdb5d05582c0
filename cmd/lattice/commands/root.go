// Package commands implements the lattice CLI commands.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/hlsf/lattice"
	"github.com/hlsf/lattice/edgeblock"
	"github.com/hlsf/lattice/rank"
)

// Config is the YAML file shape the CLI reads.
type Config struct {
	// Path is the database directory. Empty means in-memory.
	Path string `yaml:"path"`

	// Codec is the edge-block codec name: "raw" (default) or "gzip".
	Codec string `yaml:"codec"`

	// Dim is the embedding dimension for the local provider.
	Dim int `yaml:"dim"`

	// Mirror is the export-mirror root directory. Empty disables it.
	Mirror string `yaml:"mirror"`

	// Alpha and Beta override the hybrid ranking weights.
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

var (
	configPath string
	dbPath     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "lattice",
	Short:         "Embedded knowledge-graph storage and exploration engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default ./lattice.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat("lattice.yaml"); err == nil {
			path = "lattice.yaml"
		}
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if dbPath != "" {
		cfg.Path = dbPath
	}
	return cfg, nil
}

// openDB builds a database from config and flags. Callers must Close it.
func openDB() (*lattice.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := []lattice.Option{lattice.WithLogger(lattice.NewTextLogger(level))}

	if cfg.Codec != "" {
		codec, ok := edgeblock.ByName(cfg.Codec)
		if !ok {
			return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
		}
		opts = append(opts, lattice.WithCodec(codec))
	}
	if cfg.Dim > 0 {
		opts = append(opts, lattice.WithDimension(cfg.Dim))
	}
	if cfg.Mirror != "" {
		opts = append(opts, lattice.WithMirror(cfg.Mirror, 0))
	}
	if cfg.Alpha != 0 || cfg.Beta != 0 {
		opts = append(opts, lattice.WithRanking(rank.Params{Alpha: cfg.Alpha, Beta: cfg.Beta}))
	}
	return lattice.Open(cfg.Path, opts...)
}
