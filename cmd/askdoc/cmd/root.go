// Package cmd provides the CLI commands for askdoc.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/configs"
	"github.com/askdoc/askdoc/internal/config"
	"github.com/askdoc/askdoc/pkg/version"
)

var (
	configPath string
	dataDir    string
	debugMode  bool
)

// NewRootCmd creates the root command for the askdoc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "askdoc",
		Short: "Hybrid retrieval over PDF document collections",
		Long: `askdoc ingests PDF manuals with a multimodal parser and answers
questions over them using hybrid retrieval (BM25 + embeddings with
reciprocal rank fusion).

Run 'askdoc ingest manual.pdf' to index a document, then
'askdoc query "how do I calibrate the sensor"' to search it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("askdoc version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <data-dir>/askdoc.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves the configuration for a command invocation, applying
// the persistent flag overrides on top of file and environment values.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		defaults := config.NewConfig()
		path = filepath.Join(defaults.DataDir, "askdoc.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if debugMode {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			path := configPath
			if path == "" {
				path = filepath.Join(cfg.DataDir, "askdoc.yaml")
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, configs.ExampleConfig, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}
