// Package main is the kotae CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/spf13/cobra"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

var (
	cfgFile   string
	serverURL string
	cfg       *config.Config
	cfgPath   string
)

var rootCmd = &cobra.Command{
	Use:   "kotae",
	Short: "Answer questions about a candidate from uploaded documents",
	Long: `kotae is a retrieval-augmented chat backend. Documents (resumes, interview notes,
project write-ups) are chunked, embedded and stored in a vector index; questions are
answered in the candidate's voice from the most relevant chunks.

Example usage:
  kotae server                          # Start the HTTP API
  kotae upload resume.pdf notes/*.md    # Upload documents to a running server
  kotae chat "What did you build at your last job?"
  kotae documents --limit 20`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "init-config" {
			return nil
		}
		var err error
		cfg, cfgPath, err = loadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

// loadConfig loads the .env file next to the working directory, then the config file.
// With the default path, ./config.yaml is preferred when present; when neither exists
// the defaults are used and the returned path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, "", err
	}
	if path == "" || path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				c, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return c, fallback, nil
			}
		}
		if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
		path = defaultConfigPath
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return c, path, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL, "server URL for client commands")
	rootCmd.AddCommand(
		newServerCmd(),
		newChatCmd(),
		newUploadCmd(),
		newDocumentsCmd(),
		newDeleteCmd(),
		newClearCmd(),
		newStatusCmd(),
		newInitConfigCmd(),
		newVersionCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kotae version %s\n", version)
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a config file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			var c config.Config
			config.ApplyDefaults(&c)
			if err := config.Save(path, &c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
			return nil
		},
	}
}
