// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command repoquery answers natural-language questions about a code
// repository by letting an LLM inspect it through a constrained tool set.
//
// Usage:
//
//	# One-shot question from the command line
//	repoquery "Where is the HTTP router configured?"
//
//	# Run the HTTP server
//	repoquery serve --port 8080
//
// The repository path comes from config.yaml or the --repo flag, never
// from a request.
//
// With Ollama (default backend):
//
//	OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=llama3.2:latest repoquery "..."
//
// With OpenAI:
//
//	OPENAI_API_KEY=sk-... repoquery --provider openai "..."
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/repoquery/pkg/logging"
)

// Config is the config.yaml schema.
type Config struct {
	// RepositoryRoot is the repository to answer questions about.
	RepositoryRoot string `yaml:"repository_root"`

	// Provider selects the chat backend: "ollama" or "openai".
	Provider string `yaml:"provider"`

	// MaxIterations caps the conversation loop per question.
	MaxIterations int `yaml:"max_iterations"`

	Server struct {
		// Port is the HTTP listen port for the serve command.
		Port int `yaml:"port"`

		// Debug enables verbose request logging.
		Debug bool `yaml:"debug"`
	} `yaml:"server"`

	Logging struct {
		// Level is the minimum log severity: debug, info, warn, error.
		Level string `yaml:"level"`

		// Dir enables file logging when set.
		Dir string `yaml:"dir"`
	} `yaml:"logging"`
}

var (
	config     Config
	configPath string
	logger     *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "Repository root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "LLM provider: ollama or openai (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "Suppress log output on stderr")

	serveCmd.Flags().IntVar(&portFlag, "port", 0, "HTTP listen port (overrides config)")
	serveCmd.Flags().BoolVar(&debugFlag, "debug", false, "Enable debug mode")
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		loadConfig()

		logger = logging.New(logging.Config{
			Level:   logging.ParseLevel(config.Logging.Level),
			Service: "repoquery",
			LogDir:  config.Logging.Dir,
			Quiet:   quietFlag,
		})
		slog.SetDefault(logger.Slog())
	}
}

// loadConfig reads config.yaml and fills in defaults. A missing config
// file is not fatal: flags and defaults are enough to run.
func loadConfig() {
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			slog.Error("Failed to parse config file",
				slog.String("path", configPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if config.RepositoryRoot == "" {
		config.RepositoryRoot = "."
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
}
