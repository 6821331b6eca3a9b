// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gradewell/gradewell/pkg/logging"
	"github.com/gradewell/gradewell/pkg/ux"
)

// Config is the CLI's optional config.yaml. Every field has an env
// override and a default, so the file itself is never required.
type Config struct {
	ServiceURL string `yaml:"service_url"`
	LogDir     string `yaml:"log_dir"`
}

var (
	config Config
	logger *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

// loadConfig merges config.yaml (cwd, then ~/.gradewell), environment
// variables, and defaults, in increasing priority of env over file.
func loadConfig() Config {
	var cfg Config

	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".gradewell", "config.yaml"))
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", path, err)
		}
		break
	}

	if url := os.Getenv("GRADEWELL_SERVICE_URL"); url != "" {
		cfg.ServiceURL = url
	}
	if cfg.ServiceURL == "" {
		cfg.ServiceURL = "http://localhost:12410"
	}
	if dir := os.Getenv("GRADEWELL_LOG_DIR"); dir != "" {
		cfg.LogDir = dir
	}
	return cfg
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		config = loadConfig()

		if plainOutput || os.Getenv("GRADEWELL_PLAIN_OUTPUT") != "" {
			ux.SetPlain(true)
		}

		logger = logging.New(logging.Config{
			Level:   logging.LevelInfo,
			LogDir:  config.LogDir,
			Service: "cli",
			Quiet:   true,
		})
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	}
}
