// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sopcheck",
		Usage: "Score SOP documents against a catalog of compliance controls",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "sopcheck.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Optional .env file with model service credentials",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadEnv(c.String("env-file"))
		},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "Analyze one or more SOP text files",
				ArgsUsage: "FILE...",
				Action:    analyzeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "catalog",
						Usage: "Control catalog file (overrides the config)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (text, json)",
						Value: "text",
					},
					&cli.StringFlag{
						Name:  "keyword-policy",
						Usage: "Keyword gate policy (hard, soft); overrides the config",
					},
					&cli.BoolFlag{
						Name:  "no-result-cache",
						Usage: "Always recompute reports",
					},
					&cli.BoolFlag{
						Name:  "evidence",
						Usage: "Print supporting evidence in text output",
					},
				},
			},
			{
				Name:   "precache",
				Usage:  "Load the catalog and cache control embeddings",
				Action: precacheCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "catalog",
						Usage: "Control catalog file (overrides the config)",
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Report embedding progress on stderr",
					},
				},
			},
			{
				Name:   "cache-stats",
				Usage:  "Show cache statistics",
				Action: cacheStatsCommand,
			},
			{
				Name:   "cache-cleanup",
				Usage:  "Remove expired cache entries",
				Action: cacheCleanupCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Remove every cache entry, not only expired ones",
					},
					&cli.BoolFlag{
						Name:  "gc",
						Usage: "Compact the durable store after cleanup",
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadEnv loads path into the environment. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func commandContext(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}
