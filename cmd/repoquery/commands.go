// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/repoquery/services/repoquery"
	"github.com/AleutianAI/repoquery/services/repoquery/agent"
)

var (
	repoFlag     string
	providerFlag string
	quietFlag    bool
	portFlag     int
	debugFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "repoquery [question]",
	Short: "Answer questions about a code repository with an LLM",
	Long: `Repoquery lets an LLM inspect a code repository through a constrained
set of tools (file listing, text search, symbols, references, source
retrieval) and answers natural-language questions about the code.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQueryCommand,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the repoquery HTTP server",
	Long:  `Starts the HTTP server exposing POST /v1/repoquery/query for the configured repository.`,
	Run:   runServeCommand,
}

// buildService constructs the service from config and flag overrides.
func buildService() (*repoquery.Service, error) {
	root := config.RepositoryRoot
	if repoFlag != "" {
		root = repoFlag
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repository root: %w", err)
	}

	provider := config.Provider
	if providerFlag != "" {
		provider = providerFlag
	}

	cfg := repoquery.DefaultServiceConfig()
	cfg.RepositoryRoot = absRoot
	cfg.Provider = provider
	if config.MaxIterations > 0 {
		session := agent.DefaultSessionConfig()
		session.MaxIterations = config.MaxIterations
		cfg.Session = session
	}

	return repoquery.NewService(cfg)
}

// runQueryCommand answers one question and prints the result to stdout.
func runQueryCommand(cmd *cobra.Command, args []string) {
	defer logger.Close()

	svc, err := buildService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	question := strings.Join(args, " ")
	result, err := svc.Query(context.Background(), question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if result.Exhausted {
		fmt.Fprintln(os.Stderr, "No answer: the model was still requesting tools when the iteration budget ran out.")
		os.Exit(1)
	}

	fmt.Println(result.Answer)
}

// runServeCommand starts the HTTP server.
func runServeCommand(cmd *cobra.Command, args []string) {
	defer logger.Close()

	if debugFlag || config.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, err := buildService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if debugFlag || config.Server.Debug {
		router.Use(gin.Logger())
	}

	handlers := repoquery.NewHandlers(svc)
	v1 := router.Group("/v1")
	repoquery.RegisterRoutes(v1, handlers)

	port := config.Server.Port
	if portFlag != 0 {
		port = portFlag
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down repoquery server")
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", port)
	slog.Info("Starting repoquery server",
		slog.String("address", addr),
		slog.String("repository", svc.RepositoryRoot()),
	)
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
