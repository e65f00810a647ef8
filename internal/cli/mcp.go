package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devlens/devlens/internal/config"
	"github.com/devlens/devlens/internal/engine"
	devmcp "github.com/devlens/devlens/internal/mcp"
)

var mcpConfig string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpConfig, "config", "", "Path to config YAML (default ~/.devlens/config.yaml)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP inspection server for AI-assistant clients",
	Long: "Runs devlens as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes inspection tools: fetch_metrics, list_errors, list_requests, replay_request.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, hash, err := config.LoadWithHash(mcpConfig)
	if err != nil {
		return err
	}
	// Stdio is the only surface here; the TCP listener stays off.
	cfg.Transport.Listen = ""

	e, err := engine.New(cfg, hash)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	if err := e.Start(ctx); err != nil {
		return err
	}
	defer e.Stop()

	srv := devmcp.New(engine.Version, e.Recorder(), e.Replayer(), e.Errors(), e.Metrics())

	fmt.Fprintln(os.Stderr, "devlens MCP server running on stdio")
	return srv.Run(ctx)
}
