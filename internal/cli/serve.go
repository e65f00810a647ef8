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
)

var (
	serveConfig string
	serveListen string
	serveStore  string
	serveWatch  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to config YAML (default ~/.devlens/config.yaml)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Inspector listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "SQLite path for persistent captures (overrides config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Hot-reload tunables when the config file changes")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a standalone engine with an inspector listener",
	Long: "Runs the observability engine outside a host application, mainly for\n" +
		"poking at the protocol with inspector clients or the Go SDK.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, hash, err := config.LoadWithHash(serveConfig)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Transport.Listen = serveListen
	}
	if serveStore != "" {
		cfg.Capture.StorePath = serveStore
	}

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
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	if err := e.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "devlens listening on %s (config %s)\n", e.Addr(), hash)

	if serveWatch && serveConfig != "" {
		reloader, err := config.NewReloader(serveConfig, e.ApplyConfig)
		if err != nil {
			return err
		}
		go func() {
			if err := reloader.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "config watcher stopped: %v\n", err)
			}
		}()
	}

	<-ctx.Done()
	return e.Stop()
}
