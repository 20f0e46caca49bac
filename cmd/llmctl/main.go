// llmctl is the administrative CLI: provider health probes, cache
// statistics and clearing, and conversation context maintenance.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/wanderhaven/llmcore/config"
	"github.com/wanderhaven/llmcore/logger"
	"github.com/wanderhaven/llmcore/manager"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	log, err := logger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	mgr, err := manager.FromConfig(cfg, log)
	if err != nil {
		return err
	}

	args := flag.Args()
	if len(args) == 0 {
		return usage()
	}

	ctx := context.Background()
	switch args[0] {
	case "status":
		return printJSON(mgr.ProviderStatus(ctx))
	case "cache":
		return runCache(mgr, args[1:])
	case "context":
		return runContext(mgr, args[1:])
	default:
		return usage()
	}
}

func runCache(mgr *manager.Manager, args []string) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "stats":
		return printJSON(mgr.CacheStats())
	case "top":
		fs := flag.NewFlagSet("cache top", flag.ContinueOnError)
		n := fs.Int("n", 10, "Number of entries to list")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return printJSON(mgr.TopCacheEntries(*n))
	case "clear":
		fs := flag.NewFlagSet("cache clear", flag.ContinueOnError)
		maxAge := fs.Duration("max-age", 0, "Only clear entries older than this (0 clears everything)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return printJSON(mgr.ClearCache(*maxAge))
	default:
		return usage()
	}
}

func runContext(mgr *manager.Manager, args []string) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "clear":
		if len(args) < 2 {
			return fmt.Errorf("context clear requires a context id")
		}
		return mgr.ClearContext(args[1])
	case "sweep":
		fs := flag.NewFlagSet("context sweep", flag.ContinueOnError)
		maxAge := fs.Duration("max-age", 30*24*time.Hour, "Remove contexts idle longer than this")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		fmt.Printf("removed %d contexts\n", mgr.SweepContexts(*maxAge))
		return nil
	default:
		return usage()
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func usage() error {
	return fmt.Errorf("usage: llmctl [flags] <status | cache stats | cache top [-n count] | cache clear [-max-age d] | context clear <id> | context sweep [-max-age d]>")
}
