// Package main is the pachat CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/pachat/internal/assistant"
	"github.com/hyperjump/pachat/internal/cli"
	"github.com/hyperjump/pachat/internal/collection"
	"github.com/hyperjump/pachat/internal/config"
	"github.com/hyperjump/pachat/internal/convert"
	"github.com/hyperjump/pachat/internal/embedding"
	"github.com/hyperjump/pachat/internal/ingest"
	"github.com/hyperjump/pachat/internal/keyword"
	"github.com/hyperjump/pachat/internal/resolver"
	"github.com/hyperjump/pachat/internal/server"
	"github.com/hyperjump/pachat/internal/session"
	"github.com/hyperjump/pachat/internal/storage"
	"github.com/hyperjump/pachat/internal/watcher"
	"github.com/hyperjump/pachat/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/pachat/config.yaml"
	defaultServerURL  = "http://localhost:8501"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory is preferred if it exists, and a missing default file yields the built-in
// defaults. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg := &config.Config{}
			config.ApplyEnv(cfg)
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is fine; variables may come from the real environment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("pachat version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger; on failure it exits.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || debugFlag
	logger, err := utils.NewLogger(cfg.Debug, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolved
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolvedConfigPath := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	w := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		watcher.IngestInto(components.Assistant, components.Sessions, components.Collections, logger),
		watcher.WithLogger(logger),
	)
	if err := w.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go w.SyncExisting()

	srv := server.NewServer(components.Assistant, components.Sessions, components.Collections, cfg, logger, w)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL; empty opens the stores directly")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(cli.ReorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: pachat ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	files, err := ingestTargets(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	failed := false
	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids Bleve/SQLite lock conflict).
		client := cli.NewClient(*serverURL, 0)
		id, err := client.CreateSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		for _, f := range files {
			res, err := client.Upload(ctx, id, f)
			if res != nil {
				_ = cli.WriteIngestResult(os.Stdout, res, format)
			}
			if err != nil {
				failed = true
				if res == nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", f, err)
				}
			}
		}
	} else {
		cfg, logger, _ := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		sess := session.New("cli")
		for _, f := range files {
			report, msg, err := components.Assistant.IngestPath(ctx, sess, f)
			res := &cli.IngestResult{Report: report, Message: msg}
			if err != nil {
				res.Error = err.Error()
				failed = true
			}
			_ = cli.WriteIngestResult(os.Stdout, res, format)
		}
	}
	if failed {
		os.Exit(1)
	}
}

// ingestTargets expands a directory into its supported files, in name order.
func ingestTargets(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, err := ingest.KindOf(e.Name()); err == nil {
			files = append(files, filepath.Join(abs, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no pdf, xlsx or puml files in %s", abs)
	}
	return files, nil
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL; empty opens the stores directly")
	sessionID := fs.String("session", "", "existing session id (server mode)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(cli.ReorderArgs(os.Args[2:]))

	text := cli.JoinArgs(fs.Args())
	if text == "" {
		fmt.Println("Usage: pachat ask [flags] <message>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	ctx := context.Background()

	var answer *cli.Answer
	if *serverURL != "" {
		client := cli.NewClient(*serverURL, 0)
		id := *sessionID
		if id == "" {
			var err error
			if id, err = client.CreateSession(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
				os.Exit(1)
			}
		}
		res, err := client.Ask(ctx, id, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		answer = res
	} else {
		cfg, logger, _ := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		bundle, msg, err := components.Assistant.Ask(ctx, session.New("cli"), text)
		answer = &cli.Answer{Message: msg, Answer: bundle}
		if err != nil {
			answer.Error = err.Error()
		}
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL; empty opens the stores directly")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)
	ctx := context.Background()

	var status *cli.Status
	if *serverURL != "" {
		res, err := cli.NewClient(*serverURL, 10*time.Second).Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		cfg, logger, _ := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		counts, err := components.Collections.Counts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		status = &cli.Status{
			Collections: counts,
			Config: map[string]interface{}{
				"embedding_provider": cfg.Embedding.Provider,
				"embedding_model":    cfg.Embedding.Model,
				"database_path":      cfg.Storage.DatabasePath,
				"bleve_index_path":   cfg.Storage.BleveIndexPath,
				"script_dir":         cfg.Convert.ScriptDir,
				"output_dir":         cfg.Convert.OutputDir,
			},
		}
		if disk, err := storage.MeasureDisk(storage.DiskAreas(cfg)); err == nil {
			status.DiskUsageBytes = &disk.TotalBytes
			status.Disk = disk.Areas
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pachat watch <add|remove|list> [path]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(cli.ReorderArgs(os.Args[3:]))
	client := cli.NewClient(*serverURL, 10*time.Second)
	ctx := context.Background()

	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Printf("Usage: pachat watch %s <path>\n", sub)
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		var err error
		if sub == "add" {
			err = client.AddWatchDirectory(ctx, path)
		} else {
			err = client.RemoveWatchDirectory(ctx, path)
		}
		if err != nil {
			fmt.Printf("Watch %s failed: %v\n", sub, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %s\n", map[string]string{"add": "Added", "remove": "Removed"}[sub], path)
	case "list":
		dirs, err := client.WatchDirectories(ctx)
		if err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Embedder    embedding.Embedder
	Collections *collection.Store
	Assistant   *assistant.Assistant
	Sessions    *session.Manager
}

// Close releases the stores and the embedder.
func (c *Components) Close() {
	if c.Collections != nil {
		_ = c.Collections.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	collections, err := collection.Open(context.Background(), store, embedder,
		collection.WithLogger(logger),
		collection.WithKeywordIndex(keywordIndex),
		collection.WithFusionWeights(cfg.Resolver.KeywordWeight, cfg.Resolver.SemanticWeight),
	)
	if err != nil {
		_ = keywordIndex.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to open collections: %w", err)
	}

	runner := convert.NewScriptRunner(cfg.Convert.Interpreter, cfg.Convert.ScriptDir,
		convert.WithTimeout(cfg.Convert.Timeout),
		convert.WithLogger(logger),
	)
	orch := ingest.NewOrchestrator(runner, collections, cfg.Convert, ingest.WithLogger(logger))
	res := resolver.New(collections, cfg.Resolver, resolver.WithLogger(logger))

	return &Components{
		Embedder:    embedder,
		Collections: collections,
		Assistant:   assistant.New(orch, res, assistant.WithLogger(logger)),
		Sessions:    session.NewManager(cfg.Session.TTL, cfg.Session.CleanupInterval, logger),
	}, nil
}

func printUsage() {
	fmt.Println(`pachat - screen, API and diagram document assistant

Usage:
  pachat server [flags]                 Start the HTTP server (and the inbox watcher)
  pachat ingest [flags] <file-or-dir>   Ingest a pdf, xlsx or puml file
  pachat ask [flags] <message>          Ask about a PA number, file or API ID
  pachat status [flags]                 Show collection counts and configuration
  pachat watch <add|remove|list>        Manage inbox directories of a running server
  pachat version                        Show version
  pachat help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/pachat/config.yaml)
  --debug            Enable debug logging

Ingest / Ask / Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL, e.g. http://localhost:8501. Empty (default) opens the stores directly.
  --output string    Output format: text or json (default: text)
  --session string   Session id to ask in (ask, server mode only)

Watch Flags:
  --server string    Server URL (default: http://localhost:8501)

Examples:
  pachat server
  pachat ingest screens.pdf
  pachat ingest --server http://localhost:8501 api_list.xlsx
  pachat ask "PA1201001 screens.pdf"
  pachat ask --output json "API ID: CMM001"
  pachat status --output json
  pachat watch add ~/inbox`)
}
