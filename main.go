package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sandbox/docsearch/pkg/config"
	"sandbox/docsearch/pkg/search"
	"sandbox/docsearch/pkg/server"
	"sandbox/docsearch/pkg/tracing"
)

const version = "0.1.0"

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:           "docsearch",
		Short:         "Ingest documents and search them by meaning",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default docsearch.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Query the collection interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(configPath, os.Stdin, os.Stdout)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest local files into the collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, args)
		},
	}

	createCmd := &cobra.Command{
		Use:   "create-collection",
		Short: "Create the collection if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateCollection(configPath)
		},
	}

	dropCmd := &cobra.Command{
		Use:   "drop-collection",
		Short: "Drop the collection and every document in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDropCollection(configPath)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigName
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	configCmd.AddCommand(configInitCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("docsearch", version)
		},
	}

	rootCmd.AddCommand(serveCmd, replCmd, ingestCmd, createCmd, dropCmd, configCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	ctx := context.Background()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "docsearch",
		ServiceVersion: version,
		OTLPEndpoint:   a.cfg.Tracing.Endpoint,
		SampleRate:     a.cfg.Tracing.SampleRate,
	})
	if err != nil {
		a.store.Close()
		return fmt.Errorf("Failed to init tracing: %w", err)
	}

	health := server.NewHealthServer(version)
	health.RegisterCheck("store", server.StoreHealthChecker(a.cfg.Store.Backend, a.store.Count))
	health.RegisterCheck("embedder", server.EmbedderHealthChecker(a.embedder.Model().Name(), a.embedder.Embed))

	srv := server.NewServer(&server.Config{Addr: a.cfg.Server.Addr}, a.svc, health, a.logger)

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
		Timeout: time.Duration(a.cfg.Server.ShutdownTimeoutSecs) * time.Second,
		Logger:  a.logger,
	})
	shutdown.Register(server.HTTPServerShutdownHook("http", srv.Stop))
	shutdown.Register(server.StoreShutdownHook(a.store.Close))
	shutdown.Register(server.TracingShutdownHook(tp.Shutdown))
	shutdown.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		shutdown.Shutdown()
		shutdown.Wait()
		return err
	case <-shutdown.ShutdownCh():
		shutdown.Wait()
		a.logger.Info("docsearch stopped")
		return nil
	}
}

// runRepl reads one query per line and prints the best match.
func runRepl(configPath string, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.store.Close()

	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, ">: ")
		input, err := reader.ReadString('\n')
		if err == io.EOF && input == "" {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("Failed to read input: %w", err)
		}
		query := strings.TrimSpace(input)
		if query == "" {
			continue
		}

		results, qerr := a.svc.Query(ctx, query)
		if qerr != nil {
			a.logger.Error("query failed", "kind", search.KindOf(qerr), "error", qerr)
		} else {
			for _, r := range results {
				fmt.Fprintf(out, "[%s]\n%s\n", r.Filename, r.Text)
			}
		}
		if err == io.EOF || ctx.Err() != nil {
			return nil
		}
	}
}

func runIngest(configPath string, paths []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.store.Close()

	uploads := make([]search.Upload, 0, len(paths))
	for _, p := range paths {
		uploads = append(uploads, search.FileUpload(p))
	}
	if err := a.svc.Ingest(ctx, uploads); err != nil {
		return err
	}
	n, err := a.svc.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d file(s); collection %q holds %d document(s)\n", len(paths), a.cfg.Store.Collection, n)
	return nil
}

func runCreateCollection(configPath string) error {
	ctx := context.Background()
	// newApp creates the collection.
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.store.Close()
	a.logger.Info("collection ready", "collection", a.cfg.Store.Collection, "backend", a.cfg.Store.Backend)
	return nil
}

func runDropCollection(configPath string) error {
	ctx := context.Background()
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	emb, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	store, err := newStore(ctx, cfg, emb)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DropSchema(ctx); err != nil {
		return fmt.Errorf("Failed to drop collection: %w", err)
	}
	logger.Info("collection dropped", "collection", cfg.Store.Collection, "backend", cfg.Store.Backend)
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
