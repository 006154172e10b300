// Leadboard is a realtime sales pipeline board. Leads move through four
// stages by drag and drop; every browser tab sees changes as they happen.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/leadboard/internal/auth"
	"github.com/madhatter5501/leadboard/internal/board"
	"github.com/madhatter5501/leadboard/internal/config"
	"github.com/madhatter5501/leadboard/internal/db"
	"github.com/madhatter5501/leadboard/internal/export"
	"github.com/madhatter5501/leadboard/internal/importer"
	"github.com/madhatter5501/leadboard/internal/realtime"
	"github.com/madhatter5501/leadboard/internal/web"
	"github.com/madhatter5501/leadboard/kanban"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

var (
	configPath string
	exportOut  string
	importUser string
)

var rootCmd = &cobra.Command{
	Use:           "leadboard",
	Short:         "Realtime sales pipeline board",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE:  runServe,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import leads from a CSV or Excel file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every lead as CSV",
	RunE:  runExport,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lead counts per stage",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("leadboard %s (commit: %s, built: %s)\n", version, gitCommit, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $LEADBOARD_CONFIG_PATH)")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default: leads_export_<date>.csv, - for stdout)")
	importCmd.Flags().StringVar(&importUser, "user", "", "Owner user id for imported leads")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config and opens the database.
func setup() (config.Config, *slog.Logger, *db.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	database, err := db.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, logger, database, nil
}

// openFeed builds the change feed. The returned publisher is nil for the
// postgres feed, where the database trigger announces changes.
func openFeed(ctx context.Context, cfg config.Config, logger *slog.Logger) (db.Publisher, realtime.Subscriber, func(), error) {
	switch cfg.Feed.Kind {
	case config.FeedRedis:
		r := cfg.Feed.Redis
		feed, err := realtime.NewRedisFeed(ctx, r.Addr, r.Password, r.DB, r.Channel, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return feed, feed, func() { _ = feed.Close() }, nil
	case config.FeedPostgres:
		feed := realtime.NewPostgresFeed(cfg.DB.DSN, logger)
		return nil, feed, func() { _ = feed.Close() }, nil
	default:
		feed := realtime.NewMemoryFeed(logger)
		return feed, feed, func() { _ = feed.Close() }, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, database, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	// Handle signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, subscriber, closeFeed, err := openFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFeed()

	store := db.NewStore(database, publisher, logger)
	provider := auth.NewLocal(database, cfg.Server.SessionTTL, logger)

	server, err := web.NewServer(store, provider, subscriber, board.Options{
		Locale:          cfg.Board.Locale,
		ImportWorkers:   cfg.Board.ImportWorkers,
		ScrollThreshold: cfg.Board.ScrollThreshold,
		ScrollSpeed:     cfg.Board.ScrollSpeed,
		ScrollInterval:  cfg.Board.ScrollInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	logger.Info("Leadboard ready",
		"addr", cfg.Server.Addr(),
		"db", cfg.DB.Driver,
		"feed", cfg.Feed.Kind,
		"version", version)

	return server.Start(cfg.Server.Addr())
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, logger, database, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	// Open boards learn about the new leads through the configured feed.
	publisher, _, closeFeed, err := openFeed(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeFeed()

	store := db.NewStore(database, publisher, logger)
	ok, failed, err := importFile(cmd.Context(), store, args[0], importUser, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Importação: %d sucessos, %d falhas\n", ok, failed)
	return nil
}

// importFile inserts every row of the spreadsheet at path as a new lead
// owned by user. Row failures are logged and counted.
func importFile(ctx context.Context, store *db.Store, path, user string, logger *slog.Logger) (ok, failed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	rows, err := importer.Parse(f.Name(), f)
	if err != nil {
		return 0, 0, err
	}

	for _, l := range importer.Normalize(rows, time.Now().UTC()) {
		l.UserID = user
		if _, err := store.InsertLead(ctx, l); err != nil {
			logger.Warn("Failed to import lead", "name", l.Name, "error", err)
			failed++
			continue
		}
		ok++
	}
	return ok, failed, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	_, logger, database, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	leads, err := db.NewStore(database, nil, logger).FetchLeads(cmd.Context())
	if err != nil {
		return err
	}

	if len(leads) == 0 {
		return export.ErrNothingToExport
	}
	if exportOut == "-" {
		return export.Write(os.Stdout, leads)
	}

	name := exportOut
	if name == "" {
		name = export.FileName(time.Now())
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.Write(f, leads); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d leads to %s\n", len(leads), name)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, logger, database, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	leads, err := db.NewStore(database, nil, logger).FetchLeads(cmd.Context())
	if err != nil {
		return err
	}

	st := kanban.NewState()
	st.ReplaceAll(leads)
	counts := st.Counts()

	fmt.Println("=== Pipeline ===")
	for _, s := range kanban.Statuses() {
		fmt.Printf("  %-12s %d\n", s.Label()+":", counts[s])
	}
	fmt.Printf("  %-12s %d\n", "Total:", st.Len())
	return nil
}
