package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/cruciverba/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/cruciverba/internal/config"
)

const programName = "cruciverba"

var globalFlags = struct {
	debug   bool
	envFile string
}{}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Cancelled on SIGINT or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Crossword word and clue collection site",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogger()
		},
		// Without a subcommand the site is served.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.envFile, "env-file", ".env", "dotenv file read before the environment")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(exportCommand())
	rootCmd.AddCommand(migrateCommand())

	return rootCmd
}

func setupLogger() {
	level := slog.LevelInfo
	if globalFlags.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: globalFlags.debug,
		Level:     level,
	})))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFiles(globalFlags.envFile)
	if err != nil {
		return nil, err
	}
	if cfg.GeneratedSecret {
		slog.Warn("CRUCIVERBA_SECRET_KEY not set, using a random key: sessions will not survive a restart")
	}
	return cfg, nil
}

// openDatabase opens the store and brings its schema up to date.
func openDatabase(ctx context.Context, cfg *config.Config) (*sqliteadapter.DB, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", db.Path())

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete", "version", version)

	return db, nil
}

func closeDatabase(db *sqliteadapter.DB) {
	if err := db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
