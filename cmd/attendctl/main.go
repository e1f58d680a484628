package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/enrollment"
	"faceattend/internal/faceclient"
	"faceattend/internal/store"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Administer the face attendance store",
	Long: `attendctl inspects and maintains enrolled users and attendance records
directly in the configured store (STORE_BACKEND, SQLITE_PATH, DATABASE_URL).`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

// app is the set of services a command works with.
type app struct {
	cfg    config.App
	repos  *store.Repositories
	users  *enrollment.Service
	ledger *attendance.Ledger
	face   *faceclient.Client
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StoreBackend == config.StoreMemory {
		return nil, fmt.Errorf("STORE_BACKEND=memory has nothing to administer")
	}
	dsn := cfg.SQLitePath
	if cfg.StoreBackend == config.StorePostgres {
		dsn = cfg.DatabaseURL
	}
	repos, err := store.Open(ctx, cfg.StoreBackend, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		repos.Close()
		return nil, err
	}
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	return &app{
		cfg:    cfg,
		repos:  repos,
		users:  enrollment.NewService(repos.Users, face, cfg.MaxFrameDim),
		ledger: attendance.NewLedger(repos.Attendance, loc),
		face:   face,
	}, nil
}

func (a *app) Close() error {
	return a.repos.Close()
}
