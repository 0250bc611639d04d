package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tasknest/backend/internal/app"
	"github.com/tasknest/backend/internal/config"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "marketctl",
	Short: "TaskNest operator CLI",
	Long: `marketctl runs operator tasks against the TaskNest database: schema
migrations, platform statistics, withdrawal approval, manual payment
reconciliation and token minting for testing.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.LoadDotenv()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("database-url", "", "postgres connection string")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))
	_ = v.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(withdrawalsCmd())
	rootCmd.AddCommand(settleCmd())
	rootCmd.AddCommand(tokenCmd())
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, v.GetString("config"))
}

func withPool(ctx context.Context, fn func(context.Context, *config.Config, *pgxpool.Pool) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("--database-url or TASKNEST_DATABASE_URL is required")
	}
	pool, err := app.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

// withApp wires an insert-only application so engine operations enqueue
// notifications for the API server's workers.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	return withPool(ctx, func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		a, err := app.New(cfg, pool, slog.Default(), app.Options{})
		if err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func printJSON(x any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(x)
}
