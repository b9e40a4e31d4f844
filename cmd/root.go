package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/tablehold/internal/config"
	"github.com/example/tablehold/internal/db"
	"github.com/example/tablehold/internal/migrate"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var envFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tablehold",
		Short:         "Restaurant table holds with deposits, confirmations and refunds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newRestaurantCmd())
	root.AddCommand(newReservationsCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(envFile)
}

// openDB connects and migrates. Commands that only make sense against the
// durable store call it.
func openDB(ctx context.Context, cfg config.Config) (*db.DB, error) {
	if !cfg.Persistent() {
		return nil, errors.New("DATABASE_URL is required for this command")
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}
