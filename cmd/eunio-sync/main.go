package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sestako/eunio-app-sub009/internal/observability"
	"github.com/sestako/eunio-app-sub009/internal/profile"
	"github.com/sestako/eunio-app-sub009/store"
	"github.com/sestako/eunio-app-sub009/store/db"
)

var version = "0.9.0"

var rootCmd = &cobra.Command{
	Use:   "eunio-sync",
	Short: "Eunio preference sync engine",
	Long: `eunio-sync runs the offline-first preference engine: local settings
storage, background sync against the remote store, automatic backups and
manual export/import.`,
	SilenceUsage: true,
}

func init() {
	viper.SetEnvPrefix("eunio")
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("mode", "dev", "mode of the engine: dev or prod")
	rootCmd.PersistentFlags().String("data", ".", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "local database driver: sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")
	_ = viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data"))
	_ = viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
}

// loadProfile merges flags over EUNIO_* environment variables.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{Version: version}
	p.FromEnv()
	if v := viper.GetString("mode"); v != "" {
		p.Mode = v
	}
	if v := viper.GetString("data"); v != "" {
		p.Data = v
	}
	if v := viper.GetString("driver"); v != "" {
		p.Driver = v
	}
	if v := viper.GetString("dsn"); v != "" {
		p.DSN = v
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// openStore builds the persistence stack shared by every subcommand.
func openStore(ctx context.Context, p *profile.Profile, logger *slog.Logger) (*store.Store, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	if err := driver.Migrate(ctx); err != nil {
		driver.Close()
		return nil, err
	}
	return store.New(driver, p, logger), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(p *profile.Profile) *slog.Logger {
	return observability.NewLogger(p.IsDev())
}
