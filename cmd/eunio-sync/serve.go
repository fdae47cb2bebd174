package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sestako/eunio-app-sub009/remote"
	"github.com/sestako/eunio-app-sub009/store/db"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the self-hosted sync backend",
	Long: `serve exposes the remote document store over HTTP: the endpoint
devices push their preference documents to and pull them from. Set
EUNIO_REMOTE_TOKEN to require bearer authentication.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	logger := newLogger(p)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := db.NewDBDriver(p)
	if err != nil {
		return err
	}
	defer driver.Close()
	if err := driver.Migrate(ctx); err != nil {
		return err
	}

	server := remote.NewServer(driver, p.RemoteToken, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf("%s:%d", p.Addr, p.Port))
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
