package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sestako/eunio-app-sub009/backup"
	"github.com/sestako/eunio-app-sub009/internal/observability"
	"github.com/sestako/eunio-app-sub009/remote"
	"github.com/sestako/eunio-app-sub009/syncer"
)

var agentUserID string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the background sync agent for one user",
	Long: `agent keeps the local preference document converged with the remote
store: it pulls on startup and on a periodic schedule, pushes pending local
writes, and prunes old automatic backups. Without EUNIO_REMOTE_URL it runs
offline and only maintains backups.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentUserID, "user", "", "user ID to sync (required)")
	_ = agentCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, _ []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	logger := newLogger(p)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, err := openStore(ctx, p, logger)
	if err != nil {
		return err
	}
	defer docs.Close()

	var remoteStore remote.Store
	if p.RemoteBaseURL != "" {
		remoteStore = remote.NewHTTPStore(p.RemoteBaseURL, p.RemoteToken)
	}

	manager := backup.NewManager(docs, remoteStore, p, logger)
	defer manager.Close()
	docs.SetSnapshotter(manager)

	var coordinator *syncer.Coordinator
	if remoteStore != nil {
		monitor := syncer.NewMonitor(true)
		coordinator = syncer.New(docs, remoteStore, monitor, logger, syncer.DefaultOptions())
		defer coordinator.Close()
		docs.SetPushScheduler(coordinator)

		go func() {
			for event := range coordinator.Events() {
				logger.Info("sync event",
					slog.String("kind", string(event.Kind)),
					slog.String(observability.LogFieldUserID, event.UserID),
					slog.Int(observability.LogFieldAttempt, event.Attempt))
			}
		}()
	}

	scheduler := cron.New()
	if coordinator != nil {
		if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", p.PullInterval), func() {
			if err := coordinator.Pull(ctx, agentUserID, "periodic"); err != nil {
				logger.Warn("periodic pull failed", slog.String("error", err.Error()))
			}
		}); err != nil {
			return err
		}
	}
	if _, err := scheduler.AddFunc("@every 24h", func() {
		if _, err := manager.Cleanup(ctx, agentUserID); err != nil {
			logger.Warn("backup prune failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Resolve the document up front so the agent serves defaults even
		// before the first pull.
		if _, err := docs.GetPreferenceDocument(gctx, agentUserID); err != nil {
			return err
		}
		if coordinator == nil {
			return nil
		}
		if err := coordinator.Pull(gctx, agentUserID, "startup"); err != nil {
			logger.Warn("startup pull failed", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	logger.Info("agent started",
		slog.String(observability.LogFieldUserID, agentUserID),
		slog.String("mode", p.Mode),
		slog.Bool("remote", remoteStore != nil))
	return g.Wait()
}
