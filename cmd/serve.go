package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/api"
	"github.com/joescharf/ghostvault/internal/daemon"
	"github.com/joescharf/ghostvault/internal/output"
)

const sessionPurgeInterval = time.Hour

var (
	serveStopTimeout time.Duration
	serveStopForce   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server in the foreground",
	Long: `Run the Ghost Vault HTTP API, including the live dashboard stream
and /metrics. Listens on server.host:server.port (default 127.0.0.1:8787).

Use 'ghost serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8787, "port to listen on")
	serveCmd.PersistentFlags().String("host", "127.0.0.1", "interface to listen on")
	_ = viper.BindPFlag("server.port", serveCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.PersistentFlags().Lookup("host"))

	serveStopCmd.Flags().DurationVar(&serveStopTimeout, "timeout", 15*time.Second, "How long to wait for a graceful stop")
	serveStopCmd.Flags().BoolVar(&serveStopForce, "force", false, "Kill the server if it does not stop in time")

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "ghost-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "ghost-serve.log")
}

func serveAddr() string {
	return net.JoinHostPort(viper.GetString("server.host"), strconv.Itoa(viper.GetInt("server.port")))
}

func serveRun(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, shutdownSignals()...)
	defer stop()

	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	log := a.logger.Named("server")

	addr := serveAddr()
	pf := pidFile()
	if err := pf.Acquire(addr); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	srv := api.NewServer(api.Deps{
		Auth:       a.auth,
		Vault:      a.vault,
		Interests:  a.interests,
		Notify:     a.notify,
		Hub:        a.hub,
		Logger:     a.logger.Named("http"),
		CORSOrigin: viper.GetString("server.cors_origin"),
	})
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go purgeSessions(ctx, a, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// Ends every open dashboard stream so Shutdown can drain.
	a.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// purgeSessions deletes expired sessions until ctx ends.
func purgeSessions(ctx context.Context, a *app, log *zap.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		n, err := a.auth.PurgeExpired(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("session purge failed", zap.Error(err))
		case n > 0:
			log.Info("purged expired sessions", zap.Int64("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveStartRun() error {
	pf := pidFile()
	if r, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d on %s)", r.PID, r.Addr)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	args := []string{"serve", "--host", viper.GetString("server.host"), "--port", strconv.Itoa(viper.GetInt("server.port"))}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would run %s %v (log: %s)", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(serveLogPath()), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	_ = child.Process.Release()

	// Give the child a moment to claim the PID file.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r, running := pf.IsRunning(); running {
			ui.Success("Server started (pid %d) at http://%s", r.PID, r.Addr)
			ui.Info("Logs: %s", serveLogPath())
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not start, see %s", serveLogPath())
}

func serveStatusRun() error {
	r, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server is %s", output.Yellow("not running"))
		return nil
	}
	ui.Success("Server is %s (pid %d)", output.Green("running"), r.PID)
	if r.Addr != "" {
		ui.Info("Address: http://%s", r.Addr)
	}
	if !r.Started.IsZero() {
		ui.Info("Started: %s", timeAgo(r.Started))
	}
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	r, running := pf.IsRunning()
	if !running {
		return fmt.Errorf("server is not running")
	}
	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", r.PID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), serveStopTimeout)
	defer cancel()
	if _, err := pf.Stop(ctx); err != nil {
		if !serveStopForce {
			return err
		}
		ui.Warning("Graceful stop timed out, killing pid %d", r.PID)
		if err := pf.Signal(sigKILL()); err != nil {
			return fmt.Errorf("kill pid %d: %w", r.PID, err)
		}
		_ = pf.Remove()
	}
	ui.Success("Server stopped (pid %d)", r.PID)
	return nil
}
