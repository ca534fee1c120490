// Command server is taskstation's entry point: a cobra CLI exposing a
// `serve` subcommand (the HTTP/1.0 listener, executor pools and
// Prometheus side-channel) and a `status` subcommand (a thin client that
// queries a running instance's /status endpoint).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskstation/internal/config"
	"taskstation/internal/jobmanager"
	"taskstation/internal/logging"
	"taskstation/internal/metrics"
	"taskstation/internal/persistence"
	"taskstation/internal/router"
	"taskstation/internal/server"
	"taskstation/internal/tasks"
	"taskstation/internal/workerpool"
)

var (
	flagConfigFile string
	flagLogLevel   string
	flagDataDir    string
	flagStatusAddr string
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "server",
		Short: "taskstation: a priority job queue and CPU/IO task runner over HTTP/1.0",
	}
	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "optional YAML config file overlay")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override LOG_LEVEL")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override DATA_DIR")

	root.AddCommand(buildServeCmd())
	root.AddCommand(buildStatusCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the listener, executor pools, and metrics side-channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	tasks.SetDataDir(cfg.DataDir)
	tasks.SetDefaultPrimeMethod(cfg.PrimeMethod)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	persistLog, err := persistence.Open(cfg.JobPersistPath)
	if err != nil {
		return fmt.Errorf("open persistence log: %w", err)
	}

	metricsReg := metrics.New()

	onPersistError := func(err error) {
		logger.Warn("job persistence failed", zap.Error(err))
	}

	mgr, err := jobmanager.New(jobmanager.Config{
		QueueMax:     cfg.JobQueueMax,
		CPUTimeout:   cfg.CPUTimeout(),
		IOTimeout:    cfg.IOTimeout(),
		CPUWorkers:   cfg.CPUWorkers,
		IOWorkers:    cfg.IOWorkers,
		JobRetention: cfg.JobRetention(),
	}, metricsReg, persistLog, onPersistError)
	if err != nil {
		return fmt.Errorf("start job manager: %w", err)
	}
	defer mgr.Close()

	poolReg := workerpool.NewRegistry()
	poolReg.Register("cpu", mgr.CPUPool())
	poolReg.Register("io", mgr.IOPool())

	rt := router.New(mgr, poolReg)
	defer rt.Close()

	srv := server.New(cfg.HTTPAddr, rt, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	metrics.StartServer(gctx, cfg.MetricsAddr, metricsReg)

	logger.Info("taskstation started",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info("taskstation stopped")
	return nil
}

func buildStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "query a running instance's /status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
	cmd.Flags().StringVar(&flagStatusAddr, "addr", "127.0.0.1:8080", "host:port of a running instance")
	return cmd
}

func runStatus() error {
	conn, err := net.DialTimeout("tcp", flagStatusAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", flagStatusAddr, err)
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, "GET /status HTTP/1.0\r\n\r\n"); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}
