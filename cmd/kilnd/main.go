// Command kilnd is the firing-control daemon. It owns the serial link to the
// controller, runs the control loop and records every firing.
package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"kiln_control/internal/config"
	"kiln_control/internal/device"
	"kiln_control/internal/ipc"
	"kiln_control/internal/logger"
	"kiln_control/internal/metrics"
	"kiln_control/internal/repository"
	"kiln_control/internal/repository/db"
	"kiln_control/internal/server"
	"kiln_control/internal/service"
)

const shutdownTimeout = 5 * time.Second

func main() {
	code := 0
	run(&code)
	os.Exit(code)
}

// run keeps the deferred cleanup (status block, socket, db) ahead of os.Exit.
func run(exitCode *int) {
	v := viper.GetViper()
	cfg, err := config.Load(v)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	// open DB
	conn, err := db.InitDB(cfg.DBPath, cfg.DBBusyTimeout)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DBPath)
	}
	defer closeDB(conn, log)
	repos := repository.NewRepository(conn)

	settings := loadSettings(repos, log)
	if err := cfg.ApplySettings(settings); err != nil {
		log.Warnw("bad_settings", "err", err)
	}

	port, err := device.OpenPort(device.PortConfig{Device: cfg.SerialDevice, BaudRate: cfg.SerialBaud})
	if err != nil {
		log.Fatalw("serial port unavailable", "err", err)
	}

	intake, err := openIntake(cfg.SocketPath)
	if err != nil {
		log.Fatalw("failed to open control socket", "err", err)
	}
	defer func() { _ = intake.Close() }()

	block, err := ipc.CreateStatusBlock(cfg.StatusPath)
	if err != nil {
		log.Fatalw("failed to create status block", "err", err)
	}
	defer func() { _ = block.Close() }()

	// wire the daemon
	m := metrics.New(prometheus.NewRegistry())
	channel := device.NewChannel(port, log.Named("channel"),
		device.WithObserver(m),
		device.WithResendAfter(cfg.ResendAfter),
	)
	rec := service.NewRecorderService(repos, log.Named("recorder"), m)
	rec.SetIntervals(cfg.FiringLogInterval, cfg.IdleLogInterval)
	engine := service.NewEngine(channel, rec, log.Named("engine"), cfg.PVMargin, service.WithEngineObserver(m))

	lines := make(chan string, 8)
	loop := service.NewLoop(service.LoopConfig{
		Engine:   engine,
		Channel:  channel,
		Recorder: rec,
		Intake:   intake,
		Status:   service.PublishTo(block, m),
		Lines:    lines,
		Log:      log.Named("loop"),
		Observer: m,
		Tick:     cfg.Tick,
	})

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	watchConfig(ctx, v, settings, loop, engine, rec, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := device.ReadLines(gctx, port, lines)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		// QUIT ends Run without an error; cancel so the other goroutines
		// follow, and before the port closes under the reader.
		defer closePort(port, log)
		defer cancel()
		return loop.Run(gctx)
	})
	runMetricsServer(g, gctx, cfg.MetricsPort, m, log)

	log.Infow("kilnd_started",
		"device", cfg.SerialDevice, "socket", cfg.SocketPath, "status", cfg.StatusPath, "metrics_port", cfg.MetricsPort)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("kilnd_stopped", "err", err)
		*exitCode = 1
		return
	}
	log.Infow("kilnd_stopped")
}

// loadSettings reads the Settings table; a failure leaves the file config in effect.
func loadSettings(repos *repository.Repository, log *logger.Logger) map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	settings, err := repos.Settings.All(ctx)
	if err != nil {
		log.Warnw("settings_unavailable", "err", err)
		return nil
	}
	return settings
}

func openIntake(path string) (*ipc.Intake, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return ipc.Listen(path)
}

// watchConfig applies margin and log interval edits without a restart.
// The change is handed to the loop so engine and recorder stay single-threaded.
func watchConfig(ctx context.Context, v *viper.Viper, settings map[string]string,
	loop *service.Loop, engine *service.Engine, rec *service.RecorderService, log *logger.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}
	config.Watch(v, func(next config.Config) {
		if err := next.ApplySettings(settings); err != nil {
			log.Warnw("bad_settings", "err", err)
		}
		err := loop.Submit(ctx, func(context.Context) {
			engine.SetMargin(next.PVMargin)
			rec.SetIntervals(next.FiringLogInterval, next.IdleLogInterval)
			log.Infow("config_reloaded", "pv_margin", next.PVMargin,
				"firing_log_interval", next.FiringLogInterval, "idle_log_interval", next.IdleLogInterval)
		})
		if err != nil {
			log.Warnw("config_reload_dropped", "err", err)
		}
	})
}

// runMetricsServer serves /metrics until ctx is done.
func runMetricsServer(g *errgroup.Group, ctx context.Context, port string, m *metrics.Metrics, log *logger.Logger) {
	if port == "" {
		return
	}
	srv := &server.Server{}
	g.Go(func() error {
		// metrics are not worth stopping the kiln for
		if err := srv.Run(port, m.Handler()); err != nil {
			log.Errorw("metrics_server_failed", "err", err, "port", port)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("metrics_shutdown_failed", "err", err)
		}
		return nil
	})
}

func closePort(port io.Closer, log *logger.Logger) {
	if err := port.Close(); err != nil {
		log.Warnw("serial_close_failed", "err", err)
	}
}

func closeDB(conn *sql.DB, log *logger.Logger) {
	if err := conn.Close(); err != nil {
		log.Warnw("failed to close sqlite", "err", err)
	}
}
