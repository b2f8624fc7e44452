// Command kilnweb serves the kiln query API and forwards commands to kilnd.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kiln_control/internal/config"
	"kiln_control/internal/handlers"
	"kiln_control/internal/logger"
	"kiln_control/internal/repository"
	"kiln_control/internal/repository/db"
	"kiln_control/internal/server"
	"kiln_control/internal/service"

	"github.com/spf13/viper"
)

const defaultPort = "8080"

func main() {
	// load config.yml
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.LogLevel)

	// open DB
	conn, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to open sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	services := service.NewService(repos, cfg.StatusPath, cfg.SocketPath)
	apiHandler := handlers.NewHandler(services, log)
	apiHandler.SetCommandRate(cfg.CommandRPS, cfg.CommandBurst)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.HTTPPort, apiHandler, log)

	// graceful shutdown
	waitForShutdown(srv, log)
}

// openDB opens the daemon's database; kilnd owns the schema.
func openDB(cfg config.Config, log *logger.Logger) (*sql.DB, error) {
	if _, err := os.Stat(cfg.DBPath); err != nil {
		log.Warnw("database not found; has kilnd run yet?", "path", cfg.DBPath)
	}
	return db.Open(cfg.DBPath, cfg.DBBusyTimeout)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = defaultPort
		}
		log.Infow("kilnweb_listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
