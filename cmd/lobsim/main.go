// Command lobsim runs the matching engine, market simulator, step
// driver, and control/websocket servers as one process: a signal-driven
// context, one goroutine per server, blocking on ctx.Done() for shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/clock"
	"github.com/wessimpson/lobsim/internal/config"
	"github.com/wessimpson/lobsim/internal/control"
	"github.com/wessimpson/lobsim/internal/datasource"
	"github.com/wessimpson/lobsim/internal/driver"
	"github.com/wessimpson/lobsim/internal/sim"
	"github.com/wessimpson/lobsim/internal/transport"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("config: failed to parse flags")
	}
	configureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	engine := book.New()
	startTS := time.Now().UnixNano()

	opts := []sim.Option{}
	var src datasource.Source
	if cfg.DataSourcePath != "" {
		src, err = openDataSource(cfg)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DataSourcePath).Msg("datasource: failed to open")
		}
		opts = append(opts, sim.WithDataSource(src))
	}

	simulator := sim.New(engine, cfg.Seed, startTS, opts...)

	publisher := transport.NewChannelPublisher(100)
	hub := transport.NewWebSocketHub()
	wsSub := publisher.Subscribe()
	go hub.Run(wsSub)

	drv := driver.New(simulator, cfg.StepInterval, cfg.DepthLevels, publisher, 5)
	ctrl := control.New(cfg.Address, cfg.ControlPort, drv)

	httpServer := &http.Server{
		Addr:    addrOf(cfg.Address, cfg.WebSocketPort),
		Handler: hub,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("websocket: http server exited")
		}
	}()

	go func() {
		if err := ctrl.Run(ctx); err != nil {
			log.Error().Err(err).Msg("control: server exited")
		}
	}()

	go trackConnections(ctx, drv, ctrl)

	log.Info().
		Int("control_port", cfg.ControlPort).
		Int("ws_port", cfg.WebSocketPort).
		Dur("step_interval", cfg.StepInterval).
		Msg("lobsim: running")

	if err := drv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("driver: step loop exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	ctrl.Shutdown()
	publisher.Close()
}

func configureLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func openDataSource(cfg config.Config) (datasource.Source, error) {
	var realClock clock.Real
	switch cfg.DataSourceFormat {
	case "csv":
		return datasource.NewCSVSource(cfg.DataSourcePath, realClock)
	case "jsonl":
		return datasource.NewJSONLSource(cfg.DataSourcePath, realClock)
	default:
		return datasource.NewBinarySource(cfg.DataSourcePath, realClock)
	}
}

func addrOf(address string, port int) string {
	return fmt.Sprintf("%s:%d", address, port)
}

// trackConnections periodically feeds the control server's connection
// count into the driver's health computation, since the
// OVERLOADED threshold is keyed on active_connections.
func trackConnections(ctx context.Context, drv *driver.Driver, ctrl *control.Server) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drv.SetActiveConnections(ctrl.ActiveConnections())
		}
	}
}
