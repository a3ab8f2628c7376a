package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/tvbridge/internal/adb"
	"github.com/HerbHall/tvbridge/internal/config"
	"github.com/HerbHall/tvbridge/internal/devices"
	"github.com/HerbHall/tvbridge/internal/event"
	"github.com/HerbHall/tvbridge/internal/history"
	"github.com/HerbHall/tvbridge/internal/metrics"
	"github.com/HerbHall/tvbridge/internal/mqttbridge"
	"github.com/HerbHall/tvbridge/internal/registry"
	"github.com/HerbHall/tvbridge/internal/server"
	"github.com/HerbHall/tvbridge/internal/store"
	"github.com/HerbHall/tvbridge/internal/version"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	debug := fs.Bool("debug", false, "development logging")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("tvbridge starting", zap.String("version", version.Short()))
	if err := serve(cfg, logger); err != nil {
		logger.Fatal("tvbridge stopped", zap.Error(err))
	}
	logger.Info("tvbridge stopped")
}

func serve(cfg *config.ViperConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(cfg.GetString("database.path"))
	if err != nil {
		return err
	}
	defer db.Close()

	bus := event.NewBus(logger.Named("bus"))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewRecorder(promReg)

	transport := adb.NewCLITransport(cfg.GetString("adb.path"), logger.Named("adb"))
	devs := devices.New(transport, rec)

	reg := registry.New(logger.Named("registry"))
	for _, p := range []plugin.Plugin{
		devs,
		history.New(),
		mqttbridge.New(mqttbridge.FromModule(devs), nil),
	} {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("validate modules: %w", err)
	}
	err = reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config: cfg.Sub("modules." + name),
			Logger: logger.Named(name),
			Store:  db,
			Bus:    bus,
		}
	})
	if err != nil {
		return fmt.Errorf("init modules: %w", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		return fmt.Errorf("start modules: %w", err)
	}

	addr := net.JoinHostPort(cfg.GetString("server.host"), cfg.GetString("server.port"))
	srv := server.New(addr, reg, promReg, logger.Named("http"))

	timeout := cfg.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", timeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		reg.StopAll(shutdownCtx)
		return err
	})

	logger.Info("tvbridge ready", zap.String("addr", addr))
	return g.Wait()
}
