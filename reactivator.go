package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/maxpert/reactivator/api"
	"github.com/maxpert/reactivator/cdc"
	"github.com/maxpert/reactivator/cfg"
	"github.com/maxpert/reactivator/hlc"
	"github.com/maxpert/reactivator/publisher"
	"github.com/maxpert/reactivator/source"
	"github.com/maxpert/reactivator/state"
	"github.com/maxpert/reactivator/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/maxpert/reactivator/publisher/sink"
	_ "github.com/maxpert/reactivator/source/bigquery"
	_ "github.com/maxpert/reactivator/source/kusto"
	_ "github.com/maxpert/reactivator/source/sqldb"
)

const shutdownTimeout = 15 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "reactivator",
		Short:         "Polls a queryable source and publishes its changes as CDC events",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve /acquire and poll for changes",
		RunE:  runServe,
	})
	root.AddCommand(cursorCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Reactivator exited")
		os.Exit(1)
	}
}

// setup loads and validates configuration then installs the global logger
func setup() error {
	if err := cfg.Load(configPath); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	if cfg.Config.Logging.File != "" {
		writer = zerolog.MultiLevelWriter(writer, &lumberjack.Logger{
			Filename:   cfg.Config.Logging.File,
			MaxSize:    cfg.Config.Logging.MaxSizeMB,
			MaxBackups: cfg.Config.Logging.MaxBackups,
			MaxAge:     cfg.Config.Logging.MaxAgeDays,
		})
	}

	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("source_id", cfg.Config.SourceID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	return nil
}

// openSource builds the configured engine behind the row executor
func openSource() (*source.Executor, error) {
	engine, err := source.NewEngine(&cfg.Config.Source)
	if err != nil {
		return nil, err
	}

	exec, err := source.NewExecutor(engine, &cfg.Config.Source)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return exec, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := setup(); err != nil {
		return err
	}

	log.Info().
		Str("engine", cfg.Config.Source.Engine).
		Str("table", cfg.Config.Source.Table).
		Str("instance_id", cfg.Config.InstanceID).
		Msg("Starting reactivator")
	telemetry.InitializeTelemetry()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	closeAll := func() error {
		var result *multierror.Error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}

	exec, err := openSource()
	if err != nil {
		return err
	}
	closers = append(closers, exec)

	store, err := state.Open(ctx, &cfg.Config.State)
	if err != nil {
		return multierror.Append(err, closeAll()).ErrorOrNil()
	}
	closers = append(closers, store)

	sink, err := publisher.NewSink(&cfg.Config.PubSub)
	if err != nil {
		return multierror.Append(err, closeAll()).ErrorOrNil()
	}
	pub := publisher.New(sink, time.Duration(cfg.Config.PubSub.PublishTimeoutMS)*time.Millisecond)
	closers = append(closers, pub)

	cursors := cdc.NewCursorManager(store, cfg.Config.State.Key, exec)
	encoder := cdc.NewEncoder(cfg.Config.SourceID, cfg.Config.Source.Table, exec.IdentityField(), hlc.NewClock())

	sched, err := cdc.NewScheduler(cdc.SchedulerConfig{
		Source:    exec,
		Cursors:   cursors,
		Encoder:   encoder,
		Publisher: pub,
		Topic:     cfg.Config.Topic(),
		Interval:  time.Duration(cfg.Config.Polling.IntervalMS) * time.Millisecond,
	})
	if err != nil {
		return multierror.Append(err, closeAll()).ErrorOrNil()
	}

	// Polling outlives the /acquire request that starts it
	bootstrapper := cdc.NewBootstrapper(exec, exec.IdentityField(), cfg.Config.Source.IDPrefix, func() {
		sched.Start(ctx)
	})

	if cfg.Config.Polling.AutoStart {
		stored, err := store.Get(ctx, cfg.Config.State.Key)
		if err != nil {
			log.Warn().Err(err).Msg("Unable to read stored cursor, waiting for /acquire")
		} else if stored != "" {
			log.Info().Str("cursor", stored).Msg("Stored cursor found, resuming polling")
			sched.Start(ctx)
		}
	}

	var metrics http.Handler
	if cfg.Config.Prometheus.Enabled {
		metrics = telemetry.GetMetricsHandler()
	}
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Config.HTTP.BindAddress, cfg.Config.HTTP.Port),
		Handler:           api.NewRouter(api.NewHandlers(bootstrapper, sched, cursors), metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("address", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if cerr := closeAll(); cerr != nil {
		err = multierror.Append(err, cerr).ErrorOrNil()
	}
	if err != nil {
		return err
	}

	log.Info().Msg("Reactivator stopped")
	return nil
}
