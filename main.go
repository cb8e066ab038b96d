package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/mostlygeek/microevent/config"
	"github.com/mostlygeek/microevent/event"
	"github.com/mostlygeek/microevent/logmon"
	"github.com/mostlygeek/microevent/server"
	"github.com/mostlygeek/microevent/tracing"
)

var version string = "0"
var commit string = "abcd1234"
var date = "unknown"

func main() {
	configPath := flag.String("config", "", "config file name")
	listenStr := flag.String("listen", ":8080", "listen ip/port")
	showVersion := flag.Bool("version", false, "show version of build")

	flag.Parse() // Parse the command-line flags

	if *showVersion {
		fmt.Printf("version: %s (%s), built at %s\n", version, commit, date)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Printf("Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	tp, err := tracing.New(context.Background(), cfg.Tracing)
	if err != nil {
		logger.Errorf("tracing: %v", err)
		os.Exit(1)
	}

	app := fx.New(
		fxLogger(logger),
		fx.Supply(cfg, logger),
		event.Module(hubOptions(cfg, logger, tp)...),
		fx.Provide(func(hub *event.Hub, logger *logmon.LogMonitor, cfg config.Config) *server.Server {
			return server.New(hub, logger, cfg.SSEBuffer)
		}),
		fx.Invoke(func(lc fx.Lifecycle, loop *event.Loop, srv *server.Server) {
			loop.SetLogger(logger)
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						if err := srv.Run(*listenStr); err != nil {
							logger.Errorf("server error: %v", err)
							os.Exit(1)
						}
					}()
					srv.RunHooks(cfg.Hooks)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					logger.Info("Shutting down microevent")
					if err := srv.Shutdown(ctx); err != nil {
						return err
					}
					return tp.Shutdown(ctx)
				},
			})
		}),
	)

	// blocks until SIGINT or SIGTERM
	app.Run()
}

func newLogger(cfg config.Config) (*logmon.LogMonitor, error) {
	level, err := logmon.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logmon.NewLogMonitor()
	logger.SetLogLevel(level)
	logger.SetLogTimeFormat(cfg.LogTimeFormat)
	return logger, nil
}

func hubOptions(cfg config.Config, logger *logmon.LogMonitor, tp *tracing.Provider) []event.Option {
	opts := []event.Option{event.WithLogger(logger)}
	if cfg.Scheduler == config.SchedulerClosure {
		opts = append(opts, event.WithClosureScheduling())
	}
	if tp.Enabled() {
		opts = append(opts, event.WithTracerProvider(tp))
	}
	return opts
}

// fx lifecycle logs only show up at debug level
func fxLogger(logger *logmon.LogMonitor) fx.Option {
	if logger.Level() > logmon.LevelDebug {
		return fx.NopLogger
	}
	return fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ConsoleLogger{W: logger}
	})
}
