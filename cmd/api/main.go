package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/berfenger/exportlimit/internal/adapter/bus"
	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/actor"
	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/port"
	"github.com/berfenger/exportlimit/internal/core/service"
	"github.com/berfenger/exportlimit/internal/server"
	"github.com/berfenger/exportlimit/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()
	logger.Info("starting exportlimit", zap.String("version", versioninfo.Short()))

	// bus transport
	busCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()
	gxBus, closeBus, err := openBus(busCtx, cfg, logger)
	if err != nil {
		logger.Error("could not open bus", zap.String("transport", cfg.Bus.Transport), zap.Error(err))
		os.Exit(1)
	}
	defer closeBus()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	loop := service.NewLoop(service.NewController(gxBus, *cfg, logger))
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewControlActor(*cfg, loop, logger)
	}, pactor.WithSupervisor(pactor.NewOneForOneStrategy(10, time.Minute, pactor.DefaultDecider)))
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_CONTROL)
	if err != nil {
		logger.Error("could not spawn control actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func openBus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.Bus, func(), error) {
	switch cfg.Bus.Transport {
	case config.TRANSPORT_MQTT:
		b := bus.NewMQTTBus(cfg.Bus.MQTT, logger)
		if err := b.Connect(); err != nil {
			return nil, nil, err
		}
		b.KeepAliveUntil(ctx, bus.MQTT_KEEPALIVE_INTERVAL)
		return b, b.Close, nil
	default:
		b, err := bus.NewModbusBus(cfg.Bus.Modbus, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := b.Open(); err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => EXPORTLIMIT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("EXPORTLIMIT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("exportlimit")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	// list defaults (devices, write targets, register map) come from the struct
	cfg := config.Default()

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults() {
	def := config.Default()
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", def.Port)
	viper.SetDefault("http_log", false)
	viper.SetDefault("control.interval_millis", def.Control.IntervalMillis)
	viper.SetDefault("control.iteration_timeout_millis", def.Control.IterationTimeoutMillis)
	viper.SetDefault("health.max_consecutive_failures", def.Health.MaxConsecutiveFailures)
	viper.SetDefault("limit.max_export_w", def.Limit.MaxExportW)
	viper.SetDefault("limit.phase_count", def.Limit.PhaseCount)
	viper.SetDefault("limit.min_output_w", def.Limit.MinOutputW)
	viper.SetDefault("limit.max_step_w", def.Limit.MaxStepW)
	viper.SetDefault("limit.gradual_adjustment", def.Limit.GradualAdjustment)
	viper.SetDefault("limit.reserve_margin_w", def.Limit.ReserveMarginW)
	viper.SetDefault("actuation.min_phases", 0)
	viper.SetDefault("actuation.explicit_release", def.Actuation.ExplicitRelease)
	viper.SetDefault("actuation.release_value", def.Actuation.ReleaseValue)
	viper.SetDefault("actuation.mode.required", def.Actuation.Mode.Required)
	viper.SetDefault("bus.transport", def.Bus.Transport)
	viper.SetDefault("bus.modbus.host", def.Bus.Modbus.Host)
	viper.SetDefault("bus.modbus.port", def.Bus.Modbus.Port)
	viper.SetDefault("bus.modbus.timeout_millis", def.Bus.Modbus.TimeoutMillis)
	viper.SetDefault("bus.mqtt.host", def.Bus.MQTT.Host)
	viper.SetDefault("bus.mqtt.port", def.Bus.MQTT.Port)
	viper.SetDefault("bus.mqtt.username", "")
	viper.SetDefault("bus.mqtt.password", "")
	viper.SetDefault("bus.mqtt.portal_id", "")
	viper.SetDefault("bus.mqtt.stale_after_millis", def.Bus.MQTT.StaleAfterMillis)
}

func safePrintConfig(cfg config.Config) {
	slog.Info("Using", "config", config.SafeCopy(cfg))
}
