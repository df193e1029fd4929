// Doorbell Bridge
//
// This is the main entry point for the MQTT doorbell bridge. It subscribes
// to the configured doorbell topics and turns every "1"/"true" payload into
// a ring event, delivered to the enabled sinks (log, metrics, MQTT
// republish, SQLite journal, InfluxDB, Redis, WebSocket).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/doorbell-bridge/internal/api"
	"github.com/nerrad567/doorbell-bridge/internal/bridges/doorbell"
	"github.com/nerrad567/doorbell-bridge/internal/events"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/config"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/database"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/redis"
	"github.com/nerrad567/doorbell-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear startup sequence
	log := logging.Default()
	log.Info("starting doorbell bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, cfg.Service.Name, version)
	log.Info("configuration loaded",
		"path", configPath,
		"doorbells", len(cfg.Doorbells),
		"level", cfg.Logging.Level,
	)

	var m *metrics.Metrics
	if cfg.Events.Metrics || cfg.API.Enabled {
		m = metrics.New()
	}

	health := make(map[string]api.HealthChecker)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	health["mqtt"] = mqttClient
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	fanout := events.NewFanout()
	fanout.SetOnError(func(sink string, err error) {
		if m != nil {
			m.SinkError(sink)
		}
	})

	if cfg.Events.Log {
		fanout.Add("log", events.NewLogSink(log))
	}
	if cfg.Events.Metrics && m != nil {
		fanout.Add("metrics", events.NewMetricsSink(m))
	}
	if cfg.Events.MQTT {
		// #nosec G115 -- QoS validated to 0..2 by config.Validate
		fanout.Add("mqtt", events.NewMQTTSink(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS)))
	}

	// Ring journal (optional)
	var journal *events.Journal
	if cfg.Events.Journal {
		db, dbErr := database.Open(ctx, cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		journal = events.NewJournal(db)
		fanout.Add("journal", journal)
		health["database"] = db
		log.Info("ring journal ready", "path", cfg.Database.Path)
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
			if m != nil {
				m.SinkError("influxdb")
			}
		})
		fanout.Add("influxdb", events.NewInfluxSink(influxClient))
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Connect to Redis (optional)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.Connect(ctx, cfg.Redis, cfg.GetLastRingTTL())
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		fanout.Add("redis", events.NewRedisSink(redisClient))
		health["redis"] = redisClient
		log.Info("Redis connected", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	// Live WebSocket stream rides on the API
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(log.With("component", "websocket"))
		fanout.Add("websocket", hub)
	}

	// Build the doorbell bridge
	opts := doorbell.Options{
		Broker: &brokerAdapter{client: mqttClient},
		Sink:   fanout,
		// #nosec G115 -- QoS validated to 0..2 by config.Validate
		QoS:              byte(cfg.MQTT.QoS),
		SubscribeTimeout: cfg.GetSubscribeTimeout(),
		Logger:           log.With("component", "doorbell"),
	}
	if m != nil {
		opts.Metrics = m
	}

	bridge, err := doorbell.Configure(cfg.Doorbells, opts)
	if bridge == nil {
		return fmt.Errorf("configuring doorbell bridge: %w", err)
	}
	if err != nil {
		log.Warn("some doorbell entries were rejected", "error", err)
	}

	// Retry doorbells that could not subscribe once the broker is back.
	// Routes that were already open are restored by the MQTT client itself.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		go startBridge(ctx, bridge, log)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	startBridge(ctx, bridge, log)
	defer func() {
		log.Info("stopping doorbell bridge")
		bridge.Stop()
	}()

	// Status API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			Logger:    log.With("component", "api"),
			Doorbells: bridge,
			Health:    health,
			Metrics:   m,
			Hub:       hub,
			Version:   version,
		}
		if journal != nil {
			deps.Journal = journal
		}
		if redisClient != nil {
			deps.LastRing = redisClient
		}

		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("doorbell bridge running",
		"doorbells", len(bridge.Subscriptions()),
		"subscribed", bridge.SubscribedCount(),
		"sinks", fanout.Names(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// startBridge subscribes every pending doorbell and logs failures.
// Failures are not fatal; they are retried on the next reconnect.
func startBridge(ctx context.Context, bridge *doorbell.Bridge, log *logging.Logger) {
	err := bridge.Start(ctx)
	if err == nil {
		return
	}
	for _, e := range flatten(err) {
		var subErr *doorbell.SubscribeError
		if errors.As(e, &subErr) && !errors.Is(subErr, doorbell.ErrStopped) {
			log.Error("doorbell subscription failed", "topic", subErr.Topic, "name", subErr.Name, "error", subErr.Err)
		}
	}
}

// flatten unpacks an errors.Join result.
func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// getConfigPath returns the configuration file path.
// Checks DOORBELL_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv("DOORBELL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
