package app

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/shandysiswandi/otpguard/internal/pkg/clock"
	"github.com/shandysiswandi/otpguard/internal/pkg/config"
	"github.com/shandysiswandi/otpguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/messaging"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
	"github.com/shandysiswandi/otpguard/internal/pkg/validator"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/cache"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/db"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/memory"
)

const (
	replayDriverNone     = "none"
	replayDriverMemory   = "memory"
	replayDriverRedis    = "redis"
	replayDriverPostgres = "postgres"
)

func (a *App) initConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}

	cfg, err := config.NewViper(path)
	if err != nil {
		slog.Error("failed to init config", "path", path, "error", err)
		os.Exit(1)
	}

	if tz := cfg.GetString("app.tz"); tz != "" {
		//nolint:errcheck,gosec // ignore error
		os.Setenv("TZ", tz)
	}

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(a.ctx, &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
		LogLevel:         a.config.GetString("instrument.log_level"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.engine = otp.NewTOTP()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.max_goroutine"))

	validator, err := validator.NewV10Validator()
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator

	keys, err := mfa.ParseKeySpec(a.config.GetString("mfa.keyring.keys"))
	if err != nil {
		slog.Error("failed to parse mfa key ring", "error", err)
		os.Exit(1)
	}

	ring, err := mfa.NewKeyRing(keys, a.config.GetString("mfa.keyring.current"))
	for _, k := range keys {
		mfa.Wipe(k)
	}
	if err != nil {
		slog.Error("failed to init mfa key ring", "error", err)
		os.Exit(1)
	}

	codec, err := mfa.NewCodec(ring)
	if err != nil {
		slog.Error("failed to init mfa codec", "error", err)
		os.Exit(1)
	}
	a.codec = codec

	slog.Debug("mfa key ring loaded", "kids", ring.IDs(), "current", ring.Current())
}

// ping retries fn with Fibonacci backoff so the process tolerates a store or
// broker that comes up a moment after it does.
func (a *App) ping(name string, fn func(ctx context.Context) error) error {
	timeout := a.config.GetSecond("app.startup_timeout_seconds")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(a.ctx, timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			slog.WarnContext(ctx, "dependency not ready", "name", name, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (a *App) initReplayStore() {
	driver := strings.TrimSpace(a.config.GetString("replay.driver"))

	switch driver {
	case "", replayDriverNone:
		// The usecase logs that replay protection is disabled.
	case replayDriverMemory:
		a.store = memory.NewStore()
	case replayDriverRedis:
		a.initCache()
		a.store = cache.NewCache(a.cacheConn, a.ins, a.config.GetSecond("redis.ttl_seconds"))
	case replayDriverPostgres:
		a.initDatabase()
		if a.config.GetBool("database.migrate") {
			if err := db.Migrate(a.ctx, a.dbConn); err != nil {
				slog.Error("failed to migrate DB", "error", err)
				os.Exit(1)
			}
		}
		a.store = db.NewDB(a.dbConn, a.ins)
	default:
		slog.Error("failed to init replay store", "driver", driver, "error", "unknown driver")
		os.Exit(1)
	}
}

func (a *App) initDatabase() {
	config, err := pgxpool.ParseConfig(a.config.GetString("database.url"))
	if err != nil {
		slog.Error("failed to parse DB connection string.", "error", err)
		os.Exit(1)
	}

	if v := a.config.GetInt32("database.pool.max_conns"); v > 0 {
		config.MaxConns = v
	}
	if v := a.config.GetInt32("database.pool.min_conns"); v > 0 {
		config.MinConns = v
	}
	if v := a.config.GetSecond("database.pool.max_conn_lifetime_seconds"); v > 0 {
		config.MaxConnLifetime = v
	}
	if v := a.config.GetSecond("database.pool.max_conn_idle_seconds"); v > 0 {
		config.MaxConnIdleTime = v
	}

	pool, err := pgxpool.NewWithConfig(a.ctx, config)
	if err != nil {
		slog.Error("failed to create DB connection pool", "error", err)
		os.Exit(1)
	}

	if err := a.ping("database", pool.Ping); err != nil {
		slog.Error("failed to ping DB", "error", err)
		os.Exit(1)
	}

	a.dbConn = pool
}

func (a *App) initCache() {
	opt, err := redis.ParseURL(a.config.GetString("redis.url"))
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(opt)

	if err := a.ping("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }); err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	a.cacheConn = rdb
}

func (a *App) initMessaging() {
	driver := a.config.GetString("events.driver")
	client, err := messaging.NewFromDriver(driver, messaging.FactoryOptions{
		NATS: messaging.NATSConfig{
			URL: a.config.GetString("events.nats.url"),
			Options: []nats.Option{
				nats.Name(a.config.GetString("events.nats.name")),
				nats.MaxReconnects(a.config.GetInt("events.nats.max_reconnects")),
				nats.Timeout(a.config.GetSecond("events.nats.timeout_seconds")),
				nats.ReconnectWait(a.config.GetSecond("events.nats.reconnect_wait_seconds")),
				nats.RetryOnFailedConnect(a.config.GetBool("events.nats.retry_on_failed_connect")),
			},
		},
	})
	if err != nil {
		slog.Error("failed to init messaging", "error", err, "driver", driver)
		os.Exit(1)
	}

	if n, ok := client.(*messaging.NATS); ok {
		if err := a.ping("nats", n.Ping); err != nil {
			slog.Error("failed to ping nats", "error", err)
			os.Exit(1)
		}
	}

	a.messaging = client
}

func (a *App) initClosers() {
	a.closers = []struct {
		name string
		fn   func(context.Context) error
	}{
		{
			name: "Goroutine",
			fn: func(ctx context.Context) error {
				slog.DebugContext(ctx, "waiting for all goroutine to finish")
				return a.goroutine.Wait()
			},
		},
		{
			name: "Instrument",
			fn: func(ctx context.Context) error {
				return a.ins.Shutdown(ctx)
			},
		},
		{
			name: "Messaging",
			fn: func(context.Context) error {
				return a.messaging.Close()
			},
		},
		{
			name: "Redis",
			fn: func(context.Context) error {
				if a.cacheConn == nil {
					return nil
				}
				return a.cacheConn.Close()
			},
		},
		{
			name: "Database",
			fn: func(context.Context) error {
				if a.dbConn != nil {
					a.dbConn.Close()
				}

				return nil
			},
		},
		{
			name: "Config",
			fn: func(context.Context) error {
				return a.config.Close()
			},
		},
	}
}
