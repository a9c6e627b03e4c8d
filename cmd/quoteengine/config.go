package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"quoteengine/pkg/quote/domain/model"
	"quoteengine/pkg/quote/infrastructure/cache"
	"quoteengine/pkg/quote/infrastructure/mysql"
)

const appID = "quoteengine"

type config struct {
	RESTAddress string `envconfig:"rest_address" default:":8080"`
	GRPCAddress string `envconfig:"grpc_address" default:":8081"`

	DatabaseHost            string        `envconfig:"database_host" default:"localhost:3306"`
	DatabaseName            string        `envconfig:"database_name" default:"quoteengine"`
	DatabaseUser            string        `envconfig:"database_user" default:"quoteengine"`
	DatabasePassword        string        `envconfig:"database_password"`
	DatabaseMaxConns        int           `envconfig:"database_max_conns" default:"10"`
	DatabaseConnMaxLifetime time.Duration `envconfig:"database_conn_max_lifetime" default:"5m"`
	AutoMigrate             bool          `envconfig:"auto_migrate" default:"true"`

	// Empty RedisAddress disables the performance cache.
	RedisAddress        string        `envconfig:"redis_address"`
	RedisPassword       string        `envconfig:"redis_password"`
	RedisDB             int           `envconfig:"redis_db"`
	PerformanceCacheTTL time.Duration `envconfig:"performance_cache_ttl" default:"5m"`

	LogLevel string `envconfig:"log_level" default:"info"`

	BonusStepPercent float64 `envconfig:"bonus_step_percent" default:"5"`
	BonusCapPercent  float64 `envconfig:"bonus_cap_percent" default:"20"`
}

// loadConfig reads an optional .env file and then the QUOTEENGINE_* environment.
func loadConfig() (*config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file, using environment only")
	}

	c := new(config)
	if err := envconfig.Process(appID, c); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return c, nil
}

func (c *config) database() mysql.Config {
	return mysql.Config{
		Host:            c.DatabaseHost,
		Name:            c.DatabaseName,
		User:            c.DatabaseUser,
		Password:        c.DatabasePassword,
		MaxOpenConns:    c.DatabaseMaxConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *config) redis() cache.Config {
	return cache.Config{
		Addr:     c.RedisAddress,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *config) bonusPolicy() model.BonusPolicy {
	return model.BonusPolicy{
		StepPercent: c.BonusStepPercent,
		CapPercent:  c.BonusCapPercent,
	}
}

func setupLogging(level string) error {
	log.SetFormatter(&log.JSONFormatter{})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "log level %q", level)
	}
	log.SetLevel(parsed)
	return nil
}
