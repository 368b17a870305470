package main

import (
	"log/slog"

	"github.com/jessevdk/go-flags"

	"github.com/backchannelauth/ciba/pkg/storage"
)

type config struct {
	Listen string `long:"listen" env:"CIBA_LISTEN" default:":8080" description:"address the HTTP server listens on"`
	Issuer string `long:"issuer" env:"CIBA_ISSUER" default:"http://localhost:8080" description:"issuer URL used in minted tokens"`

	Storage struct {
		Backend string `long:"backend" env:"CIBA_STORAGE_BACKEND" default:"memory" choice:"memory" choice:"redis" description:"transaction store backend"`

		Redis struct {
			Addr     string `long:"addr" env:"CIBA_REDIS_ADDR" default:"localhost:6379" description:"redis address"`
			Password string `long:"password" env:"CIBA_REDIS_PASSWORD" description:"redis password"`
			DB       int    `long:"db" env:"CIBA_REDIS_DB" default:"0" description:"redis database number"`
		} `group:"redis" namespace:"redis"`
	} `group:"storage" namespace:"storage"`

	Device struct {
		Gateway string `long:"gateway" env:"CIBA_DEVICE_GATEWAY" description:"URL of the authentication device gateway to deliver challenges to"`
	} `group:"device" namespace:"device"`

	Token struct {
		ValiditySeconds int    `long:"validity" env:"CIBA_TOKEN_VALIDITY" default:"3600" description:"lifetime of minted tokens in seconds"`
		KeyID           string `long:"key-id" env:"CIBA_TOKEN_KEY_ID" default:"cibaproxy" description:"kid header of minted tokens"`
	} `group:"token" namespace:"token"`

	LogLevel string `long:"log-level" env:"CIBA_LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"minimum log level"`
}

func parseConfig(args []string) (*config, error) {
	cfg := new(config)
	if _, err := flags.ParseArgs(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) storageConfig() storage.Config {
	return storage.Config{
		Backend: c.Storage.Backend,
		Redis: storage.RedisConfig{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
		},
	}
}

func (c *config) slogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
