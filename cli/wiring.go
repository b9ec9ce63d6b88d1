package cli

import (
	"fmt"

	"github.com/gabisonia/fiber-chat-proxy/config"
	"github.com/gabisonia/fiber-chat-proxy/store"
	"github.com/redis/go-redis/v9"
)

// openStore connects the configured record backend.
func openStore(cfg config.StoreConfig) (store.Admin, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(nil), nil
	case "redis":
		opts, err := redisOptions(cfg)
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(redis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func redisOptions(cfg config.StoreConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse store.url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}
