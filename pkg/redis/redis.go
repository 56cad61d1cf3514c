// Package redis builds the shared go-redis client from environment config.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	URL string `split_words:"true" required:"true"`
	// Timeouts are in seconds.
	ReadTimeout  int `split_words:"true" default:"3"`
	WriteTimeout int `split_words:"true" default:"3"`
	DialTimeout  int `split_words:"true" default:"5"`
	PoolSize     int `split_words:"true" default:"10"`
}

// New parses the URL, applies the configured timeouts, and verifies the
// connection with a bounded ping before handing the client out.
func (c *Config) New(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.ReadTimeout = time.Duration(c.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(c.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(c.DialTimeout) * time.Second
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
