package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ConnectRedis opens a client for redisURL, which may be a redis:// URL or a
// bare host:port.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	var options *redis.Options
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("unable to parse redis url: %w", err)
		}
		options = parsed
	} else {
		options = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	logrus.WithField("addr", options.Addr).Info("Connected to Redis successfully")
	return client, nil
}
