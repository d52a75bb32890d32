package pubsub

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Open returns the bus for driver. The redis driver publishes through client,
// the memory driver only reaches subscribers inside this process.
func Open(driver string, client *redis.Client) (PubSub, error) {
	switch strings.ToLower(driver) {
	case DriverRedis:
		if client == nil {
			return nil, fmt.Errorf("pubsub driver %q needs a redis client", driver)
		}
		return NewRedisPubSubFromClient(client), nil
	case DriverMemory:
		return NewMemoryPubSub(), nil
	default:
		return nil, fmt.Errorf("unsupported pubsub driver: %s", driver)
	}
}
