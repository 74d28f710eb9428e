package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

const structuresKey = "bursar:fee-structures"

// RedisStructureCache shares the program fee structures between API instances.
type RedisStructureCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ fee.StructureCache = (*RedisStructureCache)(nil)

func NewRedisClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func NewRedisStructureCache(client *redis.Client, ttl time.Duration) *RedisStructureCache {
	return &RedisStructureCache{client: client, key: structuresKey, ttl: ttl}
}

func (c *RedisStructureCache) Get(ctx context.Context) ([]fee.Structure, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading fee structures")
	}
	var structures []fee.Structure
	if err = json.Unmarshal(data, &structures); err != nil {
		return nil, false, errors.Wrap(err, "decoding fee structures")
	}
	return structures, true, nil
}

func (c *RedisStructureCache) Set(ctx context.Context, structures []fee.Structure) error {
	if structures == nil {
		structures = []fee.Structure{}
	}
	data, err := json.Marshal(structures)
	if err != nil {
		return errors.Wrap(err, "encoding fee structures")
	}
	return errors.Wrap(c.client.Set(ctx, c.key, data, c.ttl).Err(), "writing fee structures")
}

func (c *RedisStructureCache) Invalidate(ctx context.Context) error {
	return errors.Wrap(c.client.Del(ctx, c.key).Err(), "deleting fee structures")
}
