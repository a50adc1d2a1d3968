// Package snapshot keeps the latest context, OEE and device health in
// redis so reconnecting clients can resync before streaming events.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

var ErrMiss = errors.New("snapshot cache miss")

const (
	defaultPrefix = "lineradar:"
	defaultTTL    = 24 * time.Hour

	kindContext = "context"
	kindOEE     = "oee"
	kindHealth  = "health"
)

type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// Connect opens a client for cfg and checks it with PING.
func Connect(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return New(client, cfg.KeyPrefix, time.Duration(cfg.TTL), logger), nil
}

func New(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	if prefix == "" {
		prefix = defaultPrefix
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *Cache) key(kind, id string) string {
	return c.prefix + kind + ":" + id
}

func (c *Cache) put(ctx context.Context, kind, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	if err := c.client.Set(ctx, c.key(kind, id), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

func (c *Cache) get(ctx context.Context, kind, id string, v interface{}) error {
	data, err := c.client.Get(ctx, c.key(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s %s", ErrMiss, kind, id)
		}

		return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}

	return nil
}

func (c *Cache) PutContext(ctx context.Context, pc models.ProductionContext) error {
	return c.put(ctx, kindContext, pc.EquipmentCode, pc)
}

func (c *Cache) PutOEE(ctx context.Context, s models.OEESnapshot) error {
	return c.put(ctx, kindOEE, s.EquipmentCode, s)
}

func (c *Cache) PutHealth(ctx context.Context, h models.DeviceHealth) error {
	return c.put(ctx, kindHealth, h.DeviceID, h)
}

func (c *Cache) GetContext(ctx context.Context, code string) (models.ProductionContext, error) {
	var pc models.ProductionContext
	err := c.get(ctx, kindContext, code, &pc)

	return pc, err
}

func (c *Cache) GetOEE(ctx context.Context, code string) (models.OEESnapshot, error) {
	var s models.OEESnapshot
	err := c.get(ctx, kindOEE, code, &s)

	return s, err
}

func (c *Cache) GetHealth(ctx context.Context, deviceID string) (models.DeviceHealth, error) {
	var h models.DeviceHealth
	err := c.get(ctx, kindHealth, deviceID, &h)

	return h, err
}

// Resync is the latest known state of a set of equipment.
type Resync struct {
	Contexts map[string]models.ProductionContext `json:"contexts"`
	OEE      map[string]models.OEESnapshot       `json:"oee"`
}

// Resync reads the cached context and OEE of every code in one pipeline.
// Missing keys are left out.
func (c *Cache) Resync(ctx context.Context, codes []string) (Resync, error) {
	out := Resync{
		Contexts: make(map[string]models.ProductionContext, len(codes)),
		OEE:      make(map[string]models.OEESnapshot, len(codes)),
	}

	if len(codes) == 0 {
		return out, nil
	}

	keys := make([]string, 0, 2*len(codes))
	for _, code := range codes {
		keys = append(keys, c.key(kindContext, code), c.key(kindOEE, code))
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return out, fmt.Errorf("failed to read snapshots: %w", err)
	}

	for i, code := range codes {
		if s, ok := vals[2*i].(string); ok {
			var pc models.ProductionContext
			if err := json.Unmarshal([]byte(s), &pc); err == nil {
				out.Contexts[code] = pc
			} else {
				c.logger.Warn("corrupt context snapshot", zap.String("equipment", code), zap.Error(err))
			}
		}

		if s, ok := vals[2*i+1].(string); ok {
			var snap models.OEESnapshot
			if err := json.Unmarshal([]byte(s), &snap); err == nil {
				out.OEE[code] = snap
			} else {
				c.logger.Warn("corrupt oee snapshot", zap.String("equipment", code), zap.Error(err))
			}
		}
	}

	return out, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
