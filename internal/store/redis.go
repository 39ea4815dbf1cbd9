package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"livelink/ingestion/internal/config"
	"livelink/ingestion/internal/domain"
)

const alertCooldown = 5 * time.Minute

// RedisStore holds the hot side of the system: the latest-value
// dashboard cache, API-key auth entries, the distance-unit setting and
// the threshold-alert channel.
type RedisStore struct {
	client    *redis.Client
	latestTTL time.Duration
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		latestTTL: time.Duration(cfg.LatestTTLSeconds) * time.Second,
	}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// UpsertLatest overwrites the dashboard cache entries for one payload in
// a single pipelined round trip: one hash per vin, one field per
// parameter.
func (r *RedisStore) UpsertLatest(ctx context.Context, values []domain.LatestValue) error {
	pipe := r.client.Pipeline()

	touched := make(map[string]bool)
	for _, lv := range values {
		data, err := json.Marshal(lv)
		if err != nil {
			return fmt.Errorf("failed to marshal latest value: %w", err)
		}
		key := latestKey(lv.VIN)
		pipe.HSet(ctx, key, lv.ParamKey, data)
		touched[key] = true
	}
	if r.latestTTL > 0 {
		for key := range touched {
			pipe.Expire(ctx, key, r.latestTTL)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// GetLatest reads one cached value back; used by the debug endpoint and
// tests against a live redis.
func (r *RedisStore) GetLatest(ctx context.Context, vin, paramKey string) (*domain.LatestValue, error) {
	raw, err := r.client.HGet(ctx, latestKey(vin), paramKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis latest get failed: %w", err)
	}
	var lv domain.LatestValue
	if err := json.Unmarshal([]byte(raw), &lv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest value: %w", err)
	}
	lv.VIN = vin
	lv.ParamKey = paramKey
	return &lv, nil
}

// DistanceUnit reads the system distance-unit setting. Missing or
// unrecognized settings fall back to miles.
func (r *RedisStore) DistanceUnit(ctx context.Context) (domain.DistanceUnit, error) {
	val, err := r.client.Get(ctx, "settings:distance_unit").Result()
	if err == redis.Nil {
		return domain.UnitMiles, nil
	}
	if err != nil {
		return "", fmt.Errorf("distance unit lookup failed: %w", err)
	}
	if domain.DistanceUnit(val) == domain.UnitKilometers {
		return domain.UnitKilometers, nil
	}
	return domain.UnitMiles, nil
}

func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf("device:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}

// NotifyThreshold is the notifier collaborator: it suppresses repeats of
// the same (vin, param, bound) alert inside the cooldown window, then
// publishes the alert on the vehicle's channel.
func (r *RedisStore) NotifyThreshold(ctx context.Context, alert *domain.ThresholdAlert) error {
	cooldownKey := fmt.Sprintf("alert:%s:%s:%s", alert.VIN, alert.ParamKey, string(alert.ThresholdType))
	count, err := r.client.Exists(ctx, cooldownKey).Result()
	if err != nil {
		return fmt.Errorf("alert cooldown check failed: %w", err)
	}
	if count > 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event_id":        uuid.NewString(),
		"vin":             alert.VIN,
		"vehicle":         alert.VehicleName,
		"param_key":       alert.ParamKey,
		"parameter":       alert.ParameterName,
		"value":           alert.Value,
		"threshold_type":  string(alert.ThresholdType),
		"threshold_value": alert.ThresholdValue,
		"unit":            alert.Unit,
		"triggered_at":    time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, cooldownKey, "1", alertCooldown)
	pipe.Publish(ctx, fmt.Sprintf("vehicle:%s:alerts", alert.VIN), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("alert publish failed: %w", err)
	}
	return nil
}

func latestKey(vin string) string {
	return fmt.Sprintf("vehicle:%s:latest", vin)
}
