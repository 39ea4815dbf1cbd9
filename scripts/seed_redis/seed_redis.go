package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file — using system environment variables")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisGetEnv("REDIS_ADDR", "localhost:6379"),
		Password: redisGetEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer client.Close()

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	step1_api_keys(ctx, client)
	step2_settings(ctx, client)
	step3_verify(ctx, client)

	fmt.Println("\n✅ Redis seeded successfully")
	fmt.Println("   Run next: go run ./cmd/ingestiond")
}

func step1_api_keys(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 1: Seeding API keys ────────────────────")

	// Key pattern: device:auth:{api_key} → device_id
	// This is what authenticator.go looks up at Level 2
	// TTL = 0 means permanent — these never expire
	apiKeys := map[string]string{
		"device:auth:gw_garage_alpha_key": "gw-garage-alpha",
		"device:auth:gw_garage_bravo_key": "gw-garage-bravo",
		"device:auth:test_key":            "test-device",
	}

	for key, deviceID := range apiKeys {
		err := client.Set(ctx, key, deviceID, 0).Err()
		if err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %-40s → %s\n", key, deviceID)
	}
}

func step2_settings(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 2: System settings ─────────────────────")

	// Distance unit consumed by the odometer sanitizer: miles | kilometers
	unit := redisGetEnv("DISTANCE_UNIT", "miles")
	if err := client.Set(ctx, "settings:distance_unit", unit, 0).Err(); err != nil {
		log.Fatalf("Failed to set distance unit: %v", err)
	}
	fmt.Printf("  ✓ settings:distance_unit → %s\n", unit)
}

func step3_verify(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 3: Verification ────────────────────────")

	keys, err := client.Keys(ctx, "device:auth:*").Result()
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d API keys found in Redis\n", len(keys))

	val, err := client.Get(ctx, "settings:distance_unit").Result()
	if err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: settings:distance_unit → %s\n", val)
}

func redisGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
