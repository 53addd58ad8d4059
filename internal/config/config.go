package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	StorageMemory   = "memory"
	StorageMySQL    = "mysql"
	StoragePostgres = "postgres"

	InventoryStore = "store"
	InventoryRedis = "redis"
)

// Config carries environment-driven settings for the server process.
type Config struct {
	HTTPAddr         string
	GRPCAddr         string
	StorageBackend   string
	MySQLDSN         string
	PostgresDSN      string
	InventoryBackend string
	RedisAddr        string
	ReconcileWorkers int
	OrphanQueueSize  int
	TracingEnabled   bool
	ServiceName      string
}

// Load reads environment variables, applies defaults and validates the
// combination of backends.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:         envDefault("HTTP_ADDR", ":8080"),
		GRPCAddr:         envDefault("GRPC_ADDR", ":50051"),
		StorageBackend:   strings.ToLower(envDefault("STORAGE_BACKEND", StorageMemory)),
		MySQLDSN:         envDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/orders?parseTime=true"),
		PostgresDSN:      strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		InventoryBackend: strings.ToLower(envDefault("INVENTORY_BACKEND", InventoryStore)),
		RedisAddr:        envDefault("REDIS_ADDR", "localhost:6379"),
		TracingEnabled:   isTruthy(os.Getenv("TRACING_ENABLED")),
		ServiceName:      envDefault("SERVICE_NAME", "order-placement"),
	}

	var err error
	if cfg.ReconcileWorkers, err = positiveInt("RECONCILE_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if cfg.OrphanQueueSize, err = positiveInt("ORPHAN_QUEUE_SIZE", 1024); err != nil {
		return Config{}, err
	}

	switch cfg.StorageBackend {
	case StorageMemory, StorageMySQL:
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be one of memory, mysql, postgres; got %q", cfg.StorageBackend)
	}

	switch cfg.InventoryBackend {
	case InventoryStore, InventoryRedis:
	default:
		return Config{}, fmt.Errorf("INVENTORY_BACKEND must be store or redis; got %q", cfg.InventoryBackend)
	}
	return cfg, nil
}

func positiveInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func envDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func isTruthy(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes"
}
