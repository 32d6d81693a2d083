package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // For key normalisation
	"time"    // For durations

	"github.com/joho/godotenv" // For loading .env files
)

// Tenancy modes
const (
	ModeSingleStore    = "single-store"     // One shared database, rows filtered by tenant id
	ModePerTenantStore = "per-tenant-store" // One database per tenant
)

// Config holds the application configuration
type Config struct {
	AppPort     string // Application port
	DBUser      string // Database user
	DBPassword  string // Database password
	DBHost      string // Database host
	DBPort      string // Database port
	DBName      string // Database name
	DatabaseURL string // Full DSN, overrides the DB_* parts when set
	TenancyMode string // single-store or per-tenant-store
	JWTSecret   string // JWT secret key
	RedisAddr   string // Redis server address
	RedisPass   string // Redis password
	RedisDB     int    // Redis database number
	IsProd      bool   // Is production environment

	TenantCacheTTL       time.Duration // How long resolved tenants stay in Redis
	TenantResolveTimeout time.Duration // Upper bound for tenant resolution

	ConnMaxIdle       time.Duration // Idle time before a tenant connection is evicted
	ConnEvictSchedule string        // Cron spec for the eviction job
	ConnDialTimeout   time.Duration // Upper bound for opening a tenant connection

	SettlementDelay         time.Duration // Provider A settlement delay
	SettlementWorkers       int           // Settlement queue workers
	SettlementSweepSchedule string        // Cron spec for the pending settlement sweep

	RabbitMQURL    string // Broker for lifecycle events, empty disables publishing
	EventsExchange string // Topic exchange for lifecycle events
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:     getEnv("APP_PORT", "8080"),                    // Application port
		DBUser:      os.Getenv("DB_USER"),                          // Database user
		DBPassword:  os.Getenv("DB_PASSWORD"),                      // Database password
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),                // Database host
		DBPort:      getEnv("DB_PORT", "3306"),                     // Database port
		DBName:      os.Getenv("DB_NAME"),                          // Database name
		DatabaseURL: os.Getenv("DATABASE_URL"),                     // Full DSN
		TenancyMode: getEnv("TENANCY_MODE", ModeSingleStore),       // Tenancy mode
		JWTSecret:   os.Getenv("JWT_SECRET"),                       // JWT secret key
		RedisAddr:   os.Getenv("REDIS_ADDR"),                       // Redis server address
		RedisPass:   os.Getenv("REDIS_PASS"),                       // Redis password
		RedisDB:     redisDB,                                       // Redis database number
		IsProd:      os.Getenv("IS_PROD") == "true",                // Is production environment

		TenantCacheTTL:       getDuration("TENANT_CACHE_TTL", 30*time.Second),
		TenantResolveTimeout: getDuration("TENANT_RESOLVE_TIMEOUT", 3*time.Second),

		ConnMaxIdle:       getDuration("CONN_MAX_IDLE", 10*time.Minute),
		ConnEvictSchedule: getEnv("CONN_EVICT_SCHEDULE", "@every 1m"),
		ConnDialTimeout:   getDuration("CONN_DIAL_TIMEOUT", 5*time.Second),

		SettlementDelay:         getDuration("SETTLEMENT_DELAY", 5*time.Second),
		SettlementWorkers:       getInt("SETTLEMENT_WORKERS", 4),
		SettlementSweepSchedule: getEnv("SETTLEMENT_SWEEP_SCHEDULE", "@every 5m"),

		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		EventsExchange: getEnv("EVENTS_EXCHANGE", "remittance.events"),
	}
}

// DSN returns the default (platform) data source name
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

// PerTenantStores reports whether every tenant has its own database
func (c *Config) PerTenantStores() bool {
	return c.TenancyMode == ModePerTenantStore
}

// TenantDSNOverride returns the local-development override for a tenant store, if any
func TenantDSNOverride(code string) (string, bool) {
	key := "TENANT_DB_URL_" + strings.ToUpper(strings.ReplaceAll(code, "-", "_"))
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return fallback
}
