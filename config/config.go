package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"betslip/database"
)

// Config holds all application configuration
type Config struct {
	// Wagering service configuration
	WageringAPIURL string // Base URL of the book's wagering API
	WageringAPIKey string // API key sent on every gateway call
	AccountID      string // Account the engine builds and posts tickets under

	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Market feed configuration
	StreamDriver string   // "nats" or "kafka"
	NATSServers  string   // NATS server addresses (comma-separated)
	KafkaBrokers []string // Kafka bootstrap brokers
	KafkaTopic   string   // Topic carrying market updates
	KafkaGroupID string   // Consumer group for the feed

	// Snapshot cache configuration
	RedisAddr     string // Redis address; empty disables snapshot caching
	RedisPassword string
	RedisDB       int

	// Slip behavior
	ChangeGraceSeconds   int  // How long a review flag stays before the sweeper clears it
	SweepIntervalSeconds int  // How often the sweeper runs
	AutoAcceptBetterOdds  bool  // Default for accounts without an explicit profile
	RequireReviewOnChange bool  // Flags every market move for review, overriding auto-accept
	UnrestrictedCredit    bool  // Exempts the account from the if-bet chain limit rule
	FreePlayBalanceCents  int64 // Free-play balance available to the account

	// Limit tables
	LimitTablesPath string // YAML override path; empty uses the embedded tables

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // "console", "otlp", or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			// In test environment, use a default test config instead of panicking
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Wagering service
		WageringAPIURL: os.Getenv("WAGERING_API_URL"),
		WageringAPIKey: os.Getenv("WAGERING_API_KEY"),
		AccountID:      os.Getenv("ACCOUNT_ID"),

		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// Market feed
		StreamDriver: getEnvWithDefault("STREAM_DRIVER", "nats"),
		NATSServers:  getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),
		KafkaTopic:   getEnvWithDefault("KAFKA_TOPIC", "market-updates"),
		KafkaGroupID: getEnvWithDefault("KAFKA_GROUP_ID", "betslip"),

		// Snapshot cache
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		// Slip behavior defaults
		ChangeGraceSeconds:   45,
		SweepIntervalSeconds: 15,

		// Limit tables
		LimitTablesPath: os.Getenv("LIMIT_TABLES_PATH"),

		// OpenTelemetry defaults
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "betslip"),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "none"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_OTLP_ENDPOINT", "localhost:4317"),
		OTelExportIntervalMillis: 60000,

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Parse Kafka brokers
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			b = strings.TrimSpace(b)
			if b != "" {
				config.KafkaBrokers = append(config.KafkaBrokers, b)
			}
		}
	}

	// Override defaults if environment variables are set
	if db := os.Getenv("REDIS_DB"); db != "" {
		if parsed, err := strconv.Atoi(db); err == nil {
			config.RedisDB = parsed
		}
	}
	if grace := os.Getenv("CHANGE_GRACE_SECONDS"); grace != "" {
		if parsed, err := strconv.Atoi(grace); err == nil && parsed > 0 {
			config.ChangeGraceSeconds = parsed
		}
	}
	if interval := os.Getenv("SWEEP_INTERVAL_SECONDS"); interval != "" {
		if parsed, err := strconv.Atoi(interval); err == nil && parsed > 0 {
			config.SweepIntervalSeconds = parsed
		}
	}
	if accept := os.Getenv("AUTO_ACCEPT_BETTER_ODDS"); accept != "" {
		if parsed, err := strconv.ParseBool(accept); err == nil {
			config.AutoAcceptBetterOdds = parsed
		}
	}
	if review := os.Getenv("REQUIRE_REVIEW_ON_CHANGE"); review != "" {
		if parsed, err := strconv.ParseBool(review); err == nil {
			config.RequireReviewOnChange = parsed
		}
	}
	if credit := os.Getenv("UNRESTRICTED_CREDIT"); credit != "" {
		if parsed, err := strconv.ParseBool(credit); err == nil {
			config.UnrestrictedCredit = parsed
		}
	}
	if balance := os.Getenv("FREE_PLAY_BALANCE_CENTS"); balance != "" {
		if parsed, err := strconv.ParseInt(balance, 10, 64); err == nil && parsed >= 0 {
			config.FreePlayBalanceCents = parsed
		}
	}
	if enabled := os.Getenv("OTEL_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			config.OTelEnabled = parsed
		}
	}
	if interval := os.Getenv("OTEL_EXPORT_INTERVAL_MILLIS"); interval != "" {
		if parsed, err := strconv.Atoi(interval); err == nil && parsed > 0 {
			config.OTelExportIntervalMillis = parsed
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.WageringAPIURL == "" {
			return nil, fmt.Errorf("WAGERING_API_URL is required")
		}
		if config.WageringAPIKey == "" {
			return nil, fmt.Errorf("WAGERING_API_KEY is required")
		}
		if config.AccountID == "" {
			return nil, fmt.Errorf("ACCOUNT_ID is required")
		}
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		switch config.StreamDriver {
		case "nats":
		case "kafka":
			if len(config.KafkaBrokers) == 0 {
				return nil, fmt.Errorf("KAFKA_BROKERS is required when STREAM_DRIVER is kafka")
			}
		default:
			return nil, fmt.Errorf("unknown STREAM_DRIVER: %s", config.StreamDriver)
		}
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:          "test",
		AccountID:            "ACC-TEST",
		StreamDriver:         "nats",
		NATSServers:          "nats://localhost:4222",
		KafkaTopic:           "market-updates",
		KafkaGroupID:         "betslip-test",
		ChangeGraceSeconds:   45,
		SweepIntervalSeconds: 15,
		OTelServiceName:      "betslip-test",
		OTelExporterType:     "none",
	}
}
