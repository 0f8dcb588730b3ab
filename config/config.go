// Package config binds the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppName                       string   `envconfig:"APP_NAME" default:"clover-api"`
	Environment                   string   `envconfig:"ENVIRONMENT" default:"development"`
	Port                          int      `envconfig:"PORT" default:"3004"`
	LogLevel                      string   `envconfig:"LOG_LEVEL" default:"info"`
	PrettyLogs                    bool     `envconfig:"PRETTY_LOGS" default:"false"`
	HttpServerWriteTimeoutSeconds int      `envconfig:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" default:"10"`
	HttpServerReadTimeoutSeconds  int      `envconfig:"HTTP_SERVER_READ_TIMEOUT_SECONDS" default:"10"`
	HttpServerIdleTimeoutSeconds  int      `envconfig:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" default:"10"`
	AllowOrigins                  []string `envconfig:"HTTP_SERVER_ALLOW_ORIGINS" default:"*"`
	AllowMethods                  []string `envconfig:"HTTP_SERVER_ALLOW_METHODS" default:"GET,POST,PUT,DELETE"`

	// PostgreSQL
	DatabaseHost                  string        `envconfig:"DB_HOST" default:"localhost"`
	DatabasePort                  int           `envconfig:"DB_PORT" default:"5432"`
	DatabaseUserName              string        `envconfig:"DB_USER_NAME" default:""`
	DatabasePassword              string        `envconfig:"DB_PASSWORD" default:""`
	DatabaseName                  string        `envconfig:"DB_NAME" default:"clover"`
	DatabaseSSLMode               string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DatabaseMaxOpenConns          int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DatabaseMaxIdleConns          int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	DatabaseConnMaxLifetime       time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"10m"`
	DatabaseMigrationFolderPath   string        `envconfig:"DB_MIGRATION_FOLDER_PATH" default:"db/pg"`
	DatabaseMigrationVersion      uint          `envconfig:"DB_MIGRATION_VERSION" default:"0"`
	DatabaseMigrationForce        int           `envconfig:"DB_MIGRATION_FORCE" default:"0"`
	DatabaseMigrationAutoRollback bool          `envconfig:"DB_MIGRATION_AUTO_ROLLBACK" default:"true"`

	// Redis (scheduler locks)
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Graph Database (Memgraph / Neo4j)
	GraphEnabled    bool   `envconfig:"GRAPH_ENABLED" default:"false"`
	GraphDBHost     string `envconfig:"GRAPH_DB_HOST" default:"localhost"`
	GraphDBPort     int    `envconfig:"GRAPH_DB_PORT" default:"7687"`
	GraphDBUser     string `envconfig:"GRAPH_DB_USER" default:""`
	GraphDBPassword string `envconfig:"GRAPH_DB_PASSWORD" default:""`

	// Kafka Producer
	KafkaProducerEnabled bool     `envconfig:"KAFKA_PRODUCER_ENABLED" default:"false"`
	KafkaBrokers         []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaOutputTopic     string   `envconfig:"KAFKA_OUTPUT_TOPIC" default:"identity-events"`
	KafkaBatchSize       int      `envconfig:"KAFKA_BATCH_SIZE" default:"100"`
	KafkaBatchTimeout    int      `envconfig:"KAFKA_BATCH_TIMEOUT_MS" default:"100"`
	KafkaRequiredAcks    int      `envconfig:"KAFKA_REQUIRED_ACKS" default:"1"`

	// Tracing
	TraceExporter     string `envconfig:"TRACE_EXPORTER" default:"none"`
	TraceOTLPEndpoint string `envconfig:"TRACE_OTLP_ENDPOINT" default:"localhost:4317"`
	TraceOTLPProtocol string `envconfig:"TRACE_OTLP_PROTOCOL" default:"grpc"`
	TraceOTLPInsecure bool   `envconfig:"TRACE_OTLP_INSECURE" default:"true"`

	// Matching thresholds
	AutoLinkThreshold    float64 `envconfig:"MATCH_AUTO_LINK_THRESHOLD" default:"0.95"`
	SuggestThreshold     float64 `envconfig:"MATCH_SUGGEST_THRESHOLD" default:"0.70"`
	ProvisionalThreshold float64 `envconfig:"MATCH_PROVISIONAL_THRESHOLD" default:"0.50"`

	// Duplicate scanning
	ScanScoreFloor        float64       `envconfig:"SCAN_SCORE_FLOOR" default:"0.70"`
	StaleCandidateMaxAge  time.Duration `envconfig:"STALE_CANDIDATE_MAX_AGE" default:"720h"`

	// Auto-merge policy
	AutoMergeEnabled       bool    `envconfig:"AUTO_MERGE_ENABLED" default:"true"`
	AutoMergeMinConfidence float64 `envconfig:"AUTO_MERGE_MIN_CONFIDENCE" default:"0.98"`
	AutoMergeMaxPerRun     int     `envconfig:"AUTO_MERGE_MAX_PER_RUN" default:"50"`
	AutoMergeDryRun        bool    `envconfig:"AUTO_MERGE_DRY_RUN" default:"false"`

	// Scheduler
	SchedulerEnabled   bool          `envconfig:"SCHEDULER_ENABLED" default:"false"`
	ScanInterval       time.Duration `envconfig:"SCAN_INTERVAL" default:"1h"`
	AutoMergeInterval  time.Duration `envconfig:"AUTO_MERGE_INTERVAL" default:"15m"`
	SchedulerLockTTL   time.Duration `envconfig:"SCHEDULER_LOCK_TTL" default:"10m"`
}

// Load reads optional .env files, binds the environment, and validates the result.
func Load(envFiles ...string) (*Config, error) {
	// Missing .env files are fine; real deployments set the environment directly.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if err := validateScore("MATCH_AUTO_LINK_THRESHOLD", c.AutoLinkThreshold); err != nil {
		return err
	}
	if err := validateScore("MATCH_SUGGEST_THRESHOLD", c.SuggestThreshold); err != nil {
		return err
	}
	if err := validateScore("MATCH_PROVISIONAL_THRESHOLD", c.ProvisionalThreshold); err != nil {
		return err
	}
	if c.AutoLinkThreshold < c.SuggestThreshold || c.SuggestThreshold < c.ProvisionalThreshold {
		return fmt.Errorf("match thresholds must be ordered: auto-link >= suggest >= provisional")
	}
	if err := validateScore("SCAN_SCORE_FLOOR", c.ScanScoreFloor); err != nil {
		return err
	}
	if err := validateScore("AUTO_MERGE_MIN_CONFIDENCE", c.AutoMergeMinConfidence); err != nil {
		return err
	}
	if c.AutoMergeMaxPerRun < 1 {
		return fmt.Errorf("AUTO_MERGE_MAX_PER_RUN must be at least 1, got %d", c.AutoMergeMaxPerRun)
	}
	return nil
}

func validateScore(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
	}
	return nil
}
