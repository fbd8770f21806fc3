package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"selflearning"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"selflearning"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI     bool   `envconfig:"ENABLE_API" default:"true"`
	EnableWorker  bool   `envconfig:"ENABLE_WORKER" default:"true"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	// Queue
	JobMaxAttempts  int           `envconfig:"JOB_MAX_ATTEMPTS" default:"3"`
	JobBatchSize    int           `envconfig:"JOB_BATCH_SIZE" default:"10"`
	JobPollInterval time.Duration `envconfig:"JOB_POLL_INTERVAL" default:"30s"`

	// Pools
	EmbeddingMinWorkers int           `envconfig:"EMBEDDING_MIN_WORKERS" default:"1"`
	EmbeddingMaxWorkers int           `envconfig:"EMBEDDING_MAX_WORKERS" default:"4"`
	GeneralMinWorkers   int           `envconfig:"GENERAL_MIN_WORKERS" default:"2"`
	GeneralMaxWorkers   int           `envconfig:"GENERAL_MAX_WORKERS" default:"6"`
	WorkerMaxIdleTime   time.Duration `envconfig:"WORKER_MAX_IDLE_TIME" default:"10s"`
	WorkerSweepInterval time.Duration `envconfig:"WORKER_SWEEP_INTERVAL" default:"60s"`
	TaskTimeout         time.Duration `envconfig:"TASK_TIMEOUT" default:"30s"`
	EmbedChunkSize      int           `envconfig:"EMBED_CHUNK_SIZE" default:"512"`
	EmbedChunkOverlap   int           `envconfig:"EMBED_CHUNK_OVERLAP" default:"50"`
	ShutdownGracePeriod time.Duration `envconfig:"SHUTDOWN_GRACE_PERIOD" default:"20s"`
	NSQMaxInFlight      int           `envconfig:"NSQ_MAX_IN_FLIGHT" default:"10"`
	EventRetention      time.Duration `envconfig:"EVENT_RETENTION" default:"10m"`

	// Retrieval
	RetrievalMinScore float32 `envconfig:"RETRIEVAL_MIN_SCORE" default:"0"`
	QueryLogPath      string  `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Server
	ServerPort int `envconfig:"SERVER_PORT" default:"8081"`

	// Resilience
	BootstrapRetryAttempts int           `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelay    time.Duration `envconfig:"BOOTSTRAP_RETRY_DELAY" default:"2s"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if !c.EnableAPI && !c.EnableWorker {
		return fmt.Errorf("%w: one of ENABLE_API or ENABLE_WORKER must be set", ErrInvalidValue)
	}
	if c.EmbeddingMinWorkers < 0 || c.EmbeddingMaxWorkers < c.EmbeddingMinWorkers {
		return fmt.Errorf("%w: EMBEDDING_MIN_WORKERS must be within [0, EMBEDDING_MAX_WORKERS]", ErrInvalidValue)
	}
	if c.GeneralMinWorkers < 0 || c.GeneralMaxWorkers < c.GeneralMinWorkers {
		return fmt.Errorf("%w: GENERAL_MIN_WORKERS must be within [0, GENERAL_MAX_WORKERS]", ErrInvalidValue)
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("%w: JOB_MAX_ATTEMPTS must be positive", ErrInvalidValue)
	}
	return nil
}
