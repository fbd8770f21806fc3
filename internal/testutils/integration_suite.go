package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"selflearning/apps/worker/internal/config"
)

const (
	dbName = "selflearning_test"
	dbUser = "test"
	dbPass = "test"
)

// IntegrationSuite starts throwaway Postgres, Weaviate and NSQ containers.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer

	pgHost       string
	pgPort       int
	weaviateHost string
	nsqdAddr     string
	nsqdHTTPAddr string

	pgContainer       *postgres.PostgresContainer
	weaviateContainer testcontainers.Container
	nsqContainer      testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// Setup starts every container.
func (s *IntegrationSuite) Setup() {
	s.SetupPostgres()
	s.SetupWeaviate()
	s.setupNSQ()
}

// SetupPostgres starts only Postgres and applies the migrations.
func (s *IntegrationSuite) SetupPostgres() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	host, err := pgContainer.Host(ctx)
	require.NoError(s.T, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.pgHost = host
	s.pgPort = port.Int()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	_, err = s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS lessons (
		lesson_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content JSONB
	)`)
	require.NoError(s.T, err)
}

// SetupWeaviate starts only Weaviate.
func (s *IntegrationSuite) SetupWeaviate() {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.25.4",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.weaviateContainer = c

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "8080")
	require.NoError(s.T, err)
	s.weaviateHost = fmt.Sprintf("%s:%s", host, port.Port())

	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.weaviateHost, Scheme: "http"})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) setupNSQ() {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = c

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	tcpPort, err := c.MappedPort(ctx, "4150")
	require.NoError(s.T, err)
	httpPort, err := c.MappedPort(ctx, "4151")
	require.NoError(s.T, err)
	s.nsqdAddr = fmt.Sprintf("%s:%s", host, tcpPort.Port())
	s.nsqdHTTPAddr = fmt.Sprintf("%s:%s", host, httpPort.Port())

	s.NSQ, err = nsq.NewProducer(s.nsqdAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

// GetAppConfig returns a config pointing at the suite's containers.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	cfg := &config.Config{
		DBHost:                 s.pgHost,
		DBPort:                 s.pgPort,
		DBUser:                 dbUser,
		DBPass:                 dbPass,
		DBName:                 dbName,
		WeaviateHost:           s.weaviateHost,
		WeaviateScheme:         "http",
		NSQDHost:               s.nsqdAddr,
		NSQDHTTP:               s.nsqdHTTPAddr,
		MigrationPath:          MigrationPath(),
		EnableAPI:              true,
		EnableWorker:           true,
		JobMaxAttempts:         3,
		JobBatchSize:           10,
		JobPollInterval:        time.Second,
		TaskTimeout:            30 * time.Second,
		EmbeddingMinWorkers:    1,
		EmbeddingMaxWorkers:    2,
		GeneralMinWorkers:      1,
		GeneralMaxWorkers:      2,
		WorkerMaxIdleTime:      10 * time.Second,
		ShutdownGracePeriod:    5 * time.Second,
		ServerPort:             0,
		BootstrapRetryAttempts: 5,
		BootstrapRetryDelay:    time.Second,
	}
	return cfg
}

func (s *IntegrationSuite) Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// SeedLesson writes a lesson row the way the platform stores it.
func (s *IntegrationSuite) SeedLesson(id, title, content string) {
	_, err := s.DB.Exec(`INSERT INTO lessons (lesson_id, title, content) VALUES ($1, $2, $3)`, id, title, content)
	require.NoError(s.T, err)
}

// NSQDAddr is the TCP address of the nsqd container, for consumers.
func (s *IntegrationSuite) NSQDAddr() string { return s.nsqdAddr }

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(ctx)
	}
	if s.weaviateContainer != nil {
		_ = s.weaviateContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		_ = s.nsqContainer.Terminate(ctx)
	}
}

// MigrationPath locates the repository's migrations directory.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s", filepath.Join(filepath.Dir(b), "..", "..", "migrations"))
}
