// Package integration runs the document store, invoicing and HTTP layers
// against a real PostgreSQL started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/textile/backend/internal/infrastructure/config"
	"github.com/textile/backend/internal/infrastructure/migration"
	"github.com/textile/backend/internal/infrastructure/persistence"
)

const (
	testDBName     = "textile_test"
	testDBUser     = "postgres"
	testDBPassword = "admin123"
)

var (
	// Shared container for all tests in the package
	sharedContainer   testcontainers.Container
	sharedDatabase    config.DatabaseConfig
	sharedContainerMu sync.Mutex
)

// TestDB is a migrated PostgreSQL database
type TestDB struct {
	Database  config.DatabaseConfig
	Container testcontainers.Container
	t         *testing.T
}

// NewTestDB starts a fresh PostgreSQL container and applies the migrations.
// Each call gets its own container, for tests that need full isolation.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	container, db := startPostgres(t, testDBName)
	runMigrations(t, db)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})
	return &TestDB{Database: db, Container: container, t: t}
}

// NewSharedTestDB returns the package-wide container. Tests sharing it must
// use their own collection and counter paths.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer == nil {
		container, db := startPostgres(t, testDBName+"_shared")
		runMigrations(t, db)
		sharedContainer, sharedDatabase = container, db
	}
	return &TestDB{Database: sharedDatabase, Container: sharedContainer, t: t}
}

// Config returns a server configuration pointing the document store at the
// test database
func (tdb *TestDB) Config() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			Driver:        config.StoreDriverPostgres,
			NotifyChannel: "docstore_events",
			MaxRetries:    50,
			RetryBackoff:  2 * time.Millisecond,
		},
		Database: tdb.Database,
	}
}

// OpenStore opens a document store on the test database, as one server
// process would. Every call gets its own connections and listener.
func (tdb *TestDB) OpenStore() *persistence.StoreHandle {
	tdb.t.Helper()

	var gormLog gormlogger.Interface
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}
	h, err := persistence.OpenStore(context.Background(), tdb.Config(), gormLog, zap.NewNop())
	require.NoError(tdb.t, err, "Failed to open document store")
	tdb.t.Cleanup(func() { _ = h.Close() })
	return h
}

// CleanDocuments removes every document
func (tdb *TestDB) CleanDocuments() {
	tdb.t.Helper()

	db, err := sql.Open("postgres", tdb.Database.DSN())
	require.NoError(tdb.t, err)
	defer db.Close()

	_, err = db.Exec("TRUNCATE TABLE documents")
	require.NoError(tdb.t, err, "Failed to truncate documents")
}

func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

func startPostgres(t *testing.T, dbName string) (testcontainers.Container, config.DatabaseConfig) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername(testDBUser),
		tcpostgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err, "Failed to get container host")
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err, "Failed to get container port")

	return container, config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            testDBUser,
		Password:        testDBPassword,
		DBName:          dbName,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
		ConnMaxIdleTime: 1,
	}
}

// runMigrations applies the embedded migrations on a dedicated connection
func runMigrations(t *testing.T, cfg config.DatabaseConfig) {
	t.Helper()

	db, err := sql.Open("postgres", cfg.DSN())
	require.NoError(t, err, "Failed to connect for migrations")
	defer db.Close()

	m, err := migration.New(db, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	defer m.Close()

	require.NoError(t, m.Up(), "Failed to run migrations")
}

// CleanupSharedContainer terminates the shared container. Call it from
// TestMain.
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sharedContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to terminate shared container: %v\n", err)
		}
		sharedContainer = nil
	}
}
