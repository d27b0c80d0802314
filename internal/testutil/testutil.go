package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dom/live-auction-server/internal/api"
	"github.com/dom/live-auction-server/internal/arbiter"
	"github.com/dom/live-auction-server/internal/broadcast"
	"github.com/dom/live-auction-server/internal/config"
	"github.com/dom/live-auction-server/internal/coordinator"
	"github.com/dom/live-auction-server/internal/repository"
	repoPostgres "github.com/dom/live-auction-server/internal/repository/postgres"
	"github.com/dom/live-auction-server/internal/service"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB creates a new PostgreSQL testcontainer and returns a connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("test_live_auction"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		ctx := context.Background()
		tdb.Container.Terminate(ctx)
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	tables := []string{
		"item_results",
		"bids",
		"auction_items",
		"auctions",
		"user_sessions",
		"users",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Port:                   "0",
		Environment:            "test",
		CORSOrigins:            []string{"*"},
		JWTSecret:              "test-jwt-secret-key-for-testing-only",
		JWTExpirationHours:     1,
		DefaultItemDurationSec: 2, // fast timers for tests
		VideoAppID:             "test-app",
		VideoAppCert:           "test-cert",
	}
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server      *httptest.Server
	DB          *TestDB
	Repos       *repository.Repositories
	Services    *service.Services
	Hub         *broadcast.Hub
	Coordinator *coordinator.Coordinator
	Arbiter     *arbiter.MemoryArbiter
	Config      *config.Config
}

// NewTestServer creates a complete test server. The arbiter is the in-memory
// implementation; everything else is the production wiring.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	cfg := TestConfig()

	repos := repoPostgres.NewRepositories(testDB.DB)
	arb := arbiter.NewMemory()
	hub := broadcast.NewHub()
	coord := coordinator.New(repos.User, repos.Auction, arb, hub)

	services := service.NewServices(repos, cfg)
	router := api.NewRouter(services, coord, hub, cfg)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:      server,
		DB:          testDB,
		Repos:       repos,
		Services:    services,
		Hub:         hub,
		Coordinator: coord,
		Arbiter:     arb,
		Config:      cfg,
	}

	t.Cleanup(func() {
		hub.Stop()
		coord.Close()
		server.Close()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// WebSocketURL returns the WebSocket URL with token
func (ts *TestServer) WebSocketURL(token string) string {
	wsURL := "ws" + ts.Server.URL[4:]
	return fmt.Sprintf("%s/api/v1/ws?token=%s", wsURL, token)
}
