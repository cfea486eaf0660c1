// Package testsupport provides shared test database setup and fixture
// builders for package-level tests.
package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadlens/internal"
	"leadlens/internal/config"
	"leadlens/internal/forms"
	"leadlens/internal/leads"
	"leadlens/internal/sessions"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager behind the app's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns every model the schema migrates
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&sessions.VisitorSession{},
		&sessions.PageView{},
		&forms.FormSession{},
		&leads.Lead{},
		&leads.Touchpoint{},
	}
}

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same
// database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set LEADLENS_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted
// against the given database.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// CreateTestVisitorSession inserts an active visitor session that started at
// the given time. LastPing is set to the start time so liveness tests can
// backdate it explicitly.
func CreateTestVisitorSession(t *testing.T, db *gorm.DB, visitorID string, startedAt time.Time) *sessions.VisitorSession {
	t.Helper()

	session := &sessions.VisitorSession{
		VisitorID: visitorID,
		Device:    "desktop",
		Browser:   "Chrome",
		OS:        "Windows",
		Country:   "US",
		Referrer:  "https://www.google.com/",
		UTMSource: "google",
		IsActive:  true,
		LastPing:  startedAt,
		StartedAt: startedAt,
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

// CreateTestPageView inserts a page view for the given session
func CreateTestPageView(t *testing.T, db *gorm.DB, session *sessions.VisitorSession, path string, viewedAt time.Time) *sessions.PageView {
	t.Helper()

	view := &sessions.PageView{
		SessionID: session.ID,
		VisitorID: session.VisitorID,
		Path:      path,
		Title:     path,
		ViewedAt:  viewedAt,
	}
	require.NoError(t, db.Create(view).Error)
	return view
}

// CreateTestFormSession inserts a form session with the given step history.
// MaxStepReached is derived from the highest step in the history.
func CreateTestFormSession(t *testing.T, db *gorm.DB, visitorID string, completed bool, history []forms.StepEvent) *forms.FormSession {
	t.Helper()

	var maxStep float64
	for _, ev := range history {
		if ev.Step > maxStep {
			maxStep = ev.Step
		}
	}

	blob, err := forms.EncodeHistory(history)
	require.NoError(t, err)

	session := &forms.FormSession{
		VisitorID:      visitorID,
		StartedAt:      time.Now().UTC().Add(-time.Hour),
		Completed:      completed,
		MaxStepReached: maxStep,
		DeviceType:     "desktop",
		UTMSource:      "google",
		StepHistory:    blob,
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

// CreateTestLead inserts a lead with an ordered touchpoint journey. Each
// journey entry is one channel touch, spaced a day apart ending yesterday.
func CreateTestLead(t *testing.T, db *gorm.DB, email string, dealValue float64, journey ...string) *leads.Lead {
	t.Helper()

	source := ""
	if len(journey) > 0 {
		source = journey[len(journey)-1]
	}

	lead := &leads.Lead{
		Name:      "Test Lead",
		Email:     email,
		Status:    leads.StatusNew,
		Source:    source,
		DealValue: dealValue,
	}
	require.NoError(t, db.Create(lead).Error)

	base := time.Now().UTC().AddDate(0, 0, -len(journey))
	for i, channel := range journey {
		tp := &leads.Touchpoint{
			LeadID:     lead.ID,
			Source:     channel,
			Action:     "visit",
			OccurredAt: base.AddDate(0, 0, i),
			Position:   i,
		}
		require.NoError(t, db.Create(tp).Error)
	}
	return lead
}
