package handlers_test

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sshconsole/sshconsole/internal/config"
	"github.com/sshconsole/sshconsole/internal/database"
	"github.com/sshconsole/sshconsole/internal/handlers"
	"github.com/sshconsole/sshconsole/internal/middleware"
	"github.com/sshconsole/sshconsole/internal/routes"
	"github.com/sshconsole/sshconsole/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
	st  *store.Store
	cfg *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		AdminUsername: "admin",
		AdminPassword: "admin-pass",
		JWTSecret:     testJWTSecret,
	}
	st := store.New(db)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	routes.Setup(app, cfg,
		handlers.NewAuthHandler(cfg),
		handlers.NewServerHandler(db),
		handlers.NewCredentialHandler(db),
		handlers.NewSessionHandler(db, st),
		handlers.NewConsoleHandler(db, st, cfg),
		handlers.NewSystemHandler(st),
	)

	return &testEnv{app: app, db: db, st: st, cfg: cfg}
}

// listen starts the app on an ephemeral port and returns its address.
func (e *testEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go e.app.Listener(ln)
	t.Cleanup(func() { e.app.Shutdown() })

	// Give fiber a beat to start accepting.
	time.Sleep(50 * time.Millisecond)
	return ln.Addr().String()
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	access, _, err := middleware.GenerateTokens("admin", testJWTSecret)
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}
	return access
}
