//go:build integration
// +build integration

package test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/internal/database"
	"github.com/MrEthical07/goRecover/internal/directory"
	"github.com/MrEthical07/goRecover/internal/mailer"
	"github.com/MrEthical07/goRecover/internal/repository"
	"github.com/MrEthical07/goRecover/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the Redis backends to test. miniredis is always
// available. A real server is used when REDIS_ADDR is set.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	return modes
}

// openDatabase returns an in-memory SQLite database, or Postgres when
// POSTGRES_DSN is set.
func openDatabase(t *testing.T) *sqlx.DB {
	t.Helper()
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		db, err := database.Open(database.DriverPostgres, dsn)
		if err != nil {
			t.Skipf("cannot connect to Postgres: %v", err)
		}
		if err := database.MigrateReset(db.DB, database.DriverPostgres); err != nil {
			t.Fatalf("reset postgres schema: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return db
	}

	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// mailLog captures what the log mailer writes.
type mailLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (m *mailLog) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

var codePattern = regexp.MustCompile(`\b\d{6,10}\b`)

// lastCode returns the code in the most recent email body sent to addr.
func (m *mailLog) lastCode(t *testing.T, addr string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	var code string
	for _, line := range strings.Split(m.buf.String(), "\n") {
		if line == "" {
			continue
		}
		var entry struct {
			Msg  string `json:"msg"`
			To   string `json:"to"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode mail log line %q: %v", line, err)
		}
		if entry.Msg == "email body" && entry.To == addr {
			code = codePattern.FindString(entry.Text)
		}
	}
	if code == "" {
		t.Fatalf("no code mailed to %s", addr)
	}
	return code
}

// stack is an engine built over the production adapters.
type stack struct {
	engine    *goRecover.Engine
	roster    *directory.Roster
	users     *repository.UserStore
	passwords *repository.PasswordStore
	mail      *mailLog
	events    *goRecover.ChannelEventLog
}

func newStack(t *testing.T, rdb redis.UniversalClient) *stack {
	t.Helper()

	roster, err := directory.NewRoster([]directory.Person{
		{
			EmployeeID:      "E100",
			Username:        "alice",
			Email:           "alice@example.org",
			FirstName:       "Alice",
			LastName:        "Archer",
			SupervisorEmail: "boss@example.org",
		},
		{
			EmployeeID: "E200",
			Username:   "bob",
			Email:      "bob@example.org",
			FirstName:  "Bob",
			LastName:   "Baker",
		},
	})
	if err != nil {
		t.Fatalf("roster: %v", err)
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}

	repo := repository.New(openDatabase(t))
	users := repository.NewUserStore(repo)
	passwords := repository.NewPasswordStore(repo, hasher, repository.PasswordOptions{HistorySize: 3})
	mail := &mailLog{}
	logger := slog.New(slog.NewJSONHandler(mail, &slog.HandlerOptions{Level: slog.LevelDebug}))
	events := goRecover.NewChannelEventLog(64)

	engine, err := goRecover.New().
		WithConfig(integrationConfig(t)).
		WithRedis(rdb).
		WithDirectory(roster).
		WithUserStore(users).
		WithPasswordStore(passwords).
		WithMailer(mailer.NewLog(logger)).
		WithMfaGateway(repository.NewMethodStore(repo)).
		WithEventLog(events).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &stack{
		engine:    engine,
		roster:    roster,
		users:     users,
		passwords: passwords,
		mail:      mail,
		events:    events,
	}
}

func integrationConfig(t *testing.T) goRecover.Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sealKey := make([]byte, 32)
	if _, err := rand.Read(sealKey); err != nil {
		t.Fatalf("seal key: %v", err)
	}

	cfg := goRecover.DefaultConfig()
	cfg.Recovery.CodeSealKey = sealKey
	cfg.Recovery.MaxAttempts = 3
	cfg.Recovery.ResetURL = "https://reset.example.org/reset/{uid}"
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Throttle.EnableIPThrottle = false
	cfg.Throttle.MaxRequests = 5
	return cfg
}
