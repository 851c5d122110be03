package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/internal/database"
	"github.com/MrEthical07/goRecover/internal/directory"
	"github.com/MrEthical07/goRecover/internal/repository"
	"github.com/MrEthical07/goRecover/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		users       = flag.Int("users", 2000, "number of directory entries to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "create operations against pending records")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		dsn         = flag.String("db", ":memory:", "sqlite dsn for the local user store")
		prefix      = flag.String("prefix", "rcvload", "recovery key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	mail := &codeMailer{codes: make(map[string]string)}
	engine, err := buildEngine(client, *dsn, *prefix, *users, mail)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	uids := make([]string, *users)
	fmt.Printf("opening %d recoveries...\n", *users)
	startSeed := time.Now()
	for i := range uids {
		rec, err := engine.CreateRecovery(ctx, goRecover.CreateRecoveryRequest{Username: username(i)})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		uids[i] = rec.UID
	}
	fmt.Printf("opened in %s\n", time.Since(startSeed).Round(time.Millisecond))

	createStats := runCreatePhase(ctx, engine, *users, *ops, *concurrency)
	validateStats := runValidatePhase(ctx, engine, mail, uids, *concurrency)

	fmt.Println("---- results ----")
	printStats("create (pending)", createStats)
	printStats("validate", validateStats)
	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: %v\n", snap.Counters)
}

func buildEngine(client redis.UniversalClient, dsn, prefix string, users int, mail goRecover.Mailer) (*goRecover.Engine, error) {
	people := make([]directory.Person, users)
	for i := range people {
		people[i] = directory.Person{
			EmployeeID:      fmt.Sprintf("L%06d", i),
			Username:        username(i),
			Email:           username(i) + "@load.example",
			FirstName:       "Load",
			LastName:        fmt.Sprintf("User%d", i),
			SupervisorEmail: "lead@load.example",
		}
	}
	roster, err := directory.NewRoster(people)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}
	repo := repository.New(db)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	sealKey := make([]byte, 32)
	if _, err := rand.Read(sealKey); err != nil {
		return nil, err
	}

	cfg := goRecover.DefaultConfig()
	cfg.Recovery.CodeSealKey = sealKey
	cfg.Recovery.RedisPrefix = prefix
	cfg.Recovery.ResetURL = "http://localhost/reset/{uid}"
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Throttle.EnableIdentifierThrottle = false
	cfg.Throttle.EnableIPThrottle = false

	return goRecover.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(roster).
		WithUserStore(repository.NewUserStore(repo)).
		WithPasswordStore(repository.NewPasswordStore(repo, hasher, repository.PasswordOptions{})).
		WithMailer(mail).
		WithEventLog(goRecover.NoOpEventLog{}).
		WithLatencyHistograms(true).
		Build()
}

func username(i int) string {
	return fmt.Sprintf("load%d", i)
}

var codePattern = regexp.MustCompile(`\b\d{6,10}\b`)

// codeMailer keeps the last code sent to each address.
type codeMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *codeMailer) Send(_ context.Context, msg goRecover.Message) error {
	code := codePattern.FindString(msg.TextBody)
	m.mu.Lock()
	m.codes[msg.To] = code
	m.mu.Unlock()
	return nil
}

func (m *codeMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

func runCreatePhase(ctx context.Context, engine *goRecover.Engine, users, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := engine.CreateRecovery(ctx, goRecover.CreateRecoveryRequest{Username: username(r.Intn(users))})
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runValidatePhase consumes every record once with the code last mailed for it.
func runValidatePhase(ctx context.Context, engine *goRecover.Engine, mail *codeMailer, uids []string, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(uids))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(uids) {
					return
				}
				code := mail.code(username(i) + "@load.example")
				t0 := time.Now()
				_, err := engine.ValidateRecovery(ctx, uids[i], code)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
