// Package testutil provides in-memory collaborators and an Engine harness
// for tests.
package testutil

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	goRecover "github.com/MrEthical07/goRecover"
)

// Directory is an in-memory DirectoryLookup.
type Directory struct {
	mu     sync.Mutex
	people []goRecover.DirectoryUser
	Err    error
}

// Add registers a personnel record.
func (d *Directory) Add(u goRecover.DirectoryUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.people = append(d.people, u)
}

// Update replaces the record with the same employee id.
func (d *Directory) Update(u goRecover.DirectoryUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.people {
		if d.people[i].EmployeeID == u.EmployeeID {
			d.people[i] = u
		}
	}
}

func (d *Directory) FindUser(_ context.Context, username, email string) (goRecover.DirectoryUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return goRecover.DirectoryUser{}, d.Err
	}
	for _, p := range d.people {
		if username != "" && strings.EqualFold(p.Username, username) {
			return p, nil
		}
		if username == "" && email != "" && strings.EqualFold(p.Email, email) {
			return p, nil
		}
	}
	return goRecover.DirectoryUser{}, goRecover.ErrNotFound
}

// Users is an in-memory UserStore.
type Users struct {
	mu    sync.Mutex
	byEID map[string]goRecover.User
	Saves int
	Err   error
}

func (u *Users) FindByEmployeeID(_ context.Context, employeeID string) (goRecover.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return goRecover.User{}, u.Err
	}
	user, ok := u.byEID[employeeID]
	if !ok {
		return goRecover.User{}, goRecover.ErrNotFound
	}
	return user, nil
}

func (u *Users) FindByUUID(_ context.Context, id string) (goRecover.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return goRecover.User{}, u.Err
	}
	for _, user := range u.byEID {
		if user.UUID == id {
			return user, nil
		}
	}
	return goRecover.User{}, goRecover.ErrNotFound
}

func (u *Users) Save(_ context.Context, user goRecover.User) (goRecover.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return goRecover.User{}, u.Err
	}
	if u.byEID == nil {
		u.byEID = map[string]goRecover.User{}
	}
	if existing, ok := u.byEID[user.EmployeeID]; ok {
		user.ID = existing.ID
		user.UUID = existing.UUID
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.UUID == "" {
		user.UUID = uuid.NewString()
	}
	u.byEID[user.EmployeeID] = user
	u.Saves++
	return user, nil
}

// Passwords is an in-memory PasswordStore.
type Passwords struct {
	mu        sync.Mutex
	locked    map[string]bool
	current   map[string]string
	meta      map[string]goRecover.PasswordMeta
	AssessErr error
	SetErr    error
	LockErr   error
}

// Lock marks an employee's account as locked.
func (p *Passwords) Lock(employeeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked == nil {
		p.locked = map[string]bool{}
	}
	p.locked[employeeID] = true
}

// Current returns the last password set for employeeID.
func (p *Passwords) Current(employeeID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current[employeeID]
}

func (p *Passwords) IsLocked(_ context.Context, employeeID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LockErr != nil {
		return false, p.LockErr
	}
	return p.locked[employeeID], nil
}

func (p *Passwords) Set(_ context.Context, employeeID, password string) (goRecover.PasswordMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetErr != nil {
		return goRecover.PasswordMeta{}, p.SetErr
	}
	if p.current == nil {
		p.current = map[string]string{}
		p.meta = map[string]goRecover.PasswordMeta{}
	}
	now := time.Now().UTC().Truncate(time.Second)
	meta := goRecover.PasswordMeta{LastChanged: now, ExpiresAt: now.Add(365 * 24 * time.Hour)}
	p.current[employeeID] = password
	p.meta[employeeID] = meta
	return meta, nil
}

func (p *Passwords) GetMeta(_ context.Context, employeeID string) (goRecover.PasswordMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, ok := p.meta[employeeID]
	if !ok {
		return goRecover.PasswordMeta{}, goRecover.ErrNotFound
	}
	return meta, nil
}

func (p *Passwords) Assess(context.Context, string, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AssessErr
}

// Mailer records sent messages.
type Mailer struct {
	mu   sync.Mutex
	sent []goRecover.Message
	Err  error
}

func (m *Mailer) Send(_ context.Context, msg goRecover.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the delivered messages.
func (m *Mailer) Sent() []goRecover.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]goRecover.Message(nil), m.sent...)
}

// Last returns the most recent message.
func (m *Mailer) Last(t *testing.T) goRecover.Message {
	t.Helper()
	sent := m.Sent()
	require.NotEmpty(t, sent, "no message sent")
	return sent[len(sent)-1]
}

// Delivery is one code sent through Mfa.Deliver.
type Delivery struct {
	Method goRecover.MfaMethod
	Code   string
}

// Mfa is an in-memory MfaGateway.
type Mfa struct {
	mu         sync.Mutex
	methods    map[string][]goRecover.MfaMethod
	deliveries []Delivery
	ListErr    error
}

// Add registers a method for employeeID.
func (m *Mfa) Add(employeeID string, method goRecover.MfaMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.methods == nil {
		m.methods = map[string][]goRecover.MfaMethod{}
	}
	m.methods[employeeID] = append(m.methods[employeeID], method)
}

// Remove drops every method of employeeID.
func (m *Mfa) Remove(employeeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.methods, employeeID)
}

func (m *Mfa) ListVerified(_ context.Context, employeeID string) ([]goRecover.MfaMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []goRecover.MfaMethod
	for _, method := range m.methods[employeeID] {
		if method.Verified {
			out = append(out, method)
		}
	}
	return out, nil
}

func (m *Mfa) Deliver(_ context.Context, method goRecover.MfaMethod, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, Delivery{Method: method, Code: code})
	return nil
}

// Deliveries returns a copy of the device deliveries.
func (m *Mfa) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}

// Events records verification events.
type Events struct {
	mu     sync.Mutex
	events []goRecover.RecoveryEvent
	Err    error
}

func (e *Events) Record(_ context.Context, event goRecover.RecoveryEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.events = append(e.events, event)
	return nil
}

// All returns a copy of the recorded events.
func (e *Events) All() []goRecover.RecoveryEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]goRecover.RecoveryEvent(nil), e.events...)
}

// FixedScorer returns the same strength score for every candidate.
type FixedScorer int

func (s FixedScorer) Score(context.Context, string, []string) (int, error) {
	return int(s), nil
}

// Config returns a valid configuration with fresh keys and throttling off.
func Config(t *testing.T) goRecover.Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sealKey := make([]byte, 32)
	_, err = rand.Read(sealKey)
	require.NoError(t, err)

	cfg := goRecover.DefaultConfig()
	cfg.Recovery.CodeSealKey = sealKey
	cfg.Recovery.ResetURL = "https://reset.example.org/reset/{uid}"
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Throttle.EnableIdentifierThrottle = false
	cfg.Throttle.EnableIPThrottle = false
	return cfg
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Harness is a built Engine with inspectable collaborators.
type Harness struct {
	Engine    *goRecover.Engine
	Redis     *miniredis.Miniredis
	Clock     *Clock
	Config    goRecover.Config
	Directory *Directory
	Users     *Users
	Passwords *Passwords
	Mailer    *Mailer
	Mfa       *Mfa
	Events    *Events
	Mirror    *goRecover.ChannelEventLog
}

// Option adjusts a harness before Build.
type Option func(*goRecover.Config)

// NewHarness builds an Engine over miniredis. Every Option is applied to
// the configuration first.
func NewHarness(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := Config(t)
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Harness{
		Redis:     mr,
		Clock:     NewClock(time.Now().UTC().Truncate(time.Second)),
		Config:    cfg,
		Directory: &Directory{},
		Users:     &Users{},
		Passwords: &Passwords{},
		Mailer:    &Mailer{},
		Mfa:       &Mfa{},
		Events:    &Events{},
		Mirror:    goRecover.NewChannelEventLog(64),
	}

	engine, err := goRecover.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(h.Directory).
		WithUserStore(h.Users).
		WithPasswordStore(h.Passwords).
		WithMailer(h.Mailer).
		WithMfaGateway(h.Mfa).
		WithEventLog(h.Events).
		WithAuditMirror(h.Mirror).
		WithScorer(FixedScorer(4)).
		WithClock(h.Clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	h.Engine = engine
	return h
}

// AddPerson registers a directory entry with a primary address and a
// supervisor.
func (h *Harness) AddPerson(employeeID, username string) goRecover.DirectoryUser {
	u := goRecover.DirectoryUser{
		EmployeeID:      employeeID,
		Username:        username,
		Email:           username + "@example.org",
		FirstName:       "First",
		LastName:        "Last",
		SupervisorEmail: "supervisor." + username + "@example.org",
	}
	h.Directory.Add(u)
	return u
}

var codePattern = regexp.MustCompile(`\b\d{6,10}\b`)

// LastCode extracts the recovery code from the most recent email.
func (h *Harness) LastCode(t *testing.T) string {
	t.Helper()
	msg := h.Mailer.Last(t)
	code := codePattern.FindString(msg.TextBody)
	require.NotEmpty(t, code, "no code in %q", msg.TextBody)
	return code
}
