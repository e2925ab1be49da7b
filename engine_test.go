package authcore

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeStore is an in-memory Store with error injection and call
// counters.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int
	byID    map[string]*Account
	byEmail map[string]string
	byUID   map[string]string

	createErr           error
	updateErr           error
	setDigestErr        error
	clearDigestErr      error
	countErr            error
	createCalls         int
	countCalls          int
	updateHashCalls     int
	setDigestCalls      int
	clearDigestCalls    int
	markConfirmCalls    int
	markDeactivateCalls int
	markDeactivatedAt   *time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
		byUID:   make(map[string]string),
	}
}

func (s *fakeStore) AccountByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	if !ok {
		return Account{}, ErrStoreNotFound
	}
	return *acct, nil
}

func (s *fakeStore) AccountByUID(_ context.Context, uid string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUID[uid]
	if !ok {
		return Account{}, ErrStoreNotFound
	}
	return *s.byID[id], nil
}

func (s *fakeStore) AccountByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Account{}, ErrStoreNotFound
	}
	return *s.byID[id], nil
}

func (s *fakeStore) CreateAccount(_ context.Context, input CreateAccountInput) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return Account{}, s.createErr
	}
	if _, exists := s.byEmail[input.Email]; exists {
		return Account{}, ErrStoreDuplicateEmail
	}
	s.nextID++
	acct := &Account{
		ID:           strconv.Itoa(s.nextID),
		UID:          input.UID,
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Provider:     input.Provider,
		Role:         input.Role,
		CreatedAt:    input.CreatedAt,
	}
	s.byID[acct.ID] = acct
	s.byEmail[acct.Email] = acct.ID
	s.byUID[acct.UID] = acct.ID
	return *acct, nil
}

func (s *fakeStore) CountAccounts(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	if s.countErr != nil {
		return 0, s.countErr
	}
	return int64(len(s.byID)), nil
}

func (s *fakeStore) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateHashCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	acct, ok := s.byID[id]
	if !ok {
		return ErrStoreNotFound
	}
	acct.PasswordHash = hash
	return nil
}

func (s *fakeStore) MarkEmailConfirmed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markConfirmCalls++
	acct, ok := s.byID[id]
	if !ok {
		return ErrStoreNotFound
	}
	acct.EmailConfirmed = true
	return nil
}

func (s *fakeStore) MarkDeactivated(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDeactivateCalls++
	acct, ok := s.byID[id]
	if !ok {
		return ErrStoreNotFound
	}
	acct.Deactivated = true
	acct.DeactivatedAt = &at
	s.markDeactivatedAt = &at
	return nil
}

func (s *fakeStore) SetEphemeralDigest(_ context.Context, id string, kind TokenKind, digest TokenDigest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setDigestCalls++
	if s.setDigestErr != nil {
		return s.setDigestErr
	}
	acct, ok := s.byID[id]
	if !ok {
		return ErrStoreNotFound
	}
	if kind == KindReset {
		acct.ResetToken = &digest
	} else {
		acct.ConfirmationToken = &digest
	}
	return nil
}

func (s *fakeStore) ClearEphemeralDigest(_ context.Context, id string, kind TokenKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearDigestCalls++
	if s.clearDigestErr != nil {
		return s.clearDigestErr
	}
	acct, ok := s.byID[id]
	if !ok {
		return ErrStoreNotFound
	}
	if kind == KindReset {
		acct.ResetToken = nil
	} else {
		acct.ConfirmationToken = nil
	}
	return nil
}

// recordingMailer captures sends and optionally fails them.
type recordingMailer struct {
	mu    sync.Mutex
	sends []sentMail
	err   error
}

type sentMail struct {
	email string
	kind  TokenKind
	raw   string
}

func (m *recordingMailer) Send(_ context.Context, account Account, kind TokenKind, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sends = append(m.sends, sentMail{email: account.Email, kind: kind, raw: rawToken})
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func (m *recordingMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends[len(m.sends)-1]
}

// testClock is a mutable fake time source.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.PrivateKey = []byte("unit-test-signing-secret")
	cfg.Metrics.Enabled = true
	return cfg
}

type engineOption func(*Builder)

func withEngineConfig(cfg Config) engineOption {
	return func(b *Builder) { b.WithConfig(cfg) }
}

func withMailer(m Mailer) engineOption {
	return func(b *Builder) { b.WithMailer(m) }
}

func withAudit(sink AuditSink) engineOption {
	return func(b *Builder) { b.WithAuditSink(sink) }
}

func newTestEngine(t *testing.T, store Store, opts ...engineOption) (*Engine, *testClock) {
	t.Helper()

	_, client := newTestRedis(t)
	clock := newTestClock()

	b := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithStore(store).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, clock
}

// registerTestAccount registers an account and confirms its email.
func registerTestAccount(t *testing.T, engine *Engine, email, pass string) *RegisterResult {
	t.Helper()

	result, err := engine.Register(context.Background(), RegisterRequest{
		Name:     "Test Account",
		Email:    email,
		Password: pass,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := engine.ConfirmEmail(context.Background(), email, result.ConfirmationToken); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	return result
}
