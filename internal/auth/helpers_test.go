package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/memstore"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/token"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *recordingMailer) last(t *testing.T) notify.Email {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type recordingNotifier struct {
	texts chan string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.texts <- text
	return nil
}

type fixture struct {
	svc      *auth.Service
	store    *memstore.Store
	devices  *memstore.Devices
	clock    *clock
	mailer   *recordingMailer
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

type fixtureOption func(*fixtureOpts)

type fixtureOpts struct {
	cfg    func(*auth.Config)
	store  func(*memstore.Store) auth.Store
	noDevs bool
}

func withConfig(fn func(*auth.Config)) fixtureOption {
	return func(o *fixtureOpts) { o.cfg = fn }
}

func withStore(fn func(*memstore.Store) auth.Store) fixtureOption {
	return func(o *fixtureOpts) { o.store = fn }
}

func withoutDevices() fixtureOption {
	return func(o *fixtureOpts) { o.noDevs = true }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	var o fixtureOpts
	for _, opt := range opts {
		opt(&o)
	}

	cfg := auth.DefaultConfig()
	if o.cfg != nil {
		o.cfg(&cfg)
	}
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec(token.Config{Secret: []byte("test-secret"), Algorithm: token.AlgHS256})
	require.NoError(t, err)

	f := &fixture{
		store:    memstore.New(),
		devices:  memstore.NewDevices(),
		clock:    clk,
		mailer:   &recordingMailer{},
		notifier: &recordingNotifier{texts: make(chan string, 16)},
		metrics:  metrics.New(),
	}
	var store auth.Store = f.store
	if o.store != nil {
		store = o.store(f.store)
	}
	deps := auth.Deps{
		Store:    store,
		Devices:  f.devices,
		Codec:    codec.WithClock(clk.Now),
		Hasher:   auth.BcryptHasher{Cost: bcrypt.MinCost},
		Mailer:   f.mailer,
		Notifier: f.notifier,
		Metrics:  f.metrics,
		Now:      clk.Now,
	}
	if o.noDevs {
		deps.Devices = nil
	}
	f.svc, err = auth.NewService(cfg, deps)
	require.NoError(t, err)
	return f
}

func (f *fixture) createUser(t *testing.T, email, password string) *entity.User {
	t.Helper()
	u, err := f.svc.CreateAccount(context.Background(), auth.NewAccount{Email: email, Password: password})
	require.NoError(t, err)
	return u
}

func (f *fixture) softDelete(t *testing.T, id string) {
	t.Helper()
	u, err := f.store.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	u.IsDeleted = true
	require.NoError(t, f.store.UpdateUser(context.Background(), u))
}
