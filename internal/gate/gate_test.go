package gate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	policy   Policy
	attempts []Attempt
	tokens   map[string]TokenInfo

	blockErr    error
	countErr    error
	failedErr   error
	validateErr error
	logErr      error
	panicOn     string
}

func newMemStore(p Policy) *memStore {
	return &memStore{
		policy: p,
		tokens: map[string]TokenInfo{
			"good-token-abcdef0123456789": {ClientID: "c1", ClientSlug: "acme", ClientName: "ACME", Month: "2026-03"},
		},
	}
}

func (m *memStore) IsIPBlocked(_ context.Context, ip string, now time.Time) (BlockState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn == "block" {
		panic("boom")
	}
	if m.blockErr != nil {
		return BlockState{}, m.blockErr
	}
	var failures []time.Time
	for _, a := range m.attempts {
		if a.IP == ip && !a.Success {
			failures = append(failures, a.AttemptedAt)
		}
	}
	return EvaluateBlock(failures, now, m.policy), nil
}

func (m *memStore) count(ip string, since time.Time, failedOnly bool) int64 {
	var n int64
	for _, a := range m.attempts {
		if a.IP != ip || a.AttemptedAt.Before(since) {
			continue
		}
		if failedOnly && a.Success {
			continue
		}
		n++
	}
	return n
}

func (m *memStore) CountAttempts(_ context.Context, ip string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn == "count" {
		panic("boom")
	}
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count(ip, since, false), nil
}

func (m *memStore) CountFailedAttempts(_ context.Context, ip string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failedErr != nil {
		return 0, m.failedErr
	}
	return m.count(ip, since, true), nil
}

func (m *memStore) ValidateApprovalToken(_ context.Context, token string, _ time.Time) (*TokenInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.validateErr != nil {
		return nil, m.validateErr
	}
	info, ok := m.tokens[token]
	if !ok {
		return nil, ErrTokenInvalid
	}
	return &info, nil
}

func (m *memStore) LogValidationAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return m.logErr
	}
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memStore) logged() []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Attempt(nil), m.attempts...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []SecurityEvent
}

func (r *recordingNotifier) Dispatch(ev SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var start = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestGate(store Store, n Notifier) (*Gate, *fakeClock) {
	clock := &fakeClock{t: start}
	g := New(store, n, DefaultPolicy(), WithClock(clock.Now), WithLogger(zerolog.Nop()))
	return g, clock
}

const ip = "203.0.113.7"

func invalid(g *Gate) Result {
	return g.Validate(context.Background(), Request{IP: ip, UserAgent: "Mozilla/5.0", Token: "wrong-token-0000000000"})
}

func TestValidTokenSucceeds(t *testing.T) {
	store := newMemStore(DefaultPolicy())
	g, _ := newTestGate(store, nil)

	res := g.Validate(context.Background(), Request{IP: ip, UserAgent: "ua", Token: "good-token-abcdef0123456789"})
	require.Equal(t, http.StatusOK, res.Status)
	body := res.Body.(SuccessResponse)
	assert.True(t, body.Success)
	assert.Equal(t, "acme", body.ClientSlug)
	assert.Equal(t, "2026-03", body.Month)

	attempts := store.logged()
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "good-token...", attempts[0].TokenPrefix)
	assert.Equal(t, "ua", attempts[0].UserAgent)
}

func TestEscalationToPermanentBlock(t *testing.T) {
	store := newMemStore(DefaultPolicy())
	notifier := &recordingNotifier{}
	g, clock := newTestGate(store, notifier)

	type want struct {
		failed, remaining        int
		warn, tempWarn, permWarn bool
	}
	wants := []want{
		{1, 9, false, false, false},
		{2, 8, false, false, false},
		{3, 7, true, false, false},
		{4, 6, true, false, false},
		{5, 5, false, true, false},
		{6, 4, false, true, false},
	}
	prevRemaining := 10
	for i, w := range wants {
		res := invalid(g)
		require.Equal(t, http.StatusUnauthorized, res.Status, "attempt %d", i+1)
		body := res.Body.(InvalidTokenResponse)
		assert.Equal(t, KindInvalidToken, body.Error)
		assert.Equal(t, w.failed, body.FailedAttempts, "attempt %d", i+1)
		assert.Equal(t, w.remaining, body.AttemptsRemaining, "attempt %d", i+1)
		assert.Equal(t, w.warn, body.ShowWarning, "attempt %d", i+1)
		assert.Equal(t, w.tempWarn, body.ShowTemporaryBlockWarning, "attempt %d", i+1)
		assert.Equal(t, w.permWarn, body.ShowPermanentBlockWarning, "attempt %d", i+1)
		assert.LessOrEqual(t, body.AttemptsRemaining, prevRemaining)
		prevRemaining = body.AttemptsRemaining
		switch w.failed {
		case 5:
			assert.Contains(t, body.Message, "The next failed attempt will block your IP for 15 minutes")
		case 6:
			assert.Contains(t, body.Message, "your IP is now blocked for 15 minutes")
		}
		clock.Advance(time.Minute)
	}

	for i := 7; i <= 10; i++ {
		res := invalid(g)
		require.Equal(t, http.StatusTooManyRequests, res.Status, "attempt %d", i)
		body := res.Body.(BlockedTemporaryResponse)
		assert.Equal(t, KindBlockedTemporary, body.Error)
		assert.Equal(t, 15, body.BlockDurationMinutes)
		assert.Equal(t, i-1, body.FailedAttempts)
		require.NotNil(t, body.BlockedUntil)
		assert.True(t, body.BlockedUntil.After(clock.Now()))
		clock.Advance(time.Minute)
	}

	res := invalid(g)
	require.Equal(t, http.StatusTooManyRequests, res.Status)
	perm := res.Body.(BlockedPermanentResponse)
	assert.Equal(t, KindBlockedPermanent, perm.Error)
	assert.True(t, perm.ContactSupport)
	assert.Nil(t, perm.BlockedUntil)

	// A valid token does not help once the IP is permanently blocked.
	clock.Advance(24 * time.Hour)
	res = g.Validate(context.Background(), Request{IP: ip, UserAgent: "ua", Token: "good-token-abcdef0123456789"})
	assert.Equal(t, KindBlockedPermanent, res.Kind)

	assert.Len(t, store.logged(), 12)
	for _, a := range store.logged() {
		assert.False(t, a.Success)
	}
	assert.Contains(t, notifier.kinds(), EventRepeatedFailures)
	assert.Contains(t, notifier.kinds(), EventBlockedTemporary)
	assert.Contains(t, notifier.kinds(), EventBlockedPermanent)
}

func TestBurstLimit(t *testing.T) {
	store := newMemStore(DefaultPolicy())
	notifier := &recordingNotifier{}
	g, clock := newTestGate(store, notifier)
	ctx := context.Background()
	req := Request{IP: ip, UserAgent: "ua", Token: "good-token-abcdef0123456789"}

	for i := 0; i < 10; i++ {
		res := g.Validate(ctx, req)
		require.Equal(t, http.StatusOK, res.Status, "request %d", i+1)
		clock.Advance(time.Second)
	}

	res := g.Validate(ctx, req)
	require.Equal(t, http.StatusTooManyRequests, res.Status)
	body := res.Body.(RateLimitResponse)
	assert.Equal(t, KindRateLimited, body.Error)
	assert.Equal(t, 60, body.RetryAfter)
	assert.Equal(t, 0, body.AttemptsRemaining)
	assert.Equal(t, ip, body.IPAddress)
	assert.Equal(t, []EventKind{EventRateLimited}, notifier.kinds())

	// Other IPs are unaffected.
	other := req
	other.IP = "198.51.100.1"
	assert.Equal(t, http.StatusOK, g.Validate(ctx, other).Status)

	clock.Advance(61 * time.Second)
	assert.Equal(t, http.StatusOK, g.Validate(ctx, req).Status)
}

func TestBlockTakesPrecedenceOverBurst(t *testing.T) {
	store := newMemStore(DefaultPolicy())
	g, clock := newTestGate(store, nil)

	for i := 0; i < 6; i++ {
		invalid(g)
		clock.Advance(time.Second)
	}
	for i := 0; i < 6; i++ {
		res := invalid(g)
		assert.Contains(t, []Kind{KindBlockedTemporary, KindBlockedPermanent}, res.Kind)
		clock.Advance(time.Second)
	}
}

func TestTemporaryBlockExpires(t *testing.T) {
	store := newMemStore(DefaultPolicy())
	g, clock := newTestGate(store, nil)

	for i := 0; i < 6; i++ {
		invalid(g)
		clock.Advance(10 * time.Second)
	}
	assert.Equal(t, KindBlockedTemporary, invalid(g).Kind)

	clock.Advance(16 * time.Minute)
	res := g.Validate(context.Background(), Request{IP: ip, UserAgent: "ua", Token: "good-token-abcdef0123456789"})
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestStoreFailures(t *testing.T) {
	boom := errors.New("connection reset")
	ctx := context.Background()

	t.Run("block check error", func(t *testing.T) {
		store := newMemStore(DefaultPolicy())
		store.blockErr = boom
		g, _ := newTestGate(store, nil)
		res := invalid(g)
		assert.Equal(t, http.StatusInternalServerError, res.Status)
		assert.Equal(t, KindInternal, res.Kind)
		assert.Len(t, store.logged(), 1)
	})

	t.Run("token lookup error", func(t *testing.T) {
		store := newMemStore(DefaultPolicy())
		store.validateErr = boom
		g, _ := newTestGate(store, nil)
		res := invalid(g)
		assert.Equal(t, http.StatusInternalServerError, res.Status)
		assert.Len(t, store.logged(), 1)
	})

	t.Run("burst count error does not gate", func(t *testing.T) {
		store := newMemStore(DefaultPolicy())
		store.countErr = boom
		g, _ := newTestGate(store, nil)
		res := g.Validate(ctx, Request{IP: ip, Token: "good-token-abcdef0123456789"})
		assert.Equal(t, http.StatusOK, res.Status)
	})

	t.Run("failure count error falls back to block state", func(t *testing.T) {
		store := newMemStore(DefaultPolicy())
		g, clock := newTestGate(store, nil)
		for i := 0; i < 3; i++ {
			invalid(g)
			clock.Advance(time.Minute)
		}
		store.failedErr = boom
		body := invalid(g).Body.(InvalidTokenResponse)
		assert.Equal(t, 4, body.FailedAttempts)
		assert.Equal(t, 6, body.AttemptsRemaining)
		assert.True(t, body.ShowWarning)
	})

	t.Run("log error keeps count inclusive", func(t *testing.T) {
		store := newMemStore(DefaultPolicy())
		store.logErr = boom
		g, _ := newTestGate(store, nil)
		body := invalid(g).Body.(InvalidTokenResponse)
		assert.Equal(t, 1, body.FailedAttempts)
	})

	for _, stage := range []string{"block", "count"} {
		t.Run("panic in "+stage+" still logs the attempt", func(t *testing.T) {
			store := newMemStore(DefaultPolicy())
			store.panicOn = stage
			g, _ := newTestGate(store, nil)
			assert.Equal(t, KindInternal, invalid(g).Kind)
			attempts := store.logged()
			require.Len(t, attempts, 1)
			assert.False(t, attempts[0].Success)
			assert.Equal(t, ip, attempts[0].IP)
		})
	}
}

func TestOneAttemptPerRequest(t *testing.T) {
	store := newMemStore(DefaultPolicy())
	g, clock := newTestGate(store, nil)
	for i := 0; i < 25; i++ {
		if i%2 == 0 {
			invalid(g)
		} else {
			g.Validate(context.Background(), Request{IP: ip, Token: "good-token-abcdef0123456789"})
		}
		clock.Advance(3 * time.Second)
	}
	assert.Len(t, store.logged(), 25)
}
