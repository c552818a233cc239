package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aprovacriativos/backend/internal/db"
	"github.com/aprovacriativos/backend/internal/gate"
	"github.com/aprovacriativos/backend/internal/models"
	"github.com/aprovacriativos/backend/internal/notify"
	"github.com/aprovacriativos/backend/internal/store"
)

var now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(db.Config{
		DatabaseURL: fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func TestLevelFor(t *testing.T) {
	p := gate.DefaultPolicy()
	cases := []struct {
		ev   gate.SecurityEvent
		want AlertLevel
	}{
		{gate.SecurityEvent{Kind: gate.EventRepeatedFailures, FailedAttempts: 2}, AlertNone},
		{gate.SecurityEvent{Kind: gate.EventRepeatedFailures, FailedAttempts: 3}, AlertWarning},
		{gate.SecurityEvent{Kind: gate.EventRepeatedFailures, FailedAttempts: 5}, AlertCritical},
		{gate.SecurityEvent{Kind: gate.EventRateLimited, FailedAttempts: 0}, AlertCritical},
		{gate.SecurityEvent{Kind: gate.EventBlockedTemporary, FailedAttempts: 6}, AlertCritical},
		{gate.SecurityEvent{Kind: gate.EventRepeatedFailures, FailedAttempts: 10}, AlertPermanent},
		{gate.SecurityEvent{Kind: gate.EventBlockedPermanent}, AlertPermanent},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LevelFor(tc.ev, p), "%+v", tc.ev)
	}
}

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []notify.Payload
}

func (r *webhookRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var p notify.Payload
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&p))
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (r *webhookRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func TestSecurityAlertsAreSentOncePerLevelAndDay(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	st := store.NewGormStore(gdb, gate.DefaultPolicy())
	rec := &webhookRecorder{}
	hook := notify.NewWebhook(rec.server(t).URL, time.Second, 0)
	svc := NewSecurityAlertService(gdb, st, nil, hook, gate.DefaultPolicy())

	for i := 0; i < 3; i++ {
		require.NoError(t, st.LogValidationAttempt(ctx, gate.Attempt{
			IP: "9.9.9.9", UserAgent: "python-requests/2.31", AttemptedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	ev := gate.SecurityEvent{Kind: gate.EventRepeatedFailures, IP: "9.9.9.9", UserAgent: "python-requests/2.31", FailedAttempts: 3, OccurredAt: now.Add(3 * time.Second)}
	require.NoError(t, svc.Handle(ctx, ev))
	ev.FailedAttempts = 4
	require.NoError(t, svc.Handle(ctx, ev))
	assert.Equal(t, 1, rec.count())

	ev.FailedAttempts = 5
	require.NoError(t, svc.Handle(ctx, ev))
	assert.Equal(t, 2, rec.count())

	// Next UTC day starts a fresh series.
	ev.FailedAttempts = 3
	ev.OccurredAt = now.Add(24 * time.Hour)
	require.NoError(t, svc.Handle(ctx, ev))
	assert.Equal(t, 3, rec.count())

	var alerts []models.SecurityAlert
	require.NoError(t, gdb.Order("created_at ASC").Find(&alerts).Error)
	require.Len(t, alerts, 3)
	assert.Equal(t, "warning", alerts[0].AlertType)
	assert.Equal(t, "2026-03-10", alerts[0].AlertDate)
	assert.Equal(t, models.StringList{"python-requests/2.31"}, alerts[0].UserAgents)

	var activity int64
	require.NoError(t, gdb.Model(&models.ActivityLog{}).Where("entity = ?", "security_alert").Count(&activity).Error)
	assert.EqualValues(t, 3, activity)

	rec.mu.Lock()
	first := rec.payloads[0]
	rec.mu.Unlock()
	assert.Equal(t, "security", first.Type)
	assert.Equal(t, "security-system", first.Source)
	assert.Equal(t, "critical", first.Priority)
	assert.Equal(t, "9.9.9.9", first.Details["ip_address"])
}

type denyDeduper struct{ err error }

func (d denyDeduper) Claim(context.Context, string) (bool, error) { return false, d.err }

func (denyDeduper) Release(context.Context, string) error { return nil }

type memoryDeduper struct {
	mu       sync.Mutex
	keys     map[string]bool
	released []string
}

func (d *memoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	return true, nil
}

func (d *memoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	d.released = append(d.released, key)
	return nil
}

func TestSecurityAlertRespectsDeduper(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	st := store.NewGormStore(gdb, gate.DefaultPolicy())
	ev := gate.SecurityEvent{Kind: gate.EventRateLimited, IP: "8.8.4.4", OccurredAt: now}

	svc := NewSecurityAlertService(gdb, st, denyDeduper{}, nil, gate.DefaultPolicy())
	require.NoError(t, svc.Handle(ctx, ev))
	var n int64
	gdb.Model(&models.SecurityAlert{}).Count(&n)
	assert.Zero(t, n)

	// A broken deduper falls back to the table's unique index.
	svc = NewSecurityAlertService(gdb, st, denyDeduper{err: errors.New("redis down")}, nil, gate.DefaultPolicy())
	require.NoError(t, svc.Handle(ctx, ev))
	require.NoError(t, svc.Handle(ctx, ev))
	gdb.Model(&models.SecurityAlert{}).Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestSecurityAlertReleasesClaimWhenDeliveryFails(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	st := store.NewGormStore(gdb, gate.DefaultPolicy())

	var mu sync.Mutex
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	dedupe := &memoryDeduper{keys: map[string]bool{}}
	svc := NewSecurityAlertService(gdb, st, dedupe, notify.NewWebhook(srv.URL, time.Second, 0), gate.DefaultPolicy())
	ev := gate.SecurityEvent{Kind: gate.EventRateLimited, IP: "8.8.4.4", OccurredAt: now}

	require.Error(t, svc.Handle(ctx, ev))
	assert.Equal(t, []string{"8.8.4.4:critical:2026-03-10"}, dedupe.released)

	var n int64
	require.NoError(t, gdb.Model(&models.SecurityAlert{}).Count(&n).Error)
	assert.Zero(t, n)

	mu.Lock()
	status = http.StatusOK
	mu.Unlock()
	require.NoError(t, svc.Handle(ctx, ev))
	assert.Len(t, dedupe.released, 1)
	assert.True(t, dedupe.keys["8.8.4.4:critical:2026-03-10"])
	require.NoError(t, gdb.Model(&models.SecurityAlert{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestIssueApprovalLink(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	agency := models.Agency{Name: "Studio Azul", Slug: "studio-azul"}
	require.NoError(t, gdb.Create(&agency).Error)
	client := models.Client{AgencyID: agency.ID, Name: "Padaria", Slug: "padaria"}
	require.NoError(t, gdb.Create(&client).Error)

	svc := NewApprovalLinkService(gdb, "https://app.example.com")
	svc.now = func() time.Time { return now }

	link, err := svc.Issue(ctx, client.ID, "2026-04", nil)
	require.NoError(t, err)
	assert.Len(t, link.Token, 64)
	assert.Equal(t, 7, link.ExpiresInDays)
	assert.Equal(t, "padaria", link.ClientSlug)
	assert.Equal(t, now.Add(7*24*time.Hour), link.ExpiresAt)
	assert.Equal(t, "https://app.example.com/studio-azul/padaria?month=2026-04&token="+link.Token, link.ApprovalURL)

	st := store.NewGormStore(gdb, gate.DefaultPolicy())
	info, err := st.ValidateApprovalToken(ctx, link.Token, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "padaria", info.ClientSlug)
	assert.Equal(t, "2026-04", info.Month)

	_, err = svc.Issue(ctx, "missing", "2026-04", nil)
	assert.ErrorIs(t, err, ErrClientNotFound)

	_, err = svc.Issue(ctx, client.ID, "April", nil)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestWriteAttemptsCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteAttemptsCSV(&buf, []models.ValidationAttempt{
		{ID: 1, IPAddress: "1.1.1.1", TokenAttempted: "abcdefghij...", Success: false, UserAgent: "curl, 8", AttemptedAt: now},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,ip_address,token_attempted,success,user_agent,attempted_at", lines[0])
	assert.Equal(t, `1,1.1.1.1,abcdefghij...,false,"curl, 8",2026-03-10T12:00:00Z`, lines[1])
	assert.Equal(t, "attempts_20260310T120000Z.csv", ExportFileName(now))
}

type fakePruner struct {
	before, loginBefore time.Time
	err                 error
}

func (f *fakePruner) PruneAttempts(_ context.Context, before, _ time.Time) (int64, error) {
	f.before = before
	return 4, f.err
}

func (f *fakePruner) PruneLoginAttempts(_ context.Context, before time.Time) (int64, error) {
	f.loginBefore = before
	return 1, nil
}

func TestMaintenanceRunOnce(t *testing.T) {
	p := &fakePruner{}
	m := NewMaintenanceRunner(p, nil, 30*24*time.Hour)
	m.now = func() time.Time { return now }

	m.RunOnce(context.Background())
	assert.Equal(t, now.Add(-30*24*time.Hour), p.before)
	assert.Equal(t, now.Add(-24*time.Hour), p.loginBefore)

	// A failing prune does not stop the login cleanup.
	p.err = errors.New("db gone")
	p.loginBefore = time.Time{}
	m.RunOnce(context.Background())
	assert.Equal(t, now.Add(-24*time.Hour), p.loginBefore)
}

func TestMaintenanceStartStopsWithContext(t *testing.T) {
	p := &fakePruner{}
	m := NewMaintenanceRunner(p, nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance runner did not stop")
	}
}

type remoteFile struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (f *remoteFile) Close() error {
	f.closed = true
	return f.closeErr
}

func TestWriteRemoteReportsCloseError(t *testing.T) {
	f := &remoteFile{}
	create := func(string) (io.WriteCloser, error) { return f, nil }
	require.NoError(t, writeRemote(create, "exports/a.csv", []byte("id\n")))
	assert.True(t, f.closed)
	assert.Equal(t, "id\n", f.String())

	f = &remoteFile{closeErr: errors.New("failure flushing buffered writes")}
	err := writeRemote(create, "exports/a.csv", []byte("id\n"))
	assert.ErrorContains(t, err, "sftp close exports/a.csv")
	assert.True(t, f.closed)

	err = writeRemote(func(string) (io.WriteCloser, error) { return nil, errors.New("permission denied") }, "exports/a.csv", nil)
	assert.ErrorContains(t, err, "sftp create")
}
