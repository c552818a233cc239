package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aprovacriativos/backend/internal/config"
	"github.com/aprovacriativos/backend/internal/db"
	"github.com/aprovacriativos/backend/internal/gate"
	"github.com/aprovacriativos/backend/internal/models"
	"github.com/aprovacriativos/backend/internal/store"
)

var base = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func useTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(db.Config{
		DatabaseURL: fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	oldOpen, oldNow := openDB, now
	openDB = func() (*gorm.DB, config.AppConfig, error) {
		return gdb, config.AppConfig{PublicAppURL: "https://app.example.com", Gate: gate.DefaultPolicy()}, nil
	}
	now = func() time.Time { return base }
	t.Cleanup(func() {
		openDB, now = oldOpen, oldNow
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags() {
	adminName, adminRole, adminPassword = "", "admin", ""
	tokenMonth = "2026-04"
	unblockReason, unblockBy = "", ""
	exportSince, exportOut = 24*time.Hour, ""
}

func TestCreateAdmin(t *testing.T) {
	resetFlags()
	gdb := useTestDB(t)

	out, err := execute(t, "create-admin", "Ops@Example.com", "--name", "Ops Team", "--password", "S3cure!pass", "--role", "super_admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin created: ops@example.com")

	var admin models.AdminUser
	require.NoError(t, gdb.Where("email = ?", "ops@example.com").First(&admin).Error)
	assert.Equal(t, "super_admin", admin.Role)
	assert.Equal(t, "Ops Team", admin.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("S3cure!pass")))

	resetFlags()
	_, err = execute(t, "create-admin", "ops@example.com", "--password", "S3cure!pass")
	assert.ErrorContains(t, err, "already exists")
}

func TestCreateAdminRejectsWeakInput(t *testing.T) {
	gdb := useTestDB(t)

	_, err := createAdmin(gdb, "ops@example.com", "short", "", "admin")
	assert.Error(t, err)
	_, err = createAdmin(gdb, "ops@example.com", "S3cure!pass", "", "owner")
	assert.ErrorContains(t, err, "invalid role")
	_, err = createAdmin(gdb, "not-an-email", "S3cure!pass", "", "admin")
	assert.ErrorContains(t, err, "invalid email")
}

func TestCreateAdminPromptsForPassword(t *testing.T) {
	resetFlags()
	useTestDB(t)
	oldRead := readPassword
	readPassword = func(int) ([]byte, error) { return []byte("Pr0mpted!pass"), nil }
	t.Cleanup(func() { readPassword = oldRead })

	out, err := execute(t, "create-admin", "prompt@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "Admin created: prompt@example.com")
}

func TestIssueToken(t *testing.T) {
	resetFlags()
	gdb := useTestDB(t)
	agency := models.Agency{Name: "Studio Azul", Slug: "studio-azul"}
	require.NoError(t, gdb.Create(&agency).Error)
	client := models.Client{AgencyID: agency.ID, Name: "Padaria", Slug: "padaria"}
	require.NoError(t, gdb.Create(&client).Error)

	out, err := execute(t, "issue-token", client.ID, "--month", "2026-04")
	require.NoError(t, err)
	assert.Contains(t, out, "Client:  padaria")
	assert.Contains(t, out, "https://app.example.com/studio-azul/padaria?month=2026-04&token=")

	var n int64
	gdb.Model(&models.ApprovalToken{}).Where("client_id = ?", client.ID).Count(&n)
	assert.EqualValues(t, 1, n)
}

func logFailures(t *testing.T, gdb *gorm.DB, ip string, count int) {
	t.Helper()
	st := store.NewGormStore(gdb, gate.DefaultPolicy())
	for i := 0; i < count; i++ {
		require.NoError(t, st.LogValidationAttempt(context.Background(), gate.Attempt{
			IP:          ip,
			TokenPrefix: "wrongtoken...",
			UserAgent:   "curl/8",
			AttemptedAt: base.Add(-time.Duration(count-i) * time.Minute),
		}))
	}
}

func TestBlockedAndUnblock(t *testing.T) {
	resetFlags()
	gdb := useTestDB(t)

	out, err := execute(t, "blocked")
	require.NoError(t, err)
	assert.Contains(t, out, "No blocked IPs.")

	logFailures(t, gdb, "198.51.100.4", 10)

	out, err = execute(t, "blocked")
	require.NoError(t, err)
	assert.Contains(t, out, "198.51.100.4")
	assert.Contains(t, out, "permanent")

	_, err = execute(t, "unblock", "not-an-ip")
	assert.ErrorContains(t, err, "invalid IP address")

	out, err = execute(t, "unblock", "198.51.100.4", "--reason", "support ticket 42", "--by", "ops@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 198.51.100.4")

	var c models.IPClearance
	require.NoError(t, gdb.First(&c).Error)
	assert.Equal(t, "ops@example.com", c.ClearedBy)
	assert.Equal(t, "support ticket 42", c.Reason)

	resetFlags()
	out, err = execute(t, "blocked")
	require.NoError(t, err)
	assert.Contains(t, out, "No blocked IPs.")
}

func TestExportAttemptsToStdout(t *testing.T) {
	resetFlags()
	gdb := useTestDB(t)
	logFailures(t, gdb, "198.51.100.4", 3)

	out, err := execute(t, "export-attempts", "--since", "2m", "--out", "-")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,ip_address,token_attempted,success,user_agent,attempted_at", lines[0])
	assert.Contains(t, lines[1], "198.51.100.4,wrongtoken...,false,curl/8")
}

func TestExportAttemptsNeedsSFTPHost(t *testing.T) {
	resetFlags()
	useTestDB(t)
	_, err := execute(t, "export-attempts")
	assert.ErrorContains(t, err, "SFTP_HOST is not set")
}

func TestInstallProceduresNeedsPostgres(t *testing.T) {
	resetFlags()
	useTestDB(t)
	_, err := execute(t, "install-procedures")
	assert.ErrorContains(t, err, "needs a postgres")
}
