package audit

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRepositoryLogAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t))
	require.NoError(t, repo.EnsureSchema(ctx))

	req := httptest.NewRequest("POST", "/api/v1/alerts", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
	entry := FromRequest(req, "ops@example.com", "operator", ActionAlertSend, "alert", "low_voltage", map[string]any{"voltage": 10.5})
	require.NoError(t, repo.Log(ctx, entry))

	entries, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got := entries[0]
	assert.Equal(t, "10.0.0.7", got.IP)
	assert.Equal(t, ActionAlertSend, got.Action)
	assert.JSONEq(t, `{"voltage":10.5}`, string(got.Metadata))
	assert.Equal(t, DigestJSON(got.Metadata), got.PayloadDigest)
	assert.Contains(t, got.ID, "audit-")
}

func TestNewRepositoryNilDB(t *testing.T) {
	assert.Nil(t, NewRepository(nil))
	var repo *Repository
	assert.Error(t, repo.Log(context.Background(), Entry{}))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.4:5555"
	assert.Equal(t, "192.168.1.4", ClientIP(req))

	req.Header.Set("X-Real-IP", " 172.16.0.2 ")
	assert.Equal(t, "172.16.0.2", ClientIP(req))
}
