package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", DirCheck(t.TempDir()))
	c.Register("embeddings", FlagCheck(func() bool { return false }, "embeddings not loaded"))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["index"].Status)
	assert.Equal(t, "embeddings not loaded", report.Components["embeddings"].Message)

	c.Register("redis", PingCheck(func(context.Context) error { return errors.New("refused") }))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestDirCheckMissing(t *testing.T) {
	h := DirCheck(filepath.Join(t.TempDir(), "missing"))(context.Background())
	assert.Equal(t, StatusDown, h.Status)
}

func TestReadyHandlerDegradedIsReady(t *testing.T) {
	c := NewChecker()
	c.Register("embeddings", FlagCheck(func() bool { return false }, "off"))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestReadyHandlerDown(t *testing.T) {
	c := NewChecker()
	c.Register("index", DirCheck(filepath.Join(t.TempDir(), "missing")))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestSoftDowngradesFailure(t *testing.T) {
	c := NewChecker()
	c.Register("redis", Soft(PingCheck(func(context.Context) error { return errors.New("refused") })))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)
}
