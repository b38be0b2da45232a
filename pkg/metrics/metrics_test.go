package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	require.NotNil(t, m)
	assert.True(t, m.Enabled())
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	require.NotNil(t, m)
	assert.False(t, m.Enabled())
}

func TestManager_RecordingMethodsDoNotPanicWhenDisabled(t *testing.T) {
	m := NoOpManager()

	assert.NotPanics(t, func() {
		m.RecordLeaseRefresh("ok")
		m.RecordLeaseLost()
		m.SetPartitionsOwned(3)
		m.ObserveTickDuration(time.Second)
		m.RecordPartitionQueryRetry("retried")
		m.RecordReconciliation(context.Background(), "ok", time.Millisecond)
	})
}

func TestManager_Handler_ExposesRegisteredMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	m := NewManager(cfg)

	m.RecordLeaseRefresh("ok")
	m.RecordLeaseLost()
	m.SetPartitionsOwned(5)
	m.ObserveTickDuration(250 * time.Millisecond)
	m.RecordPartitionQueryRetry("exhausted")
	m.RecordReconciliation(context.Background(), "ok", 100*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "lease_refresh_total")
	assert.Contains(t, body, "lease_lost_total")
	assert.Contains(t, body, "partitions_owned 5")
	assert.Contains(t, body, "sync_pipeline_tick_duration_seconds")
	assert.Contains(t, body, "partition_query_retries_total")
	assert.Contains(t, body, "reconciliations_total")
	assert.Contains(t, body, "reconciliation_duration_seconds")
}

func TestManager_Handler_DisabledReturnsNotFound(t *testing.T) {
	m := NoOpManager()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
