package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(ctx context.Context) error   { return nil }
func down(ctx context.Context) error { return errors.New("connection refused") }

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"all up", map[string]Check{"catalog": PingCheck(up)}, StatusUp},
		{"optional down", map[string]Check{"catalog": PingCheck(up), "redis": Optional(PingCheck(down))}, StatusDegraded},
		{"required down", map[string]Check{"catalog": PingCheck(down), "redis": Optional(PingCheck(down))}, StatusDown},
		{"none", map[string]Check{}, StatusUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", Optional(PingCheck(down)))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Message)

	c.Register("catalog", PingCheck(down))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestSlowCheckTimesOut(t *testing.T) {
	c := NewChecker()
	c.SetCheckTimeout(20 * time.Millisecond)
	c.Register("postgres", func(ctx context.Context) ComponentHealth {
		time.Sleep(time.Second)
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("catalog", PingCheck(up))

	start := time.Now()
	report := c.Run(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "check timed out", report.Components["postgres"].Message)
	assert.Equal(t, StatusUp, report.Components["catalog"].Status)
}

func TestPanickingCheckIsDown(t *testing.T) {
	c := NewChecker()
	c.Register("kafka", func(ctx context.Context) ComponentHealth { panic("nil reader") })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["kafka"].Message, "nil reader")
}

func TestRegisterReplaces(t *testing.T) {
	c := NewChecker()
	c.Register("redis", PingCheck(down))
	c.Register("redis", PingCheck(up))
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)
}
