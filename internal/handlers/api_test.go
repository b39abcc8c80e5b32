package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostwatch/internal/alerts"
	"hostwatch/internal/monitor"
	"hostwatch/internal/policy"
	"hostwatch/internal/storage"
)

type fakeMonitor struct {
	tested   []alerts.Channel
	triggers int
}

func (f *fakeMonitor) TestChannel(_ context.Context, ch alerts.Channel) (alerts.Intent, error) {
	if _, err := alerts.ParseChannel(string(ch)); err != nil {
		return alerts.Intent{}, err
	}
	f.tested = append(f.tested, ch)
	return alerts.Intent{ID: "t", Channel: ch, Kind: alerts.KindStart, Value: 1, Threshold: 80, Test: true, Timestamp: now}, nil
}

func (f *fakeMonitor) Current(context.Context) monitor.Current {
	v := 12.5
	return monitor.Current{CPUUsage: &v, DiskUsage: map[string]*float64{}}
}

func (f *fakeMonitor) Debug() monitor.DebugInfo {
	return monitor.DebugInfo{MonitoringInterval: 60}
}

func (f *fakeMonitor) Trigger() { f.triggers++ }

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *policy.Store
	mon     *fakeMonitor
	history *storage.Memory
	handler http.Handler
}

func newFixture(t *testing.T, testRate int) *fixture {
	t.Helper()
	store, err := policy.NewStore(context.Background(),
		policy.NewFileBackend(filepath.Join(t.TempDir(), "monitoring.yaml")),
		[]string{"/", "/mnt/data"})
	require.NoError(t, err)

	f := &fixture{store: store, mon: &fakeMonitor{}, history: storage.NewMemory()}
	f.handler = New(Config{
		Policies: store,
		Monitor:  f.mon,
		History:  f.history,
		TestRate: testRate,
		Stats:    func() any { return map[string]int{"sweeps": 3} },
		Now:      func() time.Time { return now },
	}).Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestGetConfig(t *testing.T) {
	f := newFixture(t, 6)
	rec, body := f.do(t, http.MethodGet, "/api/monitoring-config", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	cfg := body["config"].(map[string]any)
	assert.Equal(t, false, cfg["global_enabled"])
	assert.Equal(t, 80.0, cfg["cpu_usage"].(map[string]any)["threshold"])
	assert.Equal(t, "8.8.8.8", cfg["network_connection"].(map[string]any)["test_host"])
	assert.Len(t, cfg["disk_usage"], 2)
	assert.Equal(t, []any{"/", "/mnt/data"}, body["available_mount_points"])

	// factory defaults ship every channel switched off
	cpu := cfg["cpu_usage"].(map[string]any)
	assert.Equal(t, false, cpu["enabled"])
	assert.Equal(t, false, cpu["reminder_enabled"])
	assert.Equal(t, false, cfg["network_connection"].(map[string]any)["reconnect_alert"])
	disk := cfg["disk_usage"].(map[string]any)["/mnt/data"].(map[string]any)
	assert.Equal(t, false, disk["enabled"])
	assert.Equal(t, 85.0, disk["threshold"])
}

func TestPutConfig(t *testing.T) {
	f := newFixture(t, 6)

	rec, body := f.do(t, http.MethodPost, "/api/monitoring-config", map[string]any{
		"config": map[string]any{
			"global_enabled": true,
			"cpu_usage":      map[string]any{"threshold": 92, "hysteresis_enabled": true, "hysteresis_duration": 30},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])

	got := f.store.Get()
	assert.True(t, got.GlobalEnabled)
	assert.Equal(t, 92.0, got.CPU.Threshold)
	assert.Equal(t, 30.0, got.CPU.HysteresisDuration)
	// untouched fields keep their value
	assert.False(t, got.CPU.Enabled)
	assert.Equal(t, 85.0, got.RAM.Threshold)
	assert.Len(t, got.Disk, 2)
	assert.Equal(t, 1, f.mon.triggers)
}

func TestPutConfig_DiskUsageReplacesMounts(t *testing.T) {
	f := newFixture(t, 6)
	require.Len(t, f.store.Get().Disk, 2)

	rec, _ := f.do(t, http.MethodPost, "/api/monitoring-config", map[string]any{
		"config": map[string]any{
			"disk_usage": map[string]any{
				"/": map[string]any{"enabled": true, "threshold": 90},
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := f.store.Get()
	require.Len(t, got.Disk, 1)
	assert.NotContains(t, got.Disk, "/mnt/data")
	root := got.Disk["/"]
	assert.True(t, root.Enabled)
	assert.Equal(t, 90.0, root.Threshold)
	// fields not sent keep the mount's previous value
	assert.Equal(t, 300.0, root.ReminderInterval)
	assert.Equal(t, alerts.UnitSeconds, root.ReminderUnit)
}

func TestPutConfig_InvalidKeepsPrevious(t *testing.T) {
	f := newFixture(t, 6)
	before := f.store.Get()

	rec, body := f.do(t, http.MethodPost, "/api/monitoring-config", map[string]any{
		"config": map[string]any{
			"ram_usage":           map[string]any{"reminder_enabled": true, "reminder_interval": 0},
			"monitoring_interval": 0,
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Len(t, body["errors"], 2)
	assert.Equal(t, before, f.store.Get())
	assert.Equal(t, 0, f.mon.triggers)
}

func TestPutConfig_NullResets(t *testing.T) {
	f := newFixture(t, 6)
	_, err := f.store.SetGlobalEnabled(context.Background(), true)
	require.NoError(t, err)

	rec, _ := f.do(t, http.MethodPost, "/api/monitoring-config", map[string]any{"config": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, policy.Defaults([]string{"/", "/mnt/data"}), f.store.Get())
}

func TestPutConfig_BadJSON(t *testing.T) {
	f := newFixture(t, 6)
	req := httptest.NewRequest(http.MethodPost, "/api/monitoring-config", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitoringStatus(t *testing.T) {
	f := newFixture(t, 6)

	rec, body := f.do(t, http.MethodPost, "/api/monitoring-status", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["enabled"])

	_, body = f.do(t, http.MethodGet, "/api/monitoring-status", nil)
	assert.Equal(t, true, body["global_enabled"])
	assert.Equal(t, 60.0, body["monitoring_interval"])
}

func TestMonitoringTest(t *testing.T) {
	f := newFixture(t, 6)

	rec, body := f.do(t, http.MethodPost, "/api/monitoring-test", map[string]any{"parameter": "ram_usage"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["message"], "[TEST] RAM usage alert")

	rec, _ = f.do(t, http.MethodPost, "/api/monitoring-test", map[string]any{"parameter": "disk_usage"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/monitoring-test", map[string]any{"parameter": "gpu"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// empty body tests cpu
	rec, _ = f.do(t, http.MethodPost, "/api/monitoring-test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []alerts.Channel{alerts.ChannelRAM, alerts.DiskChannel("/"), alerts.ChannelCPU}, f.mon.tested)
}

func TestMonitoringTest_RateLimited(t *testing.T) {
	f := newFixture(t, 1)

	rec, _ := f.do(t, http.MethodPost, "/api/monitoring-test", map[string]any{"parameter": "cpu_usage"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/monitoring-test", map[string]any{"parameter": "cpu_usage"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestChartData(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, f.history.Record(ctx, alerts.ChannelCPU, float64(i), now.Add(-time.Duration(i)*time.Minute)))
	}
	require.NoError(t, f.history.Record(ctx, alerts.ChannelCPU, 99, now.Add(-2*time.Hour)))
	require.NoError(t, f.history.Record(ctx, alerts.DiskChannel("/mnt/data"), 70, now))

	rec, body := f.do(t, http.MethodGet, "/api/chart-data/cpu_usage?range=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["values"], 5)
	assert.Len(t, body["timestamps"], 5)
	assert.Equal(t, "1h", body["range"])

	_, body = f.do(t, http.MethodGet, "/api/chart-data/cpu_usage", nil)
	assert.Len(t, body["values"], 6)

	_, body = f.do(t, http.MethodGet, "/api/chart-data/disk_usage?mount=/mnt/data", nil)
	assert.Equal(t, []any{70.0}, body["values"])

	rec, _ = f.do(t, http.MethodGet, "/api/chart-data/cpu_usage?range=1y", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/chart-data/gpu", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/reset-chart-data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = f.do(t, http.MethodGet, "/api/chart-data/cpu_usage", nil)
	assert.Empty(t, body["values"])
}

func TestInfoEndpoints(t *testing.T) {
	f := newFixture(t, 6)

	_, body := f.do(t, http.MethodGet, "/api/current-metrics", nil)
	assert.Equal(t, 12.5, body["metrics"].(map[string]any)["cpu_usage"])

	_, body = f.do(t, http.MethodGet, "/api/monitoring-debug", nil)
	assert.Equal(t, 60.0, body["debug_info"].(map[string]any)["monitoring_interval"])

	rec, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	_, body = f.do(t, http.MethodGet, "/stats", nil)
	assert.Equal(t, 3.0, body["sweeps"])

	rec, _ = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/monitoring-config", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
