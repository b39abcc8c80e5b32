package processor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostwatch/internal/config"
)

type idleSource struct{}

func (idleSource) CPUUsage(context.Context) (float64, error)          { return 10, nil }
func (idleSource) RAMUsage(context.Context) (float64, error)          { return 20, nil }
func (idleSource) CPUTemperature(context.Context) (float64, error)    { return 40, nil }
func (idleSource) DiskUsage(context.Context, string) (float64, error) { return 30, nil }
func (idleSource) Connectivity(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = freeAddr(t)
	cfg.Policy.File = filepath.Join(t.TempDir(), "monitoring.yaml")
	cfg.Monitor.MountPoints = []string{"/"}
	return cfg
}

func TestProcessorRun(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, WithSource(idleSource{}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
}

func TestProcessorServesAPI(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, WithSource(idleSource{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	base := "http://" + cfg.HTTP.Addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/api/monitoring-status")
	require.NoError(t, err)
	var status struct {
		Success       bool `json:"success"`
		GlobalEnabled bool `json:"global_enabled"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.True(t, status.Success)
	assert.False(t, status.GlobalEnabled)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, cfg.Dispatch.QueueSize, stats.Queue.Capacity)
	assert.Nil(t, stats.Producer)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestProcessorInitFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.PruneSchedule = "not a schedule"
	p := New(cfg, WithSource(idleSource{}))

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history")
}
