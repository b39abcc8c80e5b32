package sampler

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickTemperature(t *testing.T) {
	tests := []struct {
		name  string
		temps []sensors.TemperatureStat
		want  float64
		err   error
	}{
		{
			name: "coretemp preferred",
			temps: []sensors.TemperatureStat{
				{SensorKey: "cpu_thermal", Temperature: 40},
				{SensorKey: "coretemp_package_id_0", Temperature: 55},
			},
			want: 55,
		},
		{
			name:  "raspberry pi",
			temps: []sensors.TemperatureStat{{SensorKey: "cpu_thermal", Temperature: 48.3}},
			want:  48.3,
		},
		{
			name:  "none",
			temps: []sensors.TemperatureStat{{SensorKey: "nvme_composite", Temperature: 33}},
			err:   ErrNoSensor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickTemperature(tt.temps)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSystem_Local(t *testing.T) {
	if os.Getenv("SAMPLER_TEST") == "" {
		t.Skip("Skipping host sampling test, set SAMPLER_TEST=1 to run")
	}
	ctx := context.Background()
	s := &System{CPUWindow: 100 * time.Millisecond}

	cpuPct, err := s.CPUUsage(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cpuPct, 0.0)

	ram, err := s.RAMUsage(ctx)
	require.NoError(t, err)
	assert.Greater(t, ram, 0.0)

	d, err := s.DiskUsage(ctx, "/")
	require.NoError(t, err)
	assert.Greater(t, d, 0.0)

	ok, err := s.Connectivity(ctx, "127.0.0.1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
