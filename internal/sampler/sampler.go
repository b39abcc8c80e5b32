// Package sampler reads host metrics.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"hostwatch/internal/logger"
	"hostwatch/internal/models"
)

// ErrNoSensor is returned when no CPU temperature sensor is available.
var ErrNoSensor = errors.New("no cpu temperature sensor")

// Source produces raw metric values. Percentages are 0-100, temperatures
// are in degrees Celsius.
type Source interface {
	CPUUsage(ctx context.Context) (float64, error)
	RAMUsage(ctx context.Context) (float64, error)
	CPUTemperature(ctx context.Context) (float64, error)
	DiskUsage(ctx context.Context, mount string) (float64, error)
	// Connectivity reports whether host answered within timeout. Only a
	// cancelled context is an error; an unreachable host is false.
	Connectivity(ctx context.Context, host string, timeout time.Duration) (bool, error)
}

// System samples the local host.
type System struct {
	// CPUWindow is how long CPU usage is measured over.
	CPUWindow time.Duration
	// Privileged uses raw ICMP sockets instead of unprivileged datagram pings.
	Privileged bool
}

// sensor name prefixes in order of preference
var temperatureSensors = []string{"coretemp", "cpu_thermal"}

func NewSystem() *System {
	return &System{CPUWindow: time.Second}
}

func (s *System) CPUUsage(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, s.CPUWindow, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pct) == 0 {
		return 0, errors.New("cpu percent: no data")
	}
	return pct[0], nil
}

func (s *System) RAMUsage(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.UsedPercent, nil
}

// CPUTemperature returns the first reading of the preferred sensor.
func (s *System) CPUTemperature(ctx context.Context) (float64, error) {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		return 0, fmt.Errorf("read sensors: %w", err)
	}
	return pickTemperature(temps)
}

func pickTemperature(temps []sensors.TemperatureStat) (float64, error) {
	sort.SliceStable(temps, func(i, j int) bool { return temps[i].SensorKey < temps[j].SensorKey })
	for _, prefix := range temperatureSensors {
		for _, t := range temps {
			if strings.HasPrefix(t.SensorKey, prefix) && t.Temperature > 0 {
				return t.Temperature, nil
			}
		}
	}
	return 0, ErrNoSensor
}

func (s *System) DiskUsage(ctx context.Context, mount string) (float64, error) {
	u, err := disk.UsageWithContext(ctx, mount)
	if err != nil {
		return 0, fmt.Errorf("disk usage %s: %w", mount, err)
	}
	return u.UsedPercent, nil
}

func (s *System) Connectivity(ctx context.Context, host string, timeout time.Duration) (bool, error) {
	log := logger.WithComponent("sampler")

	pinger, err := probing.NewPinger(host)
	if err != nil {
		// resolution failures count as no connectivity
		log.Debug().Err(err).Str("host", host).Msg("ping setup failed")
		return false, ctx.Err()
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(s.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Debug().Err(err).Str("host", host).Msg("ping failed")
		return false, nil
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}

// Partitions lists the mount points of physical partitions, normalized.
func (s *System) Partitions(ctx context.Context) ([]string, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	mounts := make([]string, 0, len(parts))
	for _, p := range parts {
		mounts = append(mounts, p.Mountpoint)
	}
	return models.NormalizeMounts(mounts), nil
}
