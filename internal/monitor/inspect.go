package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hostwatch/internal/alerts"
	"hostwatch/internal/policy"
)

// TestChannel sends a test notification for ch. It runs a synthetic breach
// through the evaluator on a scratch state with the channel forced on and no
// hysteresis, so the live alert state is not touched.
func (m *Monitor) TestChannel(ctx context.Context, ch alerts.Channel) (alerts.Intent, error) {
	ch, err := alerts.ParseChannel(string(ch))
	if err != nil {
		return alerts.Intent{}, err
	}
	set := m.policies.Get()
	p, ok := set.PolicyFor(ch)
	if !ok {
		return alerts.Intent{}, fmt.Errorf("%w: %s is not configured", alerts.ErrUnknownChannel, ch)
	}
	p.Enabled = true
	p.HysteresisEnabled = false

	now := m.now()
	var r alerts.Reading
	if ch.Metric() == alerts.MetricNetwork {
		r = alerts.ConnectivityReading(false, now)
	} else {
		r = alerts.Reading{Value: p.Threshold, Timestamp: now, IsBreach: true}
		if cur, err := m.sample(ctx, set, ch, p, now); err == nil {
			r.Value = cur.Value
		}
	}

	res, err := alerts.Evaluate(ch, r, p, alerts.InitialState())
	if err != nil {
		return alerts.Intent{}, err
	}
	if res.Intent == nil {
		return alerts.Intent{}, fmt.Errorf("test for %s produced no notification", ch)
	}
	in := *res.Intent
	in.Test = true
	if err := m.emitter.Emit(in); err != nil {
		return alerts.Intent{}, err
	}
	return in, nil
}

// Current is a one-shot sample of every metric. Nil values could not be
// read.
type Current struct {
	CPUUsage          *float64            `json:"cpu_usage"`
	RAMUsage          *float64            `json:"ram_usage"`
	CPUTemperature    *float64            `json:"cpu_temperature"`
	NetworkConnection *bool               `json:"network_connection"`
	DiskUsage         map[string]*float64 `json:"disk_usage"`
	Timestamp         time.Time           `json:"timestamp"`
}

// Current samples all channels of the active set regardless of their
// enabled flags. Nothing is evaluated or recorded.
func (m *Monitor) Current(ctx context.Context) Current {
	set := m.policies.Get()
	now := m.now()
	out := Current{DiskUsage: make(map[string]*float64, len(set.Disk)), Timestamp: now}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, ch := range set.Channels() {
		p, _ := set.PolicyFor(ch)
		g.Go(func() error {
			r, err := m.sample(gctx, set, ch, p, now)

			mu.Lock()
			defer mu.Unlock()
			switch ch.Metric() {
			case alerts.MetricDisk:
				out.DiskUsage[ch.Mount()] = valuePtr(r, err)
			case alerts.MetricCPU:
				out.CPUUsage = valuePtr(r, err)
			case alerts.MetricRAM:
				out.RAMUsage = valuePtr(r, err)
			case alerts.MetricTemperature:
				out.CPUTemperature = valuePtr(r, err)
			case alerts.MetricNetwork:
				if err == nil {
					up := !r.IsBreach
					out.NetworkConnection = &up
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func valuePtr(r alerts.Reading, err error) *float64 {
	if err != nil {
		return nil
	}
	v := r.Value
	return &v
}

// ChannelDebug is the alert state of one channel.
type ChannelDebug struct {
	Channel alerts.Channel `json:"channel"`
	Enabled bool           `json:"enabled"`
	alerts.ChannelState
}

// DebugInfo describes the monitor's current view.
type DebugInfo struct {
	GlobalEnabled      bool           `json:"global_enabled"`
	MonitoringInterval int            `json:"monitoring_interval"`
	Sweeps             uint64         `json:"sweeps"`
	LastSweep          *time.Time     `json:"last_sweep,omitempty"`
	Channels           []ChannelDebug `json:"channels"`
}

func (m *Monitor) Debug() DebugInfo {
	set := m.policies.Get()
	info := DebugInfo{
		GlobalEnabled:      set.GlobalEnabled,
		MonitoringInterval: set.MonitoringInterval,
		Sweeps:             m.sweeps.Load(),
		LastSweep:          m.lastSweep.Load(),
	}
	for _, ch := range set.Channels() {
		p, _ := set.PolicyFor(ch)
		info.Channels = append(info.Channels, ChannelDebug{
			Channel:      ch,
			Enabled:      p.Enabled,
			ChannelState: m.states.Get(ch),
		})
	}
	return info
}

var _ Policies = (*policy.Store)(nil)
