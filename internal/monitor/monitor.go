// Package monitor runs the sampling sweep: it reads every configured channel,
// feeds the readings through the alert evaluator and hands the resulting
// intents to an Emitter.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hostwatch/internal/alerts"
	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
	"hostwatch/internal/policy"
	"hostwatch/internal/sampler"
	"hostwatch/internal/state"
	"hostwatch/internal/storage"
)

// Emitter accepts notification intents. Emit must not block.
type Emitter interface {
	Emit(in alerts.Intent) error
}

// Policies supplies the active policy set.
type Policies interface {
	Get() policy.Set
}

// Options tunes a Monitor.
type Options struct {
	// Concurrency bounds how many channels are sampled at once.
	Concurrency int
	Now         func() time.Time
}

// Monitor owns the sweep loop.
type Monitor struct {
	source   sampler.Source
	policies Policies
	states   *state.Store
	history  storage.History
	emitter  Emitter

	concurrency int
	now         func() time.Time
	wake        chan struct{}

	sweeps    atomic.Uint64
	lastSweep atomic.Pointer[time.Time]
}

func New(source sampler.Source, policies Policies, states *state.Store, history storage.History, emitter Emitter, opts Options) *Monitor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		source:      source,
		policies:    policies,
		states:      states,
		history:     history,
		emitter:     emitter,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		wake:        make(chan struct{}, 1),
	}
}

// Run sweeps until ctx is cancelled. The interval is read from the policy set
// after every sweep, so edits take effect on the next wait.
func (m *Monitor) Run(ctx context.Context) error {
	log := logger.WithComponent("monitor")
	log.Info().Msg("monitor started")
	defer log.Info().Msg("monitor stopped")

	for {
		if err := m.Sweep(ctx, m.now()); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("sweep failed")
		}

		interval := m.policies.Get().Interval()
		if interval <= 0 {
			interval = policy.DefaultInterval * time.Second
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Trigger asks Run to sweep now instead of waiting for the interval.
func (m *Monitor) Trigger() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Sweep evaluates every configured channel once against a single policy
// snapshot. A failing channel is logged and skipped; it never stops the
// others.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
		m.sweeps.Add(1)
		m.lastSweep.Store(&now)
	}()

	set := m.policies.Get()
	channels := set.Channels()

	configured := make(map[alerts.Channel]struct{}, len(channels))
	for _, ch := range channels {
		configured[ch] = struct{}{}
	}
	for _, ch := range m.states.Prune(func(ch alerts.Channel) bool {
		_, ok := configured[ch]
		return ok
	}) {
		metrics.ForgetChannel(string(ch))
		log := logger.WithChannel("monitor", string(ch))
		log.Info().Msg("channel removed, state dropped")
	}

	if !set.GlobalEnabled {
		m.states.ResetAll()
		for _, ch := range channels {
			metrics.SetPhase(string(ch), string(alerts.PhaseOK))
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, ch := range channels {
		p, _ := set.PolicyFor(ch)
		g.Go(func() error {
			m.check(gctx, set, ch, p, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// check runs one channel through sample, evaluate, record and emit.
func (m *Monitor) check(ctx context.Context, set policy.Set, ch alerts.Channel, p alerts.Policy, now time.Time) {
	log := logger.WithChannel("monitor", string(ch))
	metric := string(ch.Metric())

	if !p.Enabled {
		_ = m.states.Apply(ch, func(st alerts.ChannelState) (alerts.ChannelState, error) {
			res, _ := alerts.Evaluate(ch, alerts.Reading{Timestamp: now}, p, st)
			return res.Next, nil
		})
		metrics.EvaluationsTotal.WithLabelValues(metric, "disabled").Inc()
		metrics.SetPhase(string(ch), string(alerts.PhaseOK))
		return
	}

	r, err := m.sample(ctx, set, ch, p, now)
	if err != nil {
		metrics.SampleErrors.WithLabelValues(metric).Inc()
		log.Warn().Err(err).Msg("sample failed")
		return
	}
	metrics.ReadingsTotal.WithLabelValues(metric).Inc()
	metrics.ReadingValue.WithLabelValues(string(ch)).Set(r.Value)

	var evalErr error
	err = m.states.Apply(ch, func(st alerts.ChannelState) (alerts.ChannelState, error) {
		res, err := alerts.Evaluate(ch, r, p, st)
		if errors.Is(err, alerts.ErrStaleReading) {
			return st, err
		}
		if err != nil {
			// invalid input resets the channel
			evalErr = err
			return res.Next, nil
		}

		if err := m.history.Record(ctx, ch, r.Value, r.Timestamp); err != nil {
			metrics.HistoryWriteErrors.Inc()
			log.Warn().Err(err).Msg("history record failed")
		}
		if res.Next.Phase != st.Phase {
			log.Info().
				Str("from", string(st.Phase)).
				Str("to", string(res.Next.Phase)).
				Float64("value", r.Value).
				Msg("phase changed")
		}
		if res.Intent != nil {
			m.emit(set, *res.Intent)
		}
		return res.Next, nil
	})

	switch {
	case errors.Is(err, alerts.ErrStaleReading):
		metrics.EvaluationsTotal.WithLabelValues(metric, "stale").Inc()
		log.Warn().Err(err).Msg("stale reading discarded")
		return
	case evalErr != nil:
		metrics.EvaluationsTotal.WithLabelValues(metric, "invalid").Inc()
		log.Error().Err(evalErr).Float64("value", r.Value).Msg("evaluation rejected")
	default:
		metrics.EvaluationsTotal.WithLabelValues(metric, "ok").Inc()
	}
	metrics.SetPhase(string(ch), string(m.states.Get(ch).Phase))
}

func (m *Monitor) emit(set policy.Set, in alerts.Intent) {
	log := logger.WithChannel("monitor", string(in.Channel))
	if !set.Deliverable(in) {
		log.Info().Str("kind", string(in.Kind)).Msg("notification muted by policy")
		return
	}
	if err := m.emitter.Emit(in); err != nil {
		log.Error().Err(err).Str("kind", string(in.Kind)).Str("intent_id", in.ID).Msg("emit failed")
	}
}

// sample reads ch and decides the breach flag.
func (m *Monitor) sample(ctx context.Context, set policy.Set, ch alerts.Channel, p alerts.Policy, now time.Time) (alerts.Reading, error) {
	var (
		v   float64
		err error
	)
	switch ch.Metric() {
	case alerts.MetricCPU:
		v, err = m.source.CPUUsage(ctx)
	case alerts.MetricRAM:
		v, err = m.source.RAMUsage(ctx)
	case alerts.MetricTemperature:
		v, err = m.source.CPUTemperature(ctx)
	case alerts.MetricDisk:
		v, err = m.source.DiskUsage(ctx, ch.Mount())
	case alerts.MetricNetwork:
		ok, err := m.source.Connectivity(ctx, set.Network.TestHost, set.Network.Timeout())
		if err != nil {
			return alerts.Reading{}, err
		}
		return alerts.ConnectivityReading(ok, now), nil
	default:
		return alerts.Reading{}, fmt.Errorf("%w: %s", alerts.ErrUnknownChannel, ch)
	}
	if err != nil {
		return alerts.Reading{}, err
	}
	return alerts.Reading{
		Value:     v,
		Timestamp: now,
		IsBreach:  alerts.IsBreach(ch.Metric(), v, p.Threshold),
	}, nil
}
