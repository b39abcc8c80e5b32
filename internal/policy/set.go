// Package policy holds the operator-editable alert configuration: the policy
// set, its validation and its persistence.
package policy

import (
	"sort"
	"time"

	"hostwatch/internal/alerts"
)

// NetworkPolicy is the alert policy of the connectivity channel plus the ping
// settings. Threshold is unused.
type NetworkPolicy struct {
	alerts.Policy `yaml:",inline"`

	TestHost string `json:"test_host" yaml:"test_host" validate:"required,hostname|ip"`
	// TestTimeout is in seconds.
	TestTimeout float64 `json:"test_timeout" yaml:"test_timeout" validate:"finite,gt=0,lte=60"`
	// ReconnectAlert controls whether recovery notifications are sent.
	ReconnectAlert bool `json:"reconnect_alert" yaml:"reconnect_alert"`
}

// Timeout returns the ping timeout.
func (n NetworkPolicy) Timeout() time.Duration {
	return time.Duration(n.TestTimeout * float64(time.Second))
}

// Set is the full policy configuration.
type Set struct {
	GlobalEnabled bool `json:"global_enabled" yaml:"global_enabled"`
	// MonitoringInterval is the sweep period in seconds.
	MonitoringInterval int `json:"monitoring_interval" yaml:"monitoring_interval" validate:"gte=1"`

	CPU         alerts.Policy            `json:"cpu_usage" yaml:"cpu_usage"`
	RAM         alerts.Policy            `json:"ram_usage" yaml:"ram_usage"`
	Temperature alerts.Policy            `json:"cpu_temperature" yaml:"cpu_temperature"`
	Network     NetworkPolicy            `json:"network_connection" yaml:"network_connection"`
	Disk        map[string]alerts.Policy `json:"disk_usage" yaml:"disk_usage" validate:"dive"`
}

// Interval returns the sweep period.
func (s Set) Interval() time.Duration {
	return time.Duration(s.MonitoringInterval) * time.Second
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	out := s
	if s.Disk != nil {
		out.Disk = make(map[string]alerts.Policy, len(s.Disk))
		for k, v := range s.Disk {
			out.Disk[k] = v
		}
	}
	return out
}

// Channels lists every channel the set configures, fixed channels first, then
// disks sorted by mount.
func (s Set) Channels() []alerts.Channel {
	chans := []alerts.Channel{
		alerts.ChannelCPU,
		alerts.ChannelRAM,
		alerts.ChannelTemperature,
		alerts.ChannelNetwork,
	}
	mounts := make([]string, 0, len(s.Disk))
	for m := range s.Disk {
		mounts = append(mounts, m)
	}
	sort.Strings(mounts)
	for _, m := range mounts {
		chans = append(chans, alerts.DiskChannel(m))
	}
	return chans
}

// PolicyFor returns the policy of ch. ok is false for a disk mount the set
// does not configure.
func (s Set) PolicyFor(ch alerts.Channel) (alerts.Policy, bool) {
	switch ch.Metric() {
	case alerts.MetricCPU:
		return s.CPU, true
	case alerts.MetricRAM:
		return s.RAM, true
	case alerts.MetricTemperature:
		return s.Temperature, true
	case alerts.MetricNetwork:
		return s.Network.Policy, true
	case alerts.MetricDisk:
		p, ok := s.Disk[ch.Mount()]
		return p, ok
	}
	return alerts.Policy{}, false
}

// Deliverable reports whether an intent produced under this set should be
// handed to the dispatcher. Network recoveries are muted unless
// reconnect_alert is on.
func (s Set) Deliverable(in alerts.Intent) bool {
	if in.Channel.Metric() == alerts.MetricNetwork && in.Kind == alerts.KindRecover {
		return s.Network.ReconnectAlert
	}
	return true
}

// Default values
const (
	DefaultInterval           = 60
	DefaultHysteresisDuration = 5
	DefaultTestHost           = "8.8.8.8"
	DefaultTestTimeout        = 5
)

// thresholdPolicy is a factory channel policy: configured but switched off,
// with reminders off until the operator opts in.
func thresholdPolicy(threshold, reminderSeconds float64) alerts.Policy {
	return alerts.Policy{
		Enabled:            false,
		Threshold:          threshold,
		HysteresisEnabled:  false,
		HysteresisDuration: DefaultHysteresisDuration,
		ReminderEnabled:    false,
		ReminderInterval:   reminderSeconds,
		ReminderUnit:       alerts.UnitSeconds,
	}
}

// DefaultDiskPolicy is the policy given to a mount with no configuration.
func DefaultDiskPolicy() alerts.Policy {
	return thresholdPolicy(85, 300)
}

// Defaults returns the factory policy set with a disk entry for every mount.
// Monitoring starts globally disabled.
func Defaults(mounts []string) Set {
	s := Set{
		GlobalEnabled:      false,
		MonitoringInterval: DefaultInterval,
		CPU:                thresholdPolicy(80, 300),
		RAM:                thresholdPolicy(85, 300),
		Temperature:        thresholdPolicy(70, 600),
		Network: NetworkPolicy{
			Policy:         thresholdPolicy(0, 300),
			TestHost:       DefaultTestHost,
			TestTimeout:    DefaultTestTimeout,
			ReconnectAlert: false,
		},
		Disk: make(map[string]alerts.Policy, len(mounts)),
	}
	for _, m := range mounts {
		s.Disk[m] = DefaultDiskPolicy()
	}
	return s
}

// WithMountDefaults returns a copy of s with a default entry for every mount
// in mounts the set does not configure.
func (s Set) WithMountDefaults(mounts []string) Set {
	out := s.Clone()
	if out.Disk == nil {
		out.Disk = make(map[string]alerts.Policy, len(mounts))
	}
	for _, m := range mounts {
		if _, ok := out.Disk[m]; !ok {
			out.Disk[m] = DefaultDiskPolicy()
		}
	}
	return out
}
