package alerts

import (
	"fmt"
	"strings"
)

// Metric identifies the kind of a monitored channel.
type Metric string

const (
	MetricCPU         Metric = "cpu_usage"
	MetricRAM         Metric = "ram_usage"
	MetricTemperature Metric = "cpu_temperature"
	MetricNetwork     Metric = "network_connection"
	MetricDisk        Metric = "disk_usage"
)

const diskSeparator = ":"

// Channel is the identifier of one monitored metric stream. Disk channels
// carry their mount path: "disk_usage:/mnt/data".
type Channel string

// Fixed channels.
const (
	ChannelCPU         = Channel(MetricCPU)
	ChannelRAM         = Channel(MetricRAM)
	ChannelTemperature = Channel(MetricTemperature)
	ChannelNetwork     = Channel(MetricNetwork)
)

// DiskChannel returns the channel for a disk mount.
func DiskChannel(mount string) Channel {
	return Channel(string(MetricDisk) + diskSeparator + mount)
}

// Metric returns the channel kind.
func (c Channel) Metric() Metric {
	if strings.HasPrefix(string(c), string(MetricDisk)+diskSeparator) {
		return MetricDisk
	}
	return Metric(c)
}

// Mount returns the mount path of a disk channel, or "" for other channels.
func (c Channel) Mount() string {
	mount, ok := strings.CutPrefix(string(c), string(MetricDisk)+diskSeparator)
	if !ok {
		return ""
	}
	return mount
}

func (c Channel) String() string { return string(c) }

// ParseChannel validates a channel identifier.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.TrimSpace(s))
	switch c.Metric() {
	case MetricCPU, MetricRAM, MetricTemperature, MetricNetwork:
		return c, nil
	case MetricDisk:
		if c.Mount() == "" {
			return "", fmt.Errorf("%w: %q has no mount path", ErrUnknownChannel, s)
		}
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}
