package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"

	"github.com/vigil-agent/vigil/internal/metrics"
)

const bytesPerMB = 1024 * 1024

// LoadCollector reads the 1/5/15-minute load averages. Sensitive: the
// readings reflect run-queue pressure, so nothing else may run alongside.
type LoadCollector struct{}

func (LoadCollector) Name() string { return "load" }

func (LoadCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading load average: %w", err)
	}
	now := time.Now()
	return []metrics.MetricValue{
		{Name: "load_1min", Value: avg.Load1, Timestamp: now},
		{Name: "load_5min", Value: avg.Load5, Timestamp: now},
		{Name: "load_15min", Value: avg.Load15, Timestamp: now},
	}, nil
}

// CPUCollector samples total CPU utilization over SampleWindow and the
// current run-queue depth. Sensitive: sampling while other collectors burn
// CPU would inflate the reading.
type CPUCollector struct {
	// SampleWindow is how long to sample utilization for. Zero means 1s.
	SampleWindow time.Duration
}

func (CPUCollector) Name() string { return "cpu" }

func (c CPUCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	window := c.SampleWindow
	if window <= 0 {
		window = time.Second
	}
	percents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return nil, fmt.Errorf("sampling cpu: %w", err)
	}
	if len(percents) == 0 {
		return nil, fmt.Errorf("sampling cpu: no data")
	}
	now := time.Now()
	values := []metrics.MetricValue{
		{Name: "cpu_usage_percent", Value: percents[0], Unit: "%", Timestamp: now},
	}
	if misc, err := load.MiscWithContext(ctx); err == nil {
		values = append(values, metrics.MetricValue{
			Name: "cpu_queue_length", Value: float64(misc.ProcsRunning), Timestamp: now,
		})
	}
	return values, nil
}

// MemoryCollector reads virtual memory and swap usage.
type MemoryCollector struct{}

func (MemoryCollector) Name() string { return "memory" }

func (MemoryCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading virtual memory: %w", err)
	}
	now := time.Now()
	values := []metrics.MetricValue{
		{Name: "mem_used_percent", Value: vm.UsedPercent, Unit: "%", Timestamp: now},
		{Name: "mem_available_mb", Value: float64(vm.Available) / bytesPerMB, Unit: "MB", Timestamp: now},
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		values = append(values, metrics.MetricValue{
			Name: "swap_used_percent", Value: swap.UsedPercent, Unit: "%", Timestamp: now,
		})
	}
	return values, nil
}

// DiskCollector reads usage for each configured mount point.
type DiskCollector struct {
	// Mounts lists the mount points to sample. Empty means "/".
	Mounts []string
}

func (DiskCollector) Name() string { return "disk" }

func (c DiskCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	mounts := c.Mounts
	if len(mounts) == 0 {
		mounts = []string{"/"}
	}
	now := time.Now()
	var values []metrics.MetricValue
	var errs []error
	for _, mount := range mounts {
		usage, err := disk.UsageWithContext(ctx, mount)
		if err != nil {
			// One unmounted disk must not drop readings from the rest.
			errs = append(errs, fmt.Errorf("reading disk usage for %s: %w", mount, err))
			continue
		}
		values = append(values,
			metrics.MetricValue{Name: mountMetric("disk_used_percent", mount), Value: usage.UsedPercent, Unit: "%", Timestamp: now},
			metrics.MetricValue{Name: mountMetric("disk_free_mb", mount), Value: float64(usage.Free) / bytesPerMB, Unit: "MB", Timestamp: now},
		)
	}
	if len(values) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return values, nil
}

// mountMetric derives a stable metric name per mount: the root mount keeps
// the bare name, others get a sanitized suffix (/home -> _home).
func mountMetric(base, mount string) string {
	if mount == "/" {
		return base
	}
	suffix := strings.ReplaceAll(strings.Trim(mount, "/"), "/", "_")
	return base + "_" + suffix
}

// DiskIOCollector reads cumulative disk read/write volume across devices.
type DiskIOCollector struct{}

func (DiskIOCollector) Name() string { return "disk_io" }

func (DiskIOCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading disk io counters: %w", err)
	}
	var read, written uint64
	for _, c := range counters {
		read += c.ReadBytes
		written += c.WriteBytes
	}
	now := time.Now()
	return []metrics.MetricValue{
		{Name: "disk_read_mb_total", Value: float64(read) / bytesPerMB, Unit: "MB", Timestamp: now},
		{Name: "disk_write_mb_total", Value: float64(written) / bytesPerMB, Unit: "MB", Timestamp: now},
	}, nil
}

// NetworkCollector reads cumulative network volume across interfaces.
type NetworkCollector struct{}

func (NetworkCollector) Name() string { return "network" }

func (NetworkCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("reading network counters: %w", err)
	}
	if len(counters) == 0 {
		return nil, fmt.Errorf("reading network counters: no interfaces")
	}
	now := time.Now()
	return []metrics.MetricValue{
		{Name: "net_sent_mb_total", Value: float64(counters[0].BytesSent) / bytesPerMB, Unit: "MB", Timestamp: now},
		{Name: "net_recv_mb_total", Value: float64(counters[0].BytesRecv) / bytesPerMB, Unit: "MB", Timestamp: now},
	}, nil
}

// HostCollector reads uptime and the total process count.
type HostCollector struct{}

func (HostCollector) Name() string { return "host" }

func (HostCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading uptime: %w", err)
	}
	now := time.Now()
	values := []metrics.MetricValue{
		{Name: "uptime_hours", Value: float64(uptime) / 3600, Unit: "h", Timestamp: now},
	}
	if misc, err := load.MiscWithContext(ctx); err == nil {
		values = append(values, metrics.MetricValue{
			Name: "procs_total", Value: float64(misc.ProcsTotal), Timestamp: now,
		})
	}
	return values, nil
}
