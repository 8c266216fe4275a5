package monitor

import (
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Metrics is one sample of system utilization.
type Metrics struct {
	CPUPercent float64 // system-wide CPU utilization
	MemPercent float64 // total RAM in use
	Load1      float64
	Load5      float64
	Load15     float64
	HasLoad    bool    // load averages unavailable on some platforms
	ProcessRSS uint64  // this process's resident set, bytes
	ProcessCPU float64 // this process's CPU utilization
}

// SampleFunc produces one metrics sample. The production implementation
// is SampleSystem; tests inject their own.
type SampleFunc func() (Metrics, error)

// SampleSystem collects CPU, memory, load, and per-process utilization
// via gopsutil. Partial data (missing load averages, missing process
// stats) is tolerated; only a failure to read core CPU/memory state is
// an error.
func SampleSystem() (Metrics, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Metrics{}, fmt.Errorf("virtual memory: %w", err)
	}

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return Metrics{}, fmt.Errorf("cpu percent: %w", err)
	}

	m := Metrics{MemPercent: vm.UsedPercent}
	if len(percents) > 0 {
		m.CPUPercent = percents[0]
	}

	if avg, err := load.Avg(); err == nil {
		m.Load1 = avg.Load1
		m.Load5 = avg.Load5
		m.Load15 = avg.Load15
		m.HasLoad = true
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			m.ProcessRSS = info.RSS
		}
		if pct, err := proc.CPUPercent(); err == nil {
			m.ProcessCPU = pct
		}
	}

	return m, nil
}

// Critical thresholds above which a sample is reported as an ERROR
// event instead of the regular stats report.
const (
	criticalMemPercent = 90.0
	criticalLoad1      = 4.0
)

// Critical returns a non-empty error message when the sample crosses a
// critical threshold.
func (m Metrics) Critical() string {
	switch {
	case m.MemPercent > criticalMemPercent:
		return fmt.Sprintf("critical memory pressure: %.1f%%", m.MemPercent)
	case m.HasLoad && m.Load1 > criticalLoad1:
		return fmt.Sprintf("system overloaded: load %.2f", m.Load1)
	}
	return ""
}

// Report formats the sample as a consolidated stats message.
func (m Metrics) Report() string {
	var b strings.Builder
	b.WriteString("SYSTEM STATS:\n")
	fmt.Fprintf(&b, "  RAM: %.1f%%\n", m.MemPercent)
	if m.HasLoad {
		fmt.Fprintf(&b, "  Load Average: %.2f (1m), %.2f (5m), %.2f (15m)\n", m.Load1, m.Load5, m.Load15)
	} else {
		b.WriteString("  Load Average: N/A\n")
	}
	fmt.Fprintf(&b, "  Process: %.2f MB, CPU: %.1f%%", float64(m.ProcessRSS)/1024/1024, m.ProcessCPU)
	return b.String()
}
