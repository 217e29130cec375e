package diagnostics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// minLocalModelMemMB is the free-memory floor below which local model
// execution is not advertised.
const minLocalModelMemMB = 8192

// GPU describes one detected graphics card.
type GPU struct {
	Name string `json:"name"`
}

// Snapshot is a point-in-time view of host resources. The API serves it
// under /api/v1/system so dashboards can correlate lane pressure with
// host load.
type Snapshot struct {
	CPUModel   string  `json:"cpu_model"`
	CPUCores   int     `json:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent"`

	MemTotalMB     float64 `json:"mem_total_mb"`
	MemAvailableMB float64 `json:"mem_available_mb"`
	MemPercent     float64 `json:"mem_percent"`

	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent"`

	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`

	GPUs []GPU `json:"gpus,omitempty"`

	// LocalModelsViable reports whether the host has headroom for the
	// resolver's local-preferred levels.
	LocalModelsViable bool `json:"local_models_viable"`
}

// Collector gathers host metrics. Hardware identity is probed once and
// cached; usage numbers are read per call. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	lastCPUTotal float64
	lastCPUIdle  float64

	probed     bool
	cpuModel   string
	cpuCores   int
	cpuThreads int
	gpus       []GPU
	gpuProbed  time.Time
}

// NewCollector creates a host metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect gathers a snapshot. Individual probe failures leave their fields
// zero; collection itself never fails.
func (c *Collector) Collect() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Snapshot
	c.collectHardware(&s)
	c.collectCPU(&s)
	collectMemory(&s)
	collectDisk(&s)
	collectLoad(&s)

	s.LocalModelsViable = s.MemAvailableMB >= minLocalModelMemMB || len(s.GPUs) > 0
	return s
}

func (c *Collector) collectHardware(s *Snapshot) {
	if !c.probed {
		if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if cores, err := cpu.Counts(false); err == nil {
			c.cpuCores = cores
		}
		if threads, err := cpu.Counts(true); err == nil {
			c.cpuThreads = threads
		}
		c.probed = true
	}
	// GPUs re-probe rarely; cards do not come and go.
	if time.Since(c.gpuProbed) > time.Hour {
		c.gpus = probeGPUs()
		c.gpuProbed = time.Now()
	}

	s.CPUModel = c.cpuModel
	s.CPUCores = c.cpuCores
	s.CPUThreads = c.cpuThreads
	s.GPUs = append([]GPU(nil), c.gpus...)
}

// collectCPU derives usage from the delta against the previous call, so
// the first snapshot reports zero.
func (c *Collector) collectCPU(s *Snapshot) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}
	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		totalDelta := total - c.lastCPUTotal
		idleDelta := idle - c.lastCPUIdle
		if totalDelta > 0 {
			s.CPUPercent = (1 - idleDelta/totalDelta) * 100
		}
	}
	c.lastCPUTotal = total
	c.lastCPUIdle = idle
}

func collectMemory(s *Snapshot) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	s.MemTotalMB = float64(vm.Total) / 1024 / 1024
	s.MemAvailableMB = float64(vm.Available) / 1024 / 1024
	s.MemPercent = vm.UsedPercent
}

func collectDisk(s *Snapshot) {
	usage, err := disk.Usage("/")
	if err != nil {
		return
	}
	s.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	s.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	s.DiskPercent = usage.UsedPercent
}

func collectLoad(s *Snapshot) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	s.LoadAvg1 = avg.Load1
	s.LoadAvg5 = avg.Load5
	s.LoadAvg15 = avg.Load15
}

func probeGPUs() []GPU {
	info, err := ghw.GPU()
	if err != nil || info == nil {
		return nil
	}
	gpus := make([]GPU, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			switch {
			case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Vendor != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		gpus = append(gpus, GPU{Name: name})
	}
	return gpus
}
