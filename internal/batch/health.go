package batch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// HealthGate refuses to start a batch on a box that is already
// starved. OCR rasterization is memory hungry and the alternative is
// the OOM killer taking out a half-finished run.
type HealthGate struct {
	MinFreeMemory uint64
	MaxCPUPercent float64
	Force         bool
	Logger        *slog.Logger
}

// Check returns nil when the host has headroom for a run. Force skips
// the gate entirely for operator-supervised runs.
func (g *HealthGate) Check() error {
	log := g.Logger
	if log == nil {
		log = slog.Default()
	}
	if g.Force {
		log.Warn("health gate bypassed by operator")
		return nil
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("read memory stats: %w", err)
	}
	if g.MinFreeMemory > 0 && vm.Available < g.MinFreeMemory {
		return fmt.Errorf("available memory %d below floor %d", vm.Available, g.MinFreeMemory)
	}

	if g.MaxCPUPercent > 0 {
		// One-second sample window.
		percents, err := cpu.Percent(time.Second, false)
		if err != nil {
			return fmt.Errorf("read cpu stats: %w", err)
		}
		if len(percents) > 0 && percents[0] >= g.MaxCPUPercent {
			return fmt.Errorf("cpu utilization %.1f%% at or above ceiling %.1f%%", percents[0], g.MaxCPUPercent)
		}
	}

	log.Debug("health gate passed", "mem_available", vm.Available)
	return nil
}
