package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/system"
)

// BenchmarkLog: файл, куда дописывается строка на каждый запуск со --stats.
var BenchmarkLog = "benchmark.log"

func (p *Project) report(ctx context.Context, totalTime time.Duration, segments int) {
	cfg := p.Config
	stats, err := system.CollectStats(ctx)
	if err != nil {
		p.Logger.Warn("Не удалось собрать статистику системы", zap.Error(err))
	}

	fmt.Print(p.formatReport(totalTime, segments, stats))

	// Логирование в файл
	logEntry := fmt.Sprintf("[%s] Build: %s | Prompt: %q | Segments: %d | Animate: %v | Total: %.2fs | Script: %.2fs | Media: %.2fs | Encode: %.2fs | Assemble: %.2fs | RSS: %dMB\n",
		time.Now().Format("2006-01-02 15:04:05"),
		cfg.BuildVersion,
		cfg.Prompt,
		segments,
		cfg.Animate,
		totalTime.Seconds(),
		p.timings.script.Seconds(),
		p.timings.media.Seconds(),
		p.timings.encode.Seconds(),
		p.timings.assemble.Seconds(),
		stats.ProcessRSSMB,
	)

	if dir := filepath.Dir(BenchmarkLog); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	f, err := os.OpenFile(BenchmarkLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		p.Logger.Warn("Не удалось записать benchmark.log", zap.Error(err))
		return
	}
	defer f.Close()
	f.WriteString(logEntry)
}

func (p *Project) formatReport(totalTime time.Duration, segments int, stats system.HostStats) string {
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Segments: %d\n"+
			"Total Time: %.2fs\n"+
			"Script: %.2fs\n"+
			"Images/Audio/Animation: %.2fs\n"+
			"Encoding: %.2fs\n"+
			"Assembly: %.2fs\n"+
			"Host: %d CPUs, %d MB RAM (%.1f%% used)\n"+
			"----------------------------\n",
		p.Config.BuildVersion, segments, totalTime.Seconds(),
		p.timings.script.Seconds(), p.timings.media.Seconds(),
		p.timings.encode.Seconds(), p.timings.assemble.Seconds(),
		stats.LogicalCPUs, stats.MemTotalMB, stats.MemUsedPct,
	)
}
