package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}

func InitResourceLimits(logger *zap.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("Не удалось получить лимит файлов", zap.Error(err))
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("Не удалось установить лимит файлов", zap.Error(err))
		return
	}
	logger.Debug("Лимит открытых файлов увеличен", zap.Uint64("nofile", uint64(rLimit.Cur)))
}

// FindLatestAudio ищет самый свежий аудио-файл в папке.
func FindLatestAudio(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !IsAudioFile(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено аудио-файлов", dir)
	}
	return latestFile, nil
}

func IsAudioFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// GetMediaDuration получает длительность файла через ffprobe.
func GetMediaDuration(ctx context.Context, r Runner, ffprobe, path string) (float64, error) {
	res, err := r.Run(ctx, Command{
		Name: ffprobe,
		Args: []string{"-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path},
	})
	if err != nil {
		return 0, err
	}

	s := strings.TrimSpace(string(res.Stdout))
	duration, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return duration, nil
}

// GetBestH264Encoder выбирает аппаратный энкодер, если ffmpeg его знает.
func GetBestH264Encoder(ctx context.Context, r Runner, ffmpeg string) string {
	// Приоритеты: VideoToolbox (macOS), NVENC, затем программный libx264
	res, err := r.Run(ctx, Command{Name: ffmpeg, Args: []string{"-hide_banner", "-encoders"}})
	if err != nil {
		return "libx264"
	}

	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		for _, line := range strings.Split(string(res.Stdout), "\n") {
			fields := strings.Fields(line)
			if len(fields) >= 2 && fields[1] == name {
				return name
			}
		}
	}
	return "libx264"
}

// DefaultQuality: разумное качество для выбранного энкодера.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// DefaultWorkers: число физических ядер (или логических, если gopsutil не смог).
func DefaultWorkers() int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

type HostStats struct {
	LogicalCPUs  int
	MemTotalMB   uint64
	MemUsedPct   float64
	ProcessRSSMB uint64
}

// CollectStats снимает состояние машины для отчёта о производительности.
func CollectStats(ctx context.Context) (HostStats, error) {
	var s HostStats

	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return s, fmt.Errorf("cpu counts: %w", err)
	}
	s.LogicalCPUs = n

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("virtual memory: %w", err)
	}
	s.MemTotalMB = vm.Total / 1024 / 1024
	s.MemUsedPct = vm.UsedPercent

	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			s.ProcessRSSMB = mi.RSS / 1024 / 1024
		}
	}
	return s, nil
}
