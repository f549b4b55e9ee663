// Package systest provides a fake system.Runner for tests that must not
// start python, ffmpeg or any GPU tool.
package systest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ivlev/prompt2video/internal/system"
)

type FakeRunner struct {
	mu       sync.Mutex
	Commands []system.Command
	// OnRun, если задан, решает результат вызова
	OnRun func(c system.Command) (system.Result, error)
}

func (f *FakeRunner) Run(ctx context.Context, c system.Command) (system.Result, error) {
	if err := ctx.Err(); err != nil {
		return system.Result{}, err
	}
	f.mu.Lock()
	f.Commands = append(f.Commands, c)
	on := f.OnRun
	f.mu.Unlock()

	if on == nil {
		return system.Result{}, nil
	}
	return on(c)
}

// Calls возвращает вызовы программы name.
func (f *FakeRunner) Calls(name string) []system.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []system.Command
	for _, c := range f.Commands {
		if filepath.Base(c.Name) == name {
			out = append(out, c)
		}
	}
	return out
}

// FlagValue returns the argument following flag in args.
func FlagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func HasArg(args []string, arg string) bool {
	for _, a := range args {
		if a == arg {
			return true
		}
	}
	return false
}

// Touch creates a file with some content, making parents.
func Touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("fake"), 0644)
}

// TouchLastArg creates the file named by the last argument; ffmpeg puts the
// output path there.
func TouchLastArg(c system.Command) error {
	if len(c.Args) == 0 {
		return nil
	}
	last := c.Args[len(c.Args)-1]
	if strings.HasPrefix(last, "-") {
		return nil
	}
	return Touch(last)
}
