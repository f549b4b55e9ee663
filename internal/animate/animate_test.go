package animate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/system"
	"github.com/ivlev/prompt2video/internal/system/systest"
)

func newTalker(fake *systest.FakeRunner) *SadTalker {
	return NewSadTalker(config.Tools{
		SadTalkerHome:   "/opt/SadTalker",
		SadTalkerPython: "/opt/SadTalker/venv/bin/python",
		SadTalkerScript: "/opt/SadTalker/sadtalker_cli.py",
	}, fake, nil)
}

func TestResultPath(t *testing.T) {
	got := ResultPath("/tmp/run", "/tmp/run/frame_3.png")
	want := filepath.Join("/tmp/run", "results", "driven_audio", "frame_3", "result.mp4")
	if got != want {
		t.Errorf("ResultPath = %s, want %s", got, want)
	}
}

func TestAnimateSuccess(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "frame_0.png")
	fake := &systest.FakeRunner{OnRun: func(c system.Command) (system.Result, error) {
		return system.Result{}, systest.Touch(ResultPath(systest.FlagValue(c.Args, "--result_dir"), image))
	}}

	got := newTalker(fake).Animate(context.Background(), image, filepath.Join(dir, "speech.wav"), dir)
	if got != ResultPath(dir, image) {
		t.Errorf("Expected animated clip, got %s", got)
	}

	calls := fake.Calls("python")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(calls))
	}
	c := calls[0]
	if c.Args[0] != "/opt/SadTalker/sadtalker_cli.py" {
		t.Errorf("Wrapper must be the first argument, got %s", c.Args[0])
	}
	if systest.FlagValue(c.Args, "--source_image") != image {
		t.Error("--source_image not passed")
	}
	if c.Dir != "/opt/SadTalker" {
		t.Errorf("Expected cwd SadTalker home, got %s", c.Dir)
	}
}

func TestAnimateFailureWritesLog(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "frame_1.png")
	fake := &systest.FakeRunner{OnRun: func(c system.Command) (system.Result, error) {
		return system.Result{}, &system.ToolError{
			Command: c.Name, ExitCode: 2,
			Stdout: "loading", Stderr: "no face detected",
			Err: errors.New("exit status 2"),
		}
	}}

	got := newTalker(fake).Animate(context.Background(), image, "a.wav", dir)
	if got != image {
		t.Errorf("Expected image fallback, got %s", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, ErrorLogName))
	if err != nil {
		t.Fatalf("Error log not written: %v", err)
	}
	want := "STDOUT:\nloading\n\nSTDERR:\nno face detected\n"
	if string(data) != want {
		t.Errorf("Error log = %q, want %q", data, want)
	}
}

func TestAnimateMissingOutput(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "frame_2.png")

	got := newTalker(&systest.FakeRunner{}).Animate(context.Background(), image, "a.wav", dir)
	if got != image {
		t.Errorf("Expected image fallback, got %s", got)
	}
	if _, err := os.Stat(filepath.Join(dir, ErrorLogName)); !os.IsNotExist(err) {
		t.Error("Error log must not be written when the tool succeeded")
	}
}
