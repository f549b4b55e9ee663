// Package pyhelpers writes the embedded python helper scripts to disk so the
// configured interpreter can run them.
package pyhelpers

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	TextGen   = "text_gen.py"
	Diffusion = "sd_generate.py"
	MusicGen  = "musicgen.py"
)

var sources = map[string]string{
	TextGen:   textGenPy,
	Diffusion: diffusionPy,
	MusicGen:  musicGenPy,
}

// Install writes the helper called name into dir (if it is not there yet with
// the same content) and returns its path.
func Install(dir, name string) (string, error) {
	src, ok := sources[name]
	if !ok {
		return "", fmt.Errorf("unknown helper %q", name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create scripts dir: %w", err)
	}

	path := filepath.Join(dir, name)
	if existing, err := os.ReadFile(path); err == nil && string(existing) == src {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}
