// Package storyboard is the YAML record of a run: the script and the files
// produced for each segment. A storyboard can be fed back in to skip the
// script stage and reuse images and speech that still exist.
package storyboard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const Version = "1"

type Storyboard struct {
	Version  string    `yaml:"version"`
	Prompt   string    `yaml:"prompt"`
	Emotion  string    `yaml:"emotion"`
	Style    string    `yaml:"style"`
	Music    string    `yaml:"music,omitempty"`
	Segments []Segment `yaml:"segments"`
}

type Segment struct {
	ID       int     `yaml:"id"`
	Text     string  `yaml:"text"`
	Image    string  `yaml:"image,omitempty"`
	Audio    string  `yaml:"audio,omitempty"`
	Visual   string  `yaml:"visual,omitempty"` // картинка или анимированный клип
	Animated bool    `yaml:"animated,omitempty"`
	Duration float64 `yaml:"duration"`
}

// New creates a storyboard for the given script texts.
func New(prompt, emotion, style string, texts []string, duration float64) *Storyboard {
	sb := &Storyboard{
		Version: Version,
		Prompt:  prompt,
		Emotion: emotion,
		Style:   style,
	}
	for i, text := range texts {
		sb.Segments = append(sb.Segments, Segment{ID: i, Text: text, Duration: duration})
	}
	return sb
}

// Write writes a storyboard to a YAML file
func Write(sb *Storyboard, path string) error {
	data, err := yaml.Marshal(sb)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// MediaDir is where Export puts the media of the storyboard at path:
// "out/story.yaml" keeps its files in "out/story_media".
func MediaDir(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_media"
}

// Export writes the storyboard to path together with copies of its images,
// speech and animated clips, so it stays reusable after the run directory is
// removed. sb itself is not modified.
func Export(sb *Storyboard, path string) error {
	dir := MediaDir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	out := *sb
	out.Segments = make([]Segment, len(sb.Segments))
	copied := map[string]string{}
	for i, seg := range sb.Segments {
		for _, field := range []*string{&seg.Image, &seg.Audio, &seg.Visual} {
			if *field == "" {
				continue
			}
			if dst, ok := copied[*field]; ok {
				*field = dst
				continue
			}
			dst := filepath.Join(absDir, fmt.Sprintf("%02d_%s", i, filepath.Base(*field)))
			if err := copyFile(*field, dst); err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			copied[*field] = dst
			*field = dst
		}
		out.Segments[i] = seg
	}
	return Write(&out, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, in); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read reads a storyboard from a YAML file
func Read(path string) (*Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sb Storyboard
	if err := yaml.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("parse storyboard %s: %w", path, err)
	}
	if len(sb.Segments) == 0 {
		return nil, fmt.Errorf("storyboard %s has no segments", path)
	}
	for i := range sb.Segments {
		sb.Segments[i].ID = i
	}
	return &sb, nil
}

// Reusable возвращает path, если файл ещё существует, иначе "".
func Reusable(path string) string {
	if path == "" {
		return ""
	}
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		return ""
	}
	return path
}
