package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrInvalidConfig = errors.New("invalid config")
)

// Tools описывает внешние программы и бэкенды, к которым обращается конвейер.
type Tools struct {
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	Python  string `yaml:"python"`
	// Каталог, куда выкладываются встроенные python-хелперы
	ScriptsDir string `yaml:"scripts_dir"`

	ScriptBackend string `yaml:"script_backend"` // hf, openai, gemini
	ScriptModel   string `yaml:"script_model"`
	ImageBackend  string `yaml:"image_backend"` // diffusers, deck
	DeckPath      string `yaml:"deck_path"`
	TTSBackend    string `yaml:"tts_backend"` // coqui, openai
	TTSBin        string `yaml:"tts_bin"`
	TTSModel      string `yaml:"tts_model"`
	TTSUseCUDA    bool   `yaml:"tts_use_cuda"`
	MusicModel    string `yaml:"music_model"`

	SadTalkerHome   string `yaml:"sadtalker_home"`
	SadTalkerPython string `yaml:"sadtalker_python"`
	SadTalkerScript string `yaml:"sadtalker_script"`

	OpenAIKey     string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	GeminiKey     string `yaml:"-"`
	GeminiModel   string `yaml:"gemini_model"`
}

type Config struct {
	Prompt  string `yaml:"prompt"`
	Emotion string `yaml:"emotion"`
	Style   string `yaml:"style"`
	Speaker string `yaml:"speaker"`
	LoRA    string `yaml:"lora"`
	Music   string `yaml:"music"`
	Animate bool   `yaml:"animate"`
	Output  string `yaml:"output"`

	SegmentCount    int     `yaml:"segment_count"`
	SegmentDuration float64 `yaml:"segment_duration"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	FPS             int     `yaml:"fps"`
	FadeDuration    float64 `yaml:"fade_duration"`
	ZoomFactor      float64 `yaml:"zoom_factor"`
	ZoomMode        string  `yaml:"zoom_mode"`
	TransitionType  string  `yaml:"transition"`
	MusicVolume     float64 `yaml:"music_volume"`
	VideoEncoder    string  `yaml:"video_encoder"`
	Quality         int     `yaml:"quality"`
	Workers         int     `yaml:"workers"`

	KeepTemp      bool   `yaml:"keep_temp"`
	StoryboardIn  string `yaml:"storyboard"`
	StoryboardOut string `yaml:"storyboard_out"`
	EndCardURL    string `yaml:"endcard_url"`
	ShowStats     bool   `yaml:"show_stats"`
	BuildVersion  string `yaml:"-"`

	// Заданы явно в командной строке: при повторном использовании сценария
	// перекрывают сохранённые в нём значения
	PromptSet  bool `yaml:"-"`
	EmotionSet bool `yaml:"-"`
	StyleSet   bool `yaml:"-"`

	Tools Tools `yaml:"tools"`
}

// SegmentParams: параметры рендера одного клипа.
type SegmentParams struct {
	Width, Height int
	FPS           int
	Duration      float64
	ZoomMode      string
	ZoomFactor    float64
	FadeDuration  float64
	PageIndex     int
	// Точка фокуса в долях кадра (0..1), используется режимом smart
	FocusX, FocusY float64
	Animated       bool
}

func Default() *Config {
	home, _ := os.UserHomeDir()
	sadTalker := filepath.Join(home, "SadTalker")

	return &Config{
		Emotion:         "happy",
		Style:           "realistic",
		Music:           "auto",
		Output:          "output.mp4",
		SegmentCount:    6,
		SegmentDuration: 10,
		Width:           1280,
		Height:          720,
		FPS:             24,
		FadeDuration:    0.5,
		ZoomFactor:      1.05,
		ZoomMode:        "center",
		TransitionType:  "none",
		MusicVolume:     0.3,
		VideoEncoder:    "libx264",
		Quality:         23,
		Workers:         runtime.NumCPU(),
		Tools: Tools{
			FFmpeg:          "ffmpeg",
			FFprobe:         "ffprobe",
			Python:          "python3",
			ScriptBackend:   "hf",
			ScriptModel:     "mistralai/Mistral-7B-Instruct",
			ImageBackend:    "diffusers",
			TTSBackend:      "coqui",
			TTSBin:          "tts",
			TTSModel:        "tts_models/en/vctk/vits",
			MusicModel:      "facebook/musicgen-small",
			SadTalkerHome:   sadTalker,
			SadTalkerPython: filepath.Join(sadTalker, "venv", "bin", "python"),
			SadTalkerScript: filepath.Join(sadTalker, "sadtalker_cli.py"),
			OpenAIModel:     "gpt-4o-mini",
			GeminiModel:     "gemini-2.0-flash",
		},
	}
}

// LoadFile накладывает YAML-файл поверх текущих значений.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnv подхватывает .env (если есть) и переменные окружения.
// Отсутствие .env не ошибка.
func (c *Config) LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env: %w", err)
	}

	t := &c.Tools
	t.OpenAIKey = getenv("OPENAI_API_KEY", t.OpenAIKey)
	t.OpenAIBaseURL = getenv("OPENAI_BASE_URL", t.OpenAIBaseURL)
	t.GeminiKey = getenv("GEMINI_API_KEY", t.GeminiKey)
	t.Python = getenv("PROMPT2VIDEO_PYTHON", t.Python)
	t.TTSBin = getenv("TTS_BIN", t.TTSBin)

	if home := os.Getenv("SADTALKER_HOME"); home != "" {
		t.SadTalkerHome = home
		t.SadTalkerPython = filepath.Join(home, "venv", "bin", "python")
		t.SadTalkerScript = filepath.Join(home, "sadtalker_cli.py")
	}
	return nil
}

func (c *Config) Validate() error {
	// Сценарий приносит свой промпт
	if c.Prompt == "" && c.StoryboardIn == "" {
		return ErrEmptyPrompt
	}
	if c.SegmentCount <= 0 {
		return fmt.Errorf("%w: segment count must be positive, got %d", ErrInvalidConfig, c.SegmentCount)
	}
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("%w: segment duration must be positive, got %.2f", ErrInvalidConfig, c.SegmentDuration)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %d", ErrInvalidConfig, c.FPS)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: bad size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	// libx264 + yuv420p требуют чётных размеров
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("%w: size %dx%d must be even", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.FadeDuration < 0 || c.FadeDuration*2 >= c.SegmentDuration {
		return fmt.Errorf("%w: fade %.2fs does not fit a %.2fs segment", ErrInvalidConfig, c.FadeDuration, c.SegmentDuration)
	}
	if c.MusicVolume < 0 {
		return fmt.Errorf("%w: music volume must not be negative", ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}

	switch c.Tools.ScriptBackend {
	case "hf", "openai", "gemini":
	default:
		return fmt.Errorf("%w: unknown script backend %q", ErrInvalidConfig, c.Tools.ScriptBackend)
	}
	switch c.Tools.ImageBackend {
	case "diffusers":
	case "deck":
		if c.Tools.DeckPath == "" {
			return fmt.Errorf("%w: deck backend needs deck_path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown image backend %q", ErrInvalidConfig, c.Tools.ImageBackend)
	}
	switch c.Tools.TTSBackend {
	case "coqui", "openai":
	default:
		return fmt.Errorf("%w: unknown tts backend %q", ErrInvalidConfig, c.Tools.TTSBackend)
	}
	return nil
}

// Segment возвращает параметры клипа с индексом i.
func (c *Config) Segment(i int) SegmentParams {
	return SegmentParams{
		Width:        c.Width,
		Height:       c.Height,
		FPS:          c.FPS,
		Duration:     c.SegmentDuration,
		ZoomMode:     c.ZoomMode,
		ZoomFactor:   c.ZoomFactor,
		FadeDuration: c.FadeDuration,
		PageIndex:    i,
		FocusX:       0.5,
		FocusY:       0.5,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
