package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/engine"
	"github.com/ivlev/prompt2video/internal/logging"
	"github.com/ivlev/prompt2video/internal/system"
)

// Заполняется при сборке: -ldflags "-X main.buildVersion=..."
var buildVersion = "dev"

type app struct {
	cfg        *config.Config
	configPath string
	envFile    string
	verbose    bool
	hwaccel    bool
	logger     *zap.Logger
}

func main() {
	if err := newApp().command().Execute(); err != nil {
		os.Exit(1)
	}
}

func newApp() *app {
	a := &app{cfg: config.Default()}
	a.cfg.Workers = system.DefaultWorkers()
	return a
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "prompt2video",
		Short: "Generate a one minute narrated video from a text prompt",
		Long: `Generate a one minute narrated video from a text prompt.
The prompt is turned into a short script; every part gets an image, a voice
over and optionally a talking-head animation, then everything is cut
together with background music.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
		RunE: a.runGenerate,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file with API keys and tool paths")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging, including external tool output")

	f := root.Flags()
	c := a.cfg
	f.StringVarP(&c.Prompt, "prompt", "p", "", "text prompt for the video (required unless --storyboard)")
	f.StringVar(&c.Emotion, "emotion", c.Emotion, "emotion of the script, images and voice")
	f.StringVar(&c.Style, "style", c.Style, "visual style: pixar, anime, realistic")
	f.StringVar(&c.Speaker, "speaker", "", "TTS model (tts_models/...), speaker id or a wav file to clone")
	f.StringVar(&c.LoRA, "lora", "", "LoRA weights for the diffusion model")
	f.StringVar(&c.Music, "music", c.Music, "background music: auto, none or a file/folder path")
	f.BoolVar(&c.Animate, "animate", false, "animate images with SadTalker")
	f.StringVarP(&c.Output, "output", "o", c.Output, "output video file")

	f.IntVar(&c.SegmentCount, "segments", c.SegmentCount, "number of script parts")
	f.Float64Var(&c.SegmentDuration, "segment-duration", c.SegmentDuration, "seconds per part")
	f.IntVar(&c.FPS, "fps", c.FPS, "frames per second")
	f.IntVar(&c.Width, "width", c.Width, "video width")
	f.IntVar(&c.Height, "height", c.Height, "video height")
	f.Float64Var(&c.FadeDuration, "fade", c.FadeDuration, "fade in/out seconds")
	f.Float64Var(&c.ZoomFactor, "zoom", c.ZoomFactor, "final zoom of still images")
	f.StringVar(&c.ZoomMode, "zoom-mode", c.ZoomMode, "zoom: center, top-left, top-right, bottom-left, bottom-right, random, smart, none")
	f.StringVar(&c.TransitionType, "transition", c.TransitionType, "xfade transition between parts: none, fade, wipeleft, slideup, dissolve...")
	f.Float64Var(&c.MusicVolume, "music-volume", c.MusicVolume, "background music volume")
	f.IntVar(&c.Workers, "workers", c.Workers, "parallel clip encoders")
	f.IntVar(&c.Quality, "quality", c.Quality, "x264 CRF, NVENC CQ or VideoToolbox bitrate/100k")
	f.BoolVar(&a.hwaccel, "hwaccel", false, "use a hardware H.264 encoder when available")

	f.BoolVar(&c.KeepTemp, "keep-temp", false, "keep intermediate files")
	f.StringVar(&c.StoryboardIn, "storyboard", "", "reuse a storyboard YAML instead of writing a new script")
	f.StringVar(&c.StoryboardOut, "storyboard-out", "", "save the storyboard YAML of this run, media is copied to <name>_media next to it")
	f.StringVar(&c.EndCardURL, "endcard-url", "", "append an end card with a QR code for this URL")
	f.BoolVar(&c.ShowStats, "stats", false, "print a performance report and append it to benchmark.log")

	f.StringVar(&c.Tools.ScriptBackend, "script-backend", c.Tools.ScriptBackend, "script generator: hf, openai, gemini")
	f.StringVar(&c.Tools.ImageBackend, "image-backend", c.Tools.ImageBackend, "image generator: diffusers, deck")
	f.StringVar(&c.Tools.DeckPath, "deck", "", "PDF or image folder for the deck image backend")
	f.StringVar(&c.Tools.TTSBackend, "tts-backend", c.Tools.TTSBackend, "speech: coqui, openai")

	root.AddCommand(newServeCmd(a), newOpenSoraCmd(a), newVersionCmd())
	return root
}

// setup накладывает YAML и .env поверх умолчаний, а флаги командной строки
// поверх них: значения заданных флагов запоминаются и применяются повторно.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if a.configPath != "" {
		fresh := config.Default()
		fresh.Workers = system.DefaultWorkers()
		*a.cfg = *fresh
		if err := a.cfg.LoadFile(a.configPath); err != nil {
			return err
		}
	}
	if err := a.cfg.LoadEnv(a.envFile); err != nil {
		return err
	}
	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	a.cfg.BuildVersion = buildVersion
	a.cfg.PromptSet = cmd.Flags().Changed("prompt")
	a.cfg.EmotionSet = cmd.Flags().Changed("emotion")
	a.cfg.StyleSet = cmd.Flags().Changed("style")

	logger, err := logging.New(a.verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	system.InitResourceLimits(logger)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) runGenerate(cmd *cobra.Command, args []string) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner := system.NewExecRunner(a.logger)
	if a.hwaccel {
		cfg.VideoEncoder = system.GetBestH264Encoder(ctx, runner, cfg.Tools.FFmpeg)
		if !cmd.Flags().Changed("quality") {
			cfg.Quality = system.DefaultQuality(cfg.VideoEncoder)
		}
		if cfg.VideoEncoder != "libx264" {
			a.logger.Info("Обнаружено аппаратное ускорение", zap.String("encoder", cfg.VideoEncoder))
		}
	}

	a.logger.Info("Generating video",
		zap.String("prompt", cfg.Prompt),
		zap.String("emotion", cfg.Emotion),
		zap.String("style", cfg.Style),
		zap.String("speaker", cfg.Speaker),
		zap.String("lora", cfg.LoRA),
		zap.String("music", cfg.Music),
		zap.Bool("animate", cfg.Animate),
		zap.String("output", cfg.Output),
	)

	stages, err := engine.NewStages(cfg, runner, a.logger)
	if err != nil {
		return err
	}
	defer stages.Close()

	out, err := engine.NewProject(cfg, stages, a.logger).Run(ctx)
	if err != nil {
		a.logger.Error("Generation failed", zap.Error(err))
		return err
	}

	a.logger.Info("Video saved", zap.String("path", out))
	fmt.Printf("Video saved to %s\n", out)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(buildVersion)
		},
	}
}
