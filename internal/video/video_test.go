package video

import (
	"context"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/system"
	"github.com/ivlev/prompt2video/internal/system/systest"
)

func newEncoder(fake *systest.FakeRunner) *FFmpegEncoder {
	return NewFFmpegEncoder(config.Default(), fake, nil)
}

func joined(args []string) string {
	return strings.Join(args, " ")
}

func TestClipArgsStill(t *testing.T) {
	e := newEncoder(&systest.FakeRunner{})
	p := config.Default().Segment(0)
	args := e.clipArgs(Clip{Visual: "/tmp/frame_0.png", Audio: "/tmp/speech_0.wav", Params: p}, "/tmp/clip_0.mp4")

	s := joined(args)
	for _, want := range []string{
		"-loop 1 -framerate 24 -i /tmp/frame_0.png",
		"-i /tmp/speech_0.wav",
		"-af apad",
		"-t 10.000",
		"-c:v libx264",
		"-crf 23",
		"-c:a aac",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("Args %q missing %q", s, want)
		}
	}
	if args[len(args)-1] != "/tmp/clip_0.mp4" {
		t.Errorf("Output must be last, got %s", args[len(args)-1])
	}
	if !strings.Contains(systest.FlagValue(args, "-vf"), "zoompan") {
		t.Error("Still clip must zoom")
	}
}

func TestClipArgsAnimatedSilent(t *testing.T) {
	e := newEncoder(&systest.FakeRunner{})
	p := config.Default().Segment(1)
	args := e.clipArgs(Clip{Visual: "/tmp/results/driven_audio/frame_1/result.mp4", Params: p}, "/tmp/clip_1.mp4")

	if systest.HasArg(args, "-loop") {
		t.Error("Animated clip must not loop the input")
	}
	vf := systest.FlagValue(args, "-vf")
	if !strings.Contains(vf, "tpad") || strings.Contains(vf, "zoompan") {
		t.Errorf("Unexpected animated filter %s", vf)
	}
	if !strings.Contains(joined(args), "anullsrc") {
		t.Error("Missing speech must give silence")
	}
}

func TestQualityArgs(t *testing.T) {
	tests := []struct {
		codec   string
		quality int
		want    string
	}{
		{"libx264", 23, "-crf 23 -preset medium"},
		{"h264_nvenc", 28, "-cq 28"},
		{"h264_videotoolbox", 75, "-b:v 7500k"},
	}
	for _, tt := range tests {
		e := &FFmpegEncoder{Codec: tt.codec, Quality: tt.quality}
		if got := joined(e.qualityArgs()); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.codec, got, tt.want)
		}
	}
}

func clipFiles(n int) []ClipFile {
	var clips []ClipFile
	for i := 0; i < n; i++ {
		clips = append(clips, ClipFile{Path: "/tmp/clip_" + string(rune('0'+i)) + ".mp4", Duration: 10})
	}
	return clips
}

func TestAssembleConcatWithMusic(t *testing.T) {
	e := newEncoder(&systest.FakeRunner{})
	args := e.assembleArgs(clipFiles(3), "/tmp/music.wav", "out.mp4")

	graph := systest.FlagValue(args, "-filter_complex")
	if !strings.Contains(graph, "[0:v][0:a][1:v][1:a][2:v][2:a]concat=n=3:v=1:a=1[v][a]") {
		t.Errorf("Unexpected concat graph %s", graph)
	}
	if !strings.Contains(graph, "[3:a]volume=0.30[bg]") {
		t.Errorf("Music must be at volume 0.3: %s", graph)
	}
	if !strings.Contains(graph, "[a][bg]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]") {
		t.Errorf("Music must be mixed under speech: %s", graph)
	}
	s := joined(args)
	if !strings.Contains(s, "-stream_loop -1 -i /tmp/music.wav") {
		t.Error("Music must be looped")
	}
	if !strings.Contains(s, "-map [v] -map [aout]") {
		t.Errorf("Wrong mapping: %s", s)
	}
	if !strings.Contains(s, "-movflags +faststart") || !strings.Contains(s, "-r 24") {
		t.Errorf("Missing output options: %s", s)
	}
}

func TestAssembleNoMusic(t *testing.T) {
	e := newEncoder(&systest.FakeRunner{})
	args := e.assembleArgs(clipFiles(2), "", "out.mp4")
	if systest.HasArg(args, "-stream_loop") || strings.Contains(joined(args), "amix") {
		t.Error("No music expected")
	}
	if !strings.Contains(joined(args), "-map [v] -map [a]") {
		t.Errorf("Wrong mapping: %s", joined(args))
	}
}

func TestAssembleXfade(t *testing.T) {
	e := newEncoder(&systest.FakeRunner{})
	e.TransitionType = "fade"
	args := e.assembleArgs(clipFiles(3), "", "out.mp4")

	graph := systest.FlagValue(args, "-filter_complex")
	for _, want := range []string{
		"[0:v][1:v]xfade=transition=fade:duration=0.500:offset=9.500[v1]",
		"[v1][2:v]xfade=transition=fade:duration=0.500:offset=19.000[v2]",
		"[0:a][1:a]acrossfade=d=0.500[a1]",
		"[a1][2:a]acrossfade=d=0.500[a2]",
	} {
		if !strings.Contains(graph, want) {
			t.Errorf("Graph %q missing %q", graph, want)
		}
	}
	if !strings.Contains(joined(args), "-map [v2] -map [a2]") {
		t.Errorf("Wrong mapping: %s", joined(args))
	}
	if d := e.TotalDuration(clipFiles(3)); d != 29 {
		t.Errorf("Expected 29s with overlaps, got %.2f", d)
	}
}

func TestAssembleRunsFFmpeg(t *testing.T) {
	fake := &systest.FakeRunner{}
	e := newEncoder(fake)
	if err := e.Assemble(context.Background(), clipFiles(1), "", "out.mp4"); err != nil {
		t.Fatal(err)
	}
	if len(fake.Calls("ffmpeg")) != 1 {
		t.Error("Expected one ffmpeg call")
	}
	if err := e.Assemble(context.Background(), nil, "", "out.mp4"); err == nil {
		t.Error("Expected error for empty clip list")
	}
}

func TestIsVideoFile(t *testing.T) {
	for path, want := range map[string]bool{"a.mp4": true, "b.MOV": true, "c.png": false, "d": false} {
		if IsVideoFile(path) != want {
			t.Errorf("IsVideoFile(%s) != %v", path, want)
		}
	}
}

func TestRenderEndCard(t *testing.T) {
	img, err := RenderEndCard("https://example.com/watch", 320, 180)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 180 {
		t.Errorf("Unexpected size %v", img.Bounds())
	}
	if got := img.RGBAAt(2, 2); got != endCardBackground {
		t.Errorf("Corner must be background, got %v", got)
	}
	// В центре QR-кода есть и светлые модули
	hasWhite := false
	for x := 120; x < 200; x++ {
		if img.RGBAAt(x, 90) == (color.RGBA{255, 255, 255, 255}) {
			hasWhite = true
			break
		}
	}
	if !hasWhite {
		t.Error("QR code not drawn")
	}
}

func TestEncodeEndCardPipesFrame(t *testing.T) {
	var got int
	fake := &systest.FakeRunner{OnRun: func(c system.Command) (system.Result, error) {
		data, err := io.ReadAll(c.Stdin)
		got = len(data)
		return system.Result{}, err
	}}
	e := newEncoder(fake)
	p := config.Default().Segment(6)
	p.Width, p.Height, p.Duration = 64, 36, 3

	if err := e.EncodeEndCard(context.Background(), "https://example.com", p, "end.mp4"); err != nil {
		t.Fatal(err)
	}
	if got != 64*36*4 {
		t.Errorf("Expected one raw RGBA frame, got %d bytes", got)
	}
	args := fake.Calls("ffmpeg")[0].Args
	if systest.FlagValue(args, "-video_size") != "64x36" || systest.FlagValue(args, "-t") != "3.000" {
		t.Errorf("Unexpected args %v", args)
	}
}
