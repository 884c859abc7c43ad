package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
)

func TestArgs(t *testing.T) {
	t.Run("text overlay escapes and positions", func(t *testing.T) {
		args, err := Args(model.StepTextOverlay, []string{"in.mp4"},
			model.TextOverlayConfig{Text: "it's 50%: go", Position: "top"}, "out.mp4")
		if err != nil {
			t.Fatal(err)
		}
		vf := args[indexOf(args, "-vf")+1]
		if !strings.Contains(vf, `it'\''s 50\%\: go`) || !strings.Contains(vf, ":y=60") {
			t.Fatalf("drawtext = %s", vf)
		}
		if args[len(args)-1] != "out.mp4" {
			t.Fatalf("output must be last, got %v", args)
		}
	})

	t.Run("concat prepend puts clips first", func(t *testing.T) {
		args, err := Args(model.StepConcat, []string{"in.mp4", "intro.mp4"},
			model.ConcatConfig{ClipURLs: []string{"x"}, Prepend: true}, "out.mp4")
		if err != nil {
			t.Fatal(err)
		}
		fc := args[indexOf(args, "-filter_complex")+1]
		if fc != "[1:v][1:a][0:v][0:a]concat=n=2:v=1:a=1[v][a]" {
			t.Fatalf("filter = %s", fc)
		}
	})

	t.Run("audio mix keeps original unless replaced", func(t *testing.T) {
		args, _ := Args(model.StepAudioMix, []string{"in.mp4", "a.mp3"}, model.AudioMixConfig{AudioURL: "a", Volume: 0.5}, "o.mp4")
		if fc := args[indexOf(args, "-filter_complex")+1]; !strings.Contains(fc, "amix=inputs=2") || !strings.Contains(fc, "volume=0.5") {
			t.Fatalf("filter = %s", fc)
		}
		args, _ = Args(model.StepAudioMix, []string{"in.mp4", "a.mp3"}, model.AudioMixConfig{AudioURL: "a", ReplaceOriginal: true}, "o.mp4")
		if fc := args[indexOf(args, "-filter_complex")+1]; strings.Contains(fc, "amix") {
			t.Fatalf("replace should not mix: %s", fc)
		}
	})

	t.Run("compose chains overlays", func(t *testing.T) {
		cfg := model.ComposeConfig{Layers: []model.Layer{{URL: "a", X: 10, Y: 20}, {URL: "b", Scale: 0.5, Opacity: 0.8}}}
		args, err := Args(model.StepCompose, []string{"in.mp4", "a.png", "b.png"}, cfg, "o.mp4")
		if err != nil {
			t.Fatal(err)
		}
		fc := args[indexOf(args, "-filter_complex")+1]
		if !strings.Contains(fc, "[0:v][l1]overlay=10:20[v1]") || !strings.Contains(fc, "[v1][l2]overlay=0:0[v]") {
			t.Fatalf("filter = %s", fc)
		}
		if _, err := Args(model.StepCompose, []string{"in.mp4"}, cfg, "o.mp4"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("layer/file mismatch should be rejected, got %v", err)
		}
	})

	t.Run("provider kinds are rejected", func(t *testing.T) {
		_, err := Args(model.StepFaceSwap, []string{"in.mp4"}, model.FaceSwapConfig{ReferenceImageURL: "x"}, "o.mp4")
		if !errors.Is(err, domain.ErrUnknownStepKind) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestApplyRunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "ffmpeg")
	// writes something to the last argument, like ffmpeg would
	script := "#!/bin/sh\nfor last; do :; done\necho video > \"$last\"\n"
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	log := zerolog.Nop()
	f := NewFFmpeg(fake, time.Minute, &log)

	out, err := f.Apply(context.Background(), model.StepTextOverlay, []string{"in.mp4"},
		model.TextOverlayConfig{Text: "hi"}, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if b, _ := os.ReadFile(out); strings.TrimSpace(string(b)) != "video" {
		t.Fatalf("unexpected output %q", b)
	}
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}
