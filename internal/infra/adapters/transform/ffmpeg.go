// Package transform applies the local media steps by shelling out to ffmpeg.
package transform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/metrics"
)

var _ adapter.MediaTransform = (*FFmpeg)(nil)

type FFmpeg struct {
	bin     string
	timeout time.Duration
	log     *zerolog.Logger
}

func NewFFmpeg(bin string, timeout time.Duration, log *zerolog.Logger) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	l := log.With().Str("component", "ffmpeg").Logger()
	return &FFmpeg{bin: bin, timeout: timeout, log: &l}
}

// AssertReady fails when the ffmpeg binary is not on PATH.
func (f *FFmpeg) AssertReady() error {
	if _, err := exec.LookPath(f.bin); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", f.bin, err)
	}
	return nil
}

func (f *FFmpeg) Apply(ctx context.Context, kind model.StepKind, inputs []string, cfg model.StepConfig, outDir string) (string, error) {
	start := time.Now()
	out, err := f.apply(ctx, kind, inputs, cfg, outDir)
	metrics.ObserveStep(string(kind), time.Since(start), err)
	return out, err
}

func (f *FFmpeg) apply(ctx context.Context, kind model.StepKind, inputs []string, cfg model.StepConfig, outDir string) (string, error) {
	if len(inputs) == 0 {
		return "", fmt.Errorf("%w: %s needs an input file", domain.ErrInvalidArgument, kind)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir outDir: %w", err)
	}
	out := filepath.Join(outDir, fmt.Sprintf("%s-%s.mp4", kind, uuid.NewString()[:8]))
	args, err := Args(kind, inputs, cfg, out)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, f.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg %s failed: %w; out=%s", kind, err, tail(b, 1024))
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		return "", fmt.Errorf("ffmpeg %s produced no output", kind)
	}
	f.log.Debug().Str("kind", string(kind)).Str("out", out).Msg("transform done")
	return out, nil
}

// Args builds the ffmpeg argument list for one step.
func Args(kind model.StepKind, inputs []string, cfg model.StepConfig, out string) ([]string, error) {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	switch c := cfg.(type) {
	case model.TextOverlayConfig:
		args = append(args, "-vf", drawtext(c), "-c:a", "copy")
	case model.AudioMixConfig:
		if len(inputs) < 2 {
			return nil, fmt.Errorf("%w: audio_mix needs the audio file", domain.ErrInvalidArgument)
		}
		vol := c.Volume
		if vol == 0 {
			vol = 1
		}
		if c.ReplaceOriginal {
			args = append(args, "-filter_complex", "[1:a]volume="+ftoa(vol)+"[aout]")
		} else {
			args = append(args, "-filter_complex",
				"[1:a]volume="+ftoa(vol)+"[a1];[0:a][a1]amix=inputs=2:duration=first[aout]")
		}
		args = append(args, "-map", "0:v", "-map", "[aout]", "-c:v", "copy", "-shortest")
	case model.ConcatConfig:
		if len(inputs) < 2 {
			return nil, fmt.Errorf("%w: concat needs at least one clip", domain.ErrInvalidArgument)
		}
		order := make([]int, 0, len(inputs))
		if c.Prepend {
			for i := 1; i < len(inputs); i++ {
				order = append(order, i)
			}
			order = append(order, 0)
		} else {
			for i := range inputs {
				order = append(order, i)
			}
		}
		var sb strings.Builder
		for _, i := range order {
			fmt.Fprintf(&sb, "[%d:v][%d:a]", i, i)
		}
		fmt.Fprintf(&sb, "concat=n=%d:v=1:a=1[v][a]", len(order))
		args = append(args, "-filter_complex", sb.String(), "-map", "[v]", "-map", "[a]")
	case model.ComposeConfig:
		if len(inputs) != len(c.Layers)+1 {
			return nil, fmt.Errorf("%w: compose has %d layers but %d files", domain.ErrInvalidArgument, len(c.Layers), len(inputs)-1)
		}
		args = append(args, "-filter_complex", overlays(c.Layers), "-map", "[v]", "-map", "0:a?", "-c:a", "copy")
	default:
		return nil, fmt.Errorf("%w: %s is not a local transform", domain.ErrUnknownStepKind, kind)
	}
	return append(args, "-movflags", "+faststart", out), nil
}

func drawtext(c model.TextOverlayConfig) string {
	size := c.FontSize
	if size <= 0 {
		size = 48
	}
	color := c.Color
	if color == "" {
		color = "white"
	}
	y := "h-text_h-60"
	switch c.Position {
	case "top":
		y = "60"
	case "center":
		y = "(h-text_h)/2"
	}
	return fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s:borderw=2:bordercolor=black:x=(w-text_w)/2:y=%s",
		escapeText(c.Text), size, color, y)
}

func overlays(layers []model.Layer) string {
	var sb strings.Builder
	prev := "0:v"
	for i, l := range layers {
		n := i + 1
		scale := l.Scale
		if scale <= 0 {
			scale = 1
		}
		opacity := l.Opacity
		if opacity <= 0 || opacity > 1 {
			opacity = 1
		}
		fmt.Fprintf(&sb, "[%d:v]scale=iw*%s:-1,format=rgba,colorchannelmixer=aa=%s[l%d];", n, ftoa(scale), ftoa(opacity), n)
		dst := fmt.Sprintf("v%d", n)
		if n == len(layers) {
			dst = "v"
		}
		fmt.Fprintf(&sb, "[%s][l%d]overlay=%d:%d[%s]", prev, n, l.X, l.Y, dst)
		if n < len(layers) {
			sb.WriteByte(';')
		}
		prev = dst
	}
	return sb.String()
}

var textEscaper = strings.NewReplacer(`\`, `\\`, `'`, `'\''`, `:`, `\:`, `%`, `\%`)

func escapeText(s string) string { return textEscaper.Replace(s) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
