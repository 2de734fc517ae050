// Package transcode wraps ffmpeg and ffprobe for the four primitive
// transforms the assembly pipeline is built from: reverse, concatenate,
// audio mixing and muxing audio onto video.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// stderrTail bounds the diagnostic text kept from a failed encoder run.
const stderrTail = 2048

// DefaultScoreGain attenuates the background track to 30% (about -10.5 dB).
const DefaultScoreGain = 0.3

// EncodeError reports a failed encoder invocation with the tool's diagnostics.
type EncodeError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s failed: %v: %s", e.Op, e.Err, e.Stderr)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ConcatJob joins Inputs, in order, by stream copy.
type ConcatJob struct {
	Inputs    []string
	ListPath  string // concat demuxer list file written before the run
	Output    string
	DropAudio bool
}

// MixJob overlays Secondary, scaled by SecondaryGain, onto Primary. The
// result always has Primary's duration.
type MixJob struct {
	Primary       string
	Secondary     string
	SecondaryGain float64
	Output        string
}

// MuxJob puts the audio stream of Audio onto the video stream of Video. The
// video is copied, the audio re-encoded to AAC, the result cut to the shorter
// input.
type MuxJob struct {
	Video  string
	Audio  string
	Output string
}

// FFmpeg runs transforms through the ffmpeg binary.
type FFmpeg struct {
	binary string
	probe  string
}

// NewFFmpeg returns an engine using the given ffmpeg and ffprobe binaries.
// Empty names fall back to the ones on PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{binary: ffmpegPath, probe: ffprobePath}
}

// Available reports whether both binaries can be found.
func (f *FFmpeg) Available() bool {
	if _, err := exec.LookPath(f.binary); err != nil {
		return false
	}
	_, err := exec.LookPath(f.probe)
	return err == nil
}

// Reverse writes a time-reversed copy of input, video and audio, to output.
func (f *FFmpeg) Reverse(ctx context.Context, input, output string) error {
	args, err := reverseArgs(input, output)
	if err != nil {
		return &EncodeError{Op: "reverse", Err: err}
	}
	return f.run(ctx, "reverse", args)
}

// Concatenate writes the list file for job and joins the inputs with the
// concat demuxer.
func (f *FFmpeg) Concatenate(ctx context.Context, job ConcatJob) error {
	args, err := concatArgs(job)
	if err != nil {
		return &EncodeError{Op: "concatenate", Err: err}
	}
	list, err := buildConcatList(job.Inputs)
	if err != nil {
		return &EncodeError{Op: "concatenate", Err: err}
	}
	if err := os.WriteFile(job.ListPath, []byte(list), 0644); err != nil {
		return &EncodeError{Op: "concatenate", Err: fmt.Errorf("write concat list: %w", err)}
	}
	return f.run(ctx, "concatenate", args)
}

// MixAudio overlays the secondary track onto the primary.
func (f *FFmpeg) MixAudio(ctx context.Context, job MixJob) error {
	args, err := mixArgs(job)
	if err != nil {
		return &EncodeError{Op: "mix", Err: err}
	}
	return f.run(ctx, "mix", args)
}

// MuxAudioOntoVideo combines the video of job.Video with the audio of job.Audio.
func (f *FFmpeg) MuxAudioOntoVideo(ctx context.Context, job MuxJob) error {
	args, err := muxArgs(job)
	if err != nil {
		return &EncodeError{Op: "mux", Err: err}
	}
	return f.run(ctx, "mux", args)
}

// Duration returns the container duration of path in seconds.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.probe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, &EncodeError{Op: "probe", Stderr: tail(stderr.String()), Err: err}
	}
	durationStr := strings.TrimSpace(string(out))
	if durationStr == "" {
		return 0, &EncodeError{Op: "probe", Err: errors.New("empty duration output from ffprobe")}
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, &EncodeError{Op: "probe", Err: fmt.Errorf("parse duration %q: %w", durationStr, err)}
	}
	return duration, nil
}

func (f *FFmpeg) run(ctx context.Context, op string, args []string) error {
	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().Str("op", op).Strs("args", args).Msg("Running ffmpeg")
	start := time.Now()
	if err := cmd.Run(); err != nil {
		log.Error().Err(err).Str("op", op).Str("stderr", tail(stderr.String())).Msg("FFmpeg error")
		return &EncodeError{Op: op, Stderr: tail(stderr.String()), Err: err}
	}
	log.Debug().Str("op", op).Dur("took", time.Since(start)).Msg("FFmpeg finished")
	return nil
}

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}
}

func reverseArgs(input, output string) ([]string, error) {
	if err := checkPaths(output, input); err != nil {
		return nil, err
	}
	return append(baseArgs(),
		"-i", input,
		"-vf", "reverse",
		"-af", "areverse",
		output,
	), nil
}

func concatArgs(job ConcatJob) ([]string, error) {
	if len(job.Inputs) == 0 {
		return nil, errors.New("no inputs to concatenate")
	}
	if job.ListPath == "" {
		return nil, errors.New("concat list path is empty")
	}
	if err := checkPaths(job.Output, job.Inputs...); err != nil {
		return nil, err
	}
	if job.ListPath == job.Output {
		return nil, errors.New("concat list path equals output path")
	}
	args := append(baseArgs(),
		"-f", "concat",
		"-safe", "0",
		"-i", job.ListPath,
		"-c", "copy",
	)
	if job.DropAudio {
		args = append(args, "-an")
	}
	return append(args, job.Output), nil
}

func mixArgs(job MixJob) ([]string, error) {
	if err := checkPaths(job.Output, job.Primary, job.Secondary); err != nil {
		return nil, err
	}
	if !(job.SecondaryGain > 0 && job.SecondaryGain <= 1) {
		return nil, fmt.Errorf("secondary gain must be in (0, 1], got %g", job.SecondaryGain)
	}
	gain := strconv.FormatFloat(job.SecondaryGain, 'f', -1, 64)
	filter := "[1:a]volume=" + gain + "[music];" +
		"[0:a][music]amix=inputs=2:duration=first:dropout_transition=2:normalize=0[aout]"
	return append(baseArgs(),
		"-i", job.Primary,
		"-i", job.Secondary,
		"-filter_complex", filter,
		"-map", "[aout]",
		job.Output,
	), nil
}

func muxArgs(job MuxJob) ([]string, error) {
	if err := checkPaths(job.Output, job.Video, job.Audio); err != nil {
		return nil, err
	}
	return append(baseArgs(),
		"-i", job.Video,
		"-i", job.Audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		job.Output,
	), nil
}

// buildConcatList renders the concat demuxer list. Entries are absolute so
// the list resolves regardless of where it is stored.
func buildConcatList(inputs []string) (string, error) {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", in, err)
		}
		if strings.ContainsAny(abs, "\n\r") {
			return "", fmt.Errorf("path contains a line break: %q", in)
		}
		quoted := strings.ReplaceAll(filepath.ToSlash(abs), "'", `'\''`)
		b.WriteString("file '" + quoted + "'\n")
	}
	return b.String(), nil
}

// checkPaths rejects empty paths, option-looking paths and outputs that
// would overwrite an input.
func checkPaths(output string, inputs ...string) error {
	for _, p := range append([]string{output}, inputs...) {
		if p == "" {
			return errors.New("empty path")
		}
		if strings.HasPrefix(p, "-") {
			return fmt.Errorf("path %q looks like an option", p)
		}
	}
	for _, in := range inputs {
		if filepath.Clean(in) == filepath.Clean(output) {
			return fmt.Errorf("output %s would overwrite an input", output)
		}
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return s[len(s)-stderrTail:]
}
