// Package segment shells out to ffmpeg to slice one input video into a
// manifest plus fixed-duration segment files.
package segment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-ingest/internal/metrics"
	"media-ingest/internal/packer"
)

const (
	// manifestName and segmentPattern are fixed on purpose: the manifest
	// rewriter substitutes by exact filename, and the fixed-width index
	// guarantees no segment name is a substring of another.
	manifestName   = "index.m3u8"
	segmentPattern = "seg_%05d.ts"
	segmentPrefix  = "seg_"
)

// Error is a segmentation failure: non-zero ffmpeg exit or empty output.
type Error struct {
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("segmentation failed: %v\n%s", e.Err, e.Detail)
	}
	return fmt.Sprintf("segmentation failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Result struct {
	ManifestPath string
	Segments     []packer.File
}

type Options struct {
	FFmpegPath     string // default "ffmpeg"
	FFprobePath    string // default "ffprobe"
	SegmentSeconds int    // default 10
	VideoCodec     string // default "libx264"
	AudioCodec     string // default "aac"
	Preset         string // default "veryfast"
	CRF            int    // default 23
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.FFmpegPath) == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(o.FFprobePath) == "" {
		o.FFprobePath = "ffprobe"
	}
	if o.SegmentSeconds <= 0 {
		o.SegmentSeconds = 10
	}
	if strings.TrimSpace(o.VideoCodec) == "" {
		o.VideoCodec = "libx264"
	}
	if strings.TrimSpace(o.AudioCodec) == "" {
		o.AudioCodec = "aac"
	}
	if strings.TrimSpace(o.Preset) == "" {
		o.Preset = "veryfast"
	}
	if o.CRF <= 0 {
		o.CRF = 23
	}
	return o
}

type Segmenter struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{opts: opts.withDefaults(), logger: logger}
}

// Segment runs ffmpeg on inputPath and writes the manifest and segments
// into outputDir, which is purged first so enumeration afterwards reflects
// only this run. Fractional progress in [0,1] is sent on progress, which
// is closed before Segment returns; pass nil when progress is not needed.
func (s *Segmenter) Segment(ctx context.Context, inputPath, outputDir string, progress chan<- float64) (Result, error) {
	if progress != nil {
		defer close(progress)
	}

	if strings.TrimSpace(inputPath) == "" {
		return Result{}, &Error{Err: errors.New("input path is required")}
	}
	if _, err := os.Stat(inputPath); err != nil {
		return Result{}, &Error{Err: fmt.Errorf("input file: %w", err)}
	}
	if strings.TrimSpace(outputDir) == "" {
		return Result{}, &Error{Err: errors.New("output directory is required")}
	}

	// Stale files from a previous failed attempt would pollute the
	// post-run enumeration.
	if err := os.RemoveAll(outputDir); err != nil {
		return Result{}, &Error{Err: fmt.Errorf("purge output directory: %w", err)}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, &Error{Err: fmt.Errorf("create output directory: %w", err)}
	}

	duration, err := s.probeDuration(ctx, inputPath)
	if err != nil {
		s.logger.Warn("duration probe failed, progress will be coarse", "input", inputPath, "error", err)
		duration = 0
	}

	started := time.Now()
	if err := s.runFFmpeg(ctx, inputPath, outputDir, duration, progress); err != nil {
		return Result{}, err
	}
	metrics.SegmentationDuration.Observe(time.Since(started).Seconds())

	return collectOutput(outputDir)
}

func (s *Segmenter) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, s.opts.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return 0, errors.New("empty duration")
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *Segmenter) runFFmpeg(ctx context.Context, inputPath, outputDir string, duration float64, progress chan<- float64) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", s.opts.VideoCodec,
		"-preset", s.opts.Preset,
		"-crf", strconv.Itoa(s.opts.CRF),
		"-c:a", s.opts.AudioCodec,
		"-f", "hls",
		"-hls_time", strconv.Itoa(s.opts.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outputDir, segmentPattern),
		"-progress", "pipe:1",
		"-nostats",
		filepath.Join(outputDir, manifestName),
	}

	cmd := exec.CommandContext(ctx, s.opts.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Error{Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &limitedWriter{b: &stderrBuf, max: 8192}

	if err := cmd.Start(); err != nil {
		return &Error{Err: fmt.Errorf("start %s: %w", s.opts.FFmpegPath, err)}
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		emitProgress(progress, scanner.Text(), duration)
	}

	if err := cmd.Wait(); err != nil {
		return &Error{Err: err, Detail: strings.TrimSpace(stderrBuf.String())}
	}
	emit(progress, 1)
	return nil
}

// emitProgress interprets one line of the -progress pipe:1 key=value
// stream. out_time_ms carries microseconds despite its name (it mirrors
// out_time_us) and is scaled against the probed duration; the stream's
// final "progress=end" marker maps to 1 regardless of duration.
func emitProgress(progress chan<- float64, line string, duration float64) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	switch key {
	case "out_time_ms":
		if duration <= 0 {
			return
		}
		outTimeUs, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return
		}
		fraction := (outTimeUs / 1e6) / duration
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		emit(progress, fraction)
	case "progress":
		if strings.TrimSpace(value) == "end" {
			emit(progress, 1)
		}
	}
}

// emit never blocks: a slow consumer just misses intermediate fractions.
func emit(progress chan<- float64, fraction float64) {
	if progress == nil {
		return
	}
	select {
	case progress <- fraction:
	default:
	}
}

func collectOutput(outputDir string) (Result, error) {
	manifestPath := filepath.Join(outputDir, manifestName)
	if _, err := os.Stat(manifestPath); err != nil {
		return Result{}, &Error{Err: fmt.Errorf("no manifest produced: %w", err)}
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return Result{}, &Error{Err: fmt.Errorf("enumerate output: %w", err)}
	}

	var segments []packer.File
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), segmentPrefix) || !strings.HasSuffix(e.Name(), ".ts") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return Result{}, &Error{Err: fmt.Errorf("stat segment %s: %w", e.Name(), err)}
		}
		segments = append(segments, packer.File{
			Path: filepath.Join(outputDir, e.Name()),
			Size: info.Size(),
		})
	}
	if len(segments) == 0 {
		return Result{}, &Error{Err: errors.New("no segments produced")}
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Path < segments[j].Path })

	return Result{ManifestPath: manifestPath, Segments: segments}, nil
}

type limitedWriter struct {
	b   *strings.Builder
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remain := w.max - w.b.Len()
	if remain > 0 {
		if len(p) > remain {
			w.b.Write(p[:remain])
		} else {
			w.b.Write(p)
		}
	}
	return len(p), nil
}
