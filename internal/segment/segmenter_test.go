package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fakeFFprobe = `#!/usr/bin/env bash
set -euo pipefail
echo "120.000000"
`

const fakeFFmpegOK = `#!/usr/bin/env bash
set -euo pipefail
manifest="${@: -1}"
dir="$(dirname "$manifest")"
for i in 0 1 2; do
  name=$(printf 'seg_%05d.ts' "$i")
  printf 'chunkdata-%s' "$i" > "$dir/$name"
done
cat > "$manifest" <<'EOF'
#EXTM3U
#EXT-X-VERSION:3
#EXTINF:10.0,
seg_00000.ts
#EXTINF:10.0,
seg_00001.ts
#EXTINF:10.0,
seg_00002.ts
#EXT-X-ENDLIST
EOF
echo "out_time_ms=60000000"
echo "progress=end"
`

const fakeFFmpegFail = `#!/usr/bin/env bash
set -euo pipefail
echo "Invalid data found when processing input" >&2
exit 1
`

const fakeFFmpegNoOutput = `#!/usr/bin/env bash
set -euo pipefail
echo "progress=end"
exit 0
`

func installFakeTools(t *testing.T, ffmpegScript string) {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "ffmpeg"), []byte(ffmpegScript), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "ffprobe"), []byte(fakeFFprobe), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))
}

func writeInput(t *testing.T) string {
	t.Helper()
	input := filepath.Join(t.TempDir(), "episode.mkv")
	if err := os.WriteFile(input, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return input
}

func TestSegmentProducesManifestAndSegments(t *testing.T) {
	installFakeTools(t, fakeFFmpegOK)
	input := writeInput(t)
	outDir := filepath.Join(t.TempDir(), "out")

	progress := make(chan float64, 64)
	seg := New(Options{}, nil)
	res, err := seg.Segment(context.Background(), input, outDir, progress)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}

	if filepath.Base(res.ManifestPath) != "index.m3u8" {
		t.Fatalf("unexpected manifest path: %s", res.ManifestPath)
	}
	if len(res.Segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(res.Segments))
	}
	for i, s := range res.Segments {
		if s.Size <= 0 {
			t.Errorf("segment %d has size %d", i, s.Size)
		}
		if !strings.HasPrefix(filepath.Base(s.Path), "seg_") {
			t.Errorf("unexpected segment name: %s", s.Path)
		}
	}

	var fractions []float64
	for f := range progress {
		fractions = append(fractions, f)
	}
	if len(fractions) == 0 {
		t.Fatalf("no progress reported")
	}
	if fractions[len(fractions)-1] != 1 {
		t.Fatalf("final progress %v, want 1", fractions[len(fractions)-1])
	}
	sawMid := false
	for _, f := range fractions {
		if f == 0.5 { // out_time_ms=60000000 (60s in microseconds) against the probed 120s
			sawMid = true
		}
	}
	if !sawMid {
		t.Fatalf("expected mid-run progress 0.5, got %v", fractions)
	}
}

func TestSegmentPurgesStaleOutput(t *testing.T) {
	installFakeTools(t, fakeFFmpegOK)
	input := writeInput(t)
	outDir := filepath.Join(t.TempDir(), "out")

	// Leftovers from a previous failed attempt.
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(outDir, "seg_99999.ts")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	seg := New(Options{}, nil)
	res, err := seg.Segment(context.Background(), input, outDir, nil)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(res.Segments) != 3 {
		t.Fatalf("stale file leaked into enumeration: %d segments", len(res.Segments))
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale segment not purged")
	}
}

func TestSegmentToolFailure(t *testing.T) {
	installFakeTools(t, fakeFFmpegFail)
	input := writeInput(t)

	seg := New(Options{}, nil)
	_, err := seg.Segment(context.Background(), input, filepath.Join(t.TempDir(), "out"), nil)
	var segErr *Error
	if !errors.As(err, &segErr) {
		t.Fatalf("expected segment.Error, got %v", err)
	}
	if !strings.Contains(segErr.Detail, "Invalid data") {
		t.Fatalf("stderr detail not captured: %q", segErr.Detail)
	}
}

func TestSegmentNoManifestProduced(t *testing.T) {
	installFakeTools(t, fakeFFmpegNoOutput)
	input := writeInput(t)

	seg := New(Options{}, nil)
	_, err := seg.Segment(context.Background(), input, filepath.Join(t.TempDir(), "out"), nil)
	var segErr *Error
	if !errors.As(err, &segErr) {
		t.Fatalf("expected segment.Error, got %v", err)
	}
}

func TestSegmentMissingInput(t *testing.T) {
	installFakeTools(t, fakeFFmpegOK)
	seg := New(Options{}, nil)
	progress := make(chan float64, 1)
	_, err := seg.Segment(context.Background(), filepath.Join(t.TempDir(), "absent.mkv"), t.TempDir(), progress)
	if err == nil {
		t.Fatalf("expected error for missing input")
	}
	// The channel must still be closed on the error path.
	if _, open := <-progress; open {
		t.Fatalf("progress channel left open")
	}
}

func TestEmitProgressParsing(t *testing.T) {
	cases := []struct {
		line     string
		duration float64
		want     []float64
	}{
		// out_time_ms holds microseconds, same as out_time_us.
		{"out_time_ms=60000000", 120, []float64{0.5}},
		{"out_time_ms=5000000", 120, []float64{5.0 / 120}},
		{"out_time_ms=500000000", 120, []float64{1}}, // past the probed duration clamps
		{"out_time_ms=60000000", 0, nil},             // unknown duration stays coarse
		{"out_time_ms=garbage", 120, nil},
		{"progress=continue", 120, nil},
		{"progress=end", 120, []float64{1}},
		{"frame=42", 120, nil},
		{"no separator", 120, nil},
	}
	for _, tc := range cases {
		ch := make(chan float64, 4)
		emitProgress(ch, tc.line, tc.duration)
		close(ch)
		var got []float64
		for f := range ch {
			got = append(got, f)
		}
		if len(got) != len(tc.want) {
			t.Errorf("line %q: got %v, want %v", tc.line, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("line %q: got %v, want %v", tc.line, got, tc.want)
			}
		}
	}
}
