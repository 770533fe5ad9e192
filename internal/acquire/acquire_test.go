package acquire

import (
	"testing"
	"time"
)

type fakeFile struct {
	path   string
	length int64
}

func (f fakeFile) Path() string  { return f.path }
func (f fakeFile) Length() int64 { return f.length }

func TestPrimaryFilePicksLargest(t *testing.T) {
	files := []fakeFile{
		{path: "Release/sample.mkv", length: 50 << 20},
		{path: "Release/episode.mkv", length: 700 << 20},
		{path: "Release/readme.txt", length: 1 << 10},
	}
	got, err := primaryFile(files)
	if err != nil {
		t.Fatal(err)
	}
	if got.Path() != "Release/episode.mkv" {
		t.Fatalf("picked %s, want the largest file", got.Path())
	}
}

func TestPrimaryFileIsDeterministicOnTies(t *testing.T) {
	a := fakeFile{path: "Release/b.mkv", length: 100}
	b := fakeFile{path: "Release/a.mkv", length: 100}

	first, err := primaryFile([]fakeFile{a, b})
	if err != nil {
		t.Fatal(err)
	}
	second, err := primaryFile([]fakeFile{b, a})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("tie break depends on listing order: %s vs %s", first.Path(), second.Path())
	}
	if first.Path() != "Release/a.mkv" {
		t.Fatalf("unexpected tie winner: %s", first.Path())
	}
}

func TestPrimaryFileEmptyTransfer(t *testing.T) {
	if _, err := primaryFile([]fakeFile{}); err == nil {
		t.Fatalf("expected error for empty file list")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Options{}, nil)
	if c.opts.PollInterval != time.Second {
		t.Fatalf("unexpected default poll interval: %v", c.opts.PollInterval)
	}
}
