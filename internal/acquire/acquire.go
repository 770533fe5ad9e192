// Package acquire resolves a magnet/torrent source reference into a local
// file by driving a peer-to-peer transfer client.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/anacrolix/torrent"
)

// Error is a transfer-level acquisition failure.
type Error struct {
	SourceRef string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("acquire %s: %v", shortRef(e.SourceRef), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Options struct {
	// PollInterval is how often transfer progress is sampled. The client
	// has no fine-grained push updates, so progress is poll-based.
	PollInterval time.Duration // default 1s
	// ListenPort 0 lets the client pick.
	ListenPort int
}

type Client struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{opts: opts, logger: logger}
}

// Acquire downloads sourceRef into targetDir and returns the absolute path
// of the transfer's primary file. Fractional progress in [0,1] is sent on
// progress, which is closed before Acquire returns; pass nil to skip it.
func (c *Client) Acquire(ctx context.Context, sourceRef, targetDir string, progress chan<- float64) (string, error) {
	if progress != nil {
		defer close(progress)
	}
	if strings.TrimSpace(sourceRef) == "" {
		return "", &Error{SourceRef: sourceRef, Err: fmt.Errorf("source reference is required")}
	}

	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = targetDir
	cfg.Seed = false
	cfg.NoDHT = false
	if c.opts.ListenPort != 0 {
		cfg.ListenPort = c.opts.ListenPort
	}

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return "", &Error{SourceRef: sourceRef, Err: fmt.Errorf("start transfer client: %w", err)}
	}
	defer client.Close()

	t, err := c.addSource(client, sourceRef)
	if err != nil {
		return "", &Error{SourceRef: sourceRef, Err: err}
	}

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return "", &Error{SourceRef: sourceRef, Err: ctx.Err()}
	}

	c.logger.Info("acquisition started",
		"name", t.Name(), "bytes", t.Length(), "files", len(t.Files()))
	t.DownloadAll()

	if err := c.waitForCompletion(ctx, client, t, progress); err != nil {
		return "", &Error{SourceRef: sourceRef, Err: err}
	}

	primary, err := primaryFile(t.Files())
	if err != nil {
		return "", &Error{SourceRef: sourceRef, Err: err}
	}
	return filepath.Join(targetDir, filepath.FromSlash(primary.Path())), nil
}

func (c *Client) addSource(client *torrent.Client, sourceRef string) (*torrent.Torrent, error) {
	if strings.HasPrefix(sourceRef, "magnet:") {
		t, err := client.AddMagnet(sourceRef)
		if err != nil {
			return nil, fmt.Errorf("add magnet: %w", err)
		}
		return t, nil
	}
	t, err := client.AddTorrentFromFile(sourceRef)
	if err != nil {
		return nil, fmt.Errorf("add torrent file: %w", err)
	}
	return t, nil
}

// waitForCompletion samples BytesCompleted on a fixed interval until the
// transfer finishes or the context ends.
func (c *Client) waitForCompletion(ctx context.Context, client *torrent.Client, t *torrent.Torrent, progress chan<- float64) error {
	done := make(chan bool, 1)
	go func() {
		done <- client.WaitAll()
	}()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ok := <-done:
			if !ok {
				return fmt.Errorf("transfer client closed before completion")
			}
			emit(progress, 1)
			return nil
		case <-ticker.C:
			total := t.Length()
			if total <= 0 {
				continue
			}
			fraction := float64(t.BytesCompleted()) / float64(total)
			if fraction > 1 {
				fraction = 1
			}
			emit(progress, fraction)
		}
	}
}

func emit(progress chan<- float64, fraction float64) {
	if progress == nil {
		return
	}
	select {
	case progress <- fraction:
	default:
	}
}

// torrentFile is the slice of the transfer client's file handle the
// selection policy needs; it keeps primaryFile testable without a swarm.
type torrentFile interface {
	Path() string
	Length() int64
}

// primaryFile picks the transfer's main payload: the largest file, with
// path order breaking ties. Taking the first file by listing order would
// grab an extras/sample file on multi-file releases.
func primaryFile[F torrentFile](files []F) (F, error) {
	var best F
	if len(files) == 0 {
		return best, fmt.Errorf("transfer produced no files")
	}
	bestSet := false
	for _, f := range files {
		switch {
		case !bestSet:
			best = f
			bestSet = true
		case f.Length() > best.Length():
			best = f
		case f.Length() == best.Length() && f.Path() < best.Path():
			best = f
		}
	}
	return best, nil
}

func shortRef(ref string) string {
	const max = 64
	if len(ref) <= max {
		return ref
	}
	return ref[:max] + "…"
}
