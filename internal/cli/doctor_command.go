package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"media-ingest/internal/config"
	"media-ingest/internal/segment"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res := doctorResult{OK: true}
	add := func(name string, ok bool, msg string) {
		res.Checks = append(res.Checks, doctorCheck{Name: name, OK: ok, Message: msg})
		if !ok {
			res.OK = false
		}
	}

	deps := segment.DependencyStatus()
	if deps.FFmpegFound {
		add("ffmpeg", true, deps.FFmpegPath)
	} else {
		add("ffmpeg", false, "not found on PATH")
	}
	if deps.FFprobeFound {
		add("ffprobe", true, deps.FFprobePath)
	} else {
		add("ffprobe", false, "not found on PATH (duration-based progress degrades)")
	}

	cfg, err := config.Load()
	if err != nil {
		add("config", false, err.Error())
	} else {
		add("config", true, fmt.Sprintf("store=%s addr=%s", cfg.StoreBackend, cfg.HTTPAddr))
		ok, msg := checkWritable(cfg.DataDir)
		add("data_dir", ok, msg)
		if cfg.AttachEndpoint == "" {
			add("attach_endpoint", false, "INGEST_ATTACH_ENDPOINT is not set")
		} else {
			add("attach_endpoint", true, cfg.AttachEndpoint)
		}
	}

	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := "ok"
			if !c.OK {
				status = "fail"
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}

func checkWritable(dir string) (bool, string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err.Error()
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return false, err.Error()
	}
	_ = os.Remove(probe)
	return true, dir
}
