package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "enqueue":
		return runEnqueue(args[1:])
	case "acquire":
		return runAcquire(args[1:])
	case "status":
		return runStatus(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "version":
		return runVersion(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("media-ingest: episode ingestion pipeline (download, segment, upload)")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  media-ingest doctor")
	fmt.Println("  media-ingest serve")
	fmt.Println("  media-ingest enqueue --source /path/to/episode.mkv")
	fmt.Println("  media-ingest watch --id <job-id>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    run the ingestion service (API, queues, workers)")
	fmt.Println("  enqueue  submit a local file for segmentation and upload")
	fmt.Println("  acquire  submit a magnet link or .torrent file for download")
	fmt.Println("  status   print the status of a job")
	fmt.Println("  watch    live progress view for a job")
	fmt.Println("  doctor   run dependency and filesystem preflight checks")
	fmt.Println("  version  print the build version")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - serve reads INGEST_* environment variables (and .env if present)")
	fmt.Println("  - client commands target --addr (default http://localhost:8080)")
	fmt.Println("  - use --json on client commands for machine-readable output")
}
