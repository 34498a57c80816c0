package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: gpxstops <command> [flags]

commands:
  detect    print the stop table of a GPX track
  annotate  write a copy of a GPX track with one waypoint per stop
  markers   print stop markers as GeoJSON
  curve     print the cumulative rest curve as JSON
  summary   print aggregate rest statistics as JSON
  import    store GPX files or directories and queue them for detection
  serve     run the HTTP API and the detection worker
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "gpxstops: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "detect":
		return runDetect(rest, stdout, stderr)
	case "annotate":
		return runAnnotate(rest, stdout, stderr)
	case "markers":
		return runMarkers(rest, stdout, stderr)
	case "curve":
		return runCurve(rest, stdout, stderr)
	case "summary":
		return runSummary(rest, stdout, stderr)
	case "import":
		return runImport(ctx, rest, stdout, stderr)
	case "serve":
		return runServe(ctx, rest, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
