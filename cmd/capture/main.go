package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/heartbeat/internal/acquire"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
	"github.com/banshee-data/heartbeat/internal/monitoring"
	"github.com/banshee-data/heartbeat/internal/security"
	"github.com/banshee-data/heartbeat/internal/version"
)

var (
	port     = flag.String("port", "/dev/ttyUSB0", "Serial port of the ECG front-end")
	baud     = flag.Int("baud", acquire.DefaultBaudRate, "Baud rate")
	dataBits = flag.Int("data-bits", 8, "Data bits")
	stopBits = flag.Int("stop-bits", 1, "Stop bits (1 or 2)")
	parity   = flag.String("parity", "N", "Parity: N, E or O")
	rate     = flag.Float64("rate", 250, "Front-end sampling rate in Hz")
	duration = flag.Duration("duration", time.Minute, "How long to capture; 0 captures until interrupted")
	channel  = flag.String("ch", acquire.DefaultChannel, "Name of the captured channel")
	outPath  = flag.String("out", "", "Write the recording CSV here instead of stdout")
	showVer  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String("capture"))
		return
	}

	sp, err := acquire.OpenSerial(*port, acquire.PortOptions{
		BaudRate: *baud,
		DataBits: *dataBits,
		StopBits: *stopBits,
		Parity:   *parity,
	})
	if err != nil {
		log.Fatalf("failed to open serial port: %v", err)
	}
	defer sp.Close()

	out := io.Writer(os.Stdout)
	if *outPath != "" {
		f, err := security.CreateOutput(*outPath)
		if err != nil {
			log.Fatalf("Failed to create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := acquire.Options{Rate: *rate, Duration: *duration, Channel: *channel}
	if err := run(ctx, sp, out, opts); err != nil {
		log.Fatalf("%v", err)
	}
}

// run captures from r and writes the recording to w.
func run(ctx context.Context, r io.Reader, w io.Writer, o acquire.Options) error {
	rec, stats, err := acquire.Capture(ctx, r, o)
	if err != nil {
		return err
	}
	monitoring.Logf("Captured %d samples (%.1fs) from %d lines, %d malformed, %d status",
		stats.Samples, rec.Duration(), stats.Lines, stats.Malformed, stats.Status)
	return recording.WriteCSV(w, rec)
}
