package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/heartbeat/internal/api"
	"github.com/banshee-data/heartbeat/internal/config"
	"github.com/banshee-data/heartbeat/internal/db"
	"github.com/banshee-data/heartbeat/internal/ecg"
	"github.com/banshee-data/heartbeat/internal/ecg/annotation"
	"github.com/banshee-data/heartbeat/internal/ecg/events"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
	"github.com/banshee-data/heartbeat/internal/monitoring"
	"github.com/banshee-data/heartbeat/internal/report"
	"github.com/banshee-data/heartbeat/internal/security"
	"github.com/banshee-data/heartbeat/internal/simulate"
	"github.com/banshee-data/heartbeat/internal/version"
)

const whatEpochs = "epochs"

var (
	// input
	inPath      = flag.String("in", "", "Recording CSV with a name:type header row")
	rate        = flag.Float64("rate", 0, "Sampling rate of -in in Hz")
	firstSample = flag.Int("first-sample", 0, "Absolute sample number of the first row of -in")
	annPath     = flag.String("annotations", "", "Annotation CSV (onset,duration,description) applied to the recording")
	simulateBPM = flag.Float64("simulate", 0, "Detect on a simulated recording at this heart rate instead of -in")
	duration    = flag.Duration("duration", time.Minute, "Length of the simulated recording")
	mags        = flag.Int("mags", 0, "Simulate magnetometers instead of an ECG channel")
	noise       = flag.Float64("noise", 0.02, "Amplitude of the simulated noise")
	seed        = flag.Uint64("seed", 1, "Seed for the simulated noise")

	// detection, overriding -config
	configPath   = flag.String("config", "", "Detection config JSON (see "+config.DefaultConfigPath+")")
	chName       = flag.String("ch", "", "ECG channel name; empty picks the first ECG channel or synthesizes one")
	threshold    = flag.String("threshold", "auto", "QRS threshold: auto or a fraction in (0, 1]")
	tstart       = flag.Float64("tstart", 0, "Seconds to skip at the start of the signal")
	lFreq        = flag.Float64("l-freq", 5, "Low cut-off of the band-pass filter in Hz")
	hFreq        = flag.Float64("h-freq", 35, "High cut-off of the band-pass filter in Hz")
	filterLength = flag.String("filter-length", "10s", "FIR length: duration (10s, 500ms) or tap count")
	eventID      = flag.Int("event-id", events.DefaultCode, "Code written in the event table")
	parallel     = flag.Bool("parallel", false, "Evaluate threshold candidates concurrently")
	noReject     = flag.Bool("no-reject", false, "Keep BAD and EDGE annotated spans")

	// output
	what     = flag.String("what", "events", "Output: events, r-peaks, heartbeats or epochs")
	outPath  = flag.String("out", "", "Write the output here instead of stdout")
	plotPath = flag.String("plot", "", "Save a PNG plot of the signal and detected beats")
	htmlPath = flag.String("html", "", "Save an HTML chart of the signal and threshold candidates")
	dbPath   = flag.String("db", "", "Record the run in this SQLite database")
	listen   = flag.String("serve", "", "After detecting, serve the API on this address (e.g. :8080)")
	showVer  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		path := fs.String("db", "heartbeat.db", "SQLite database to migrate")
		fs.Parse(os.Args[2:])
		if err := db.RunMigrateCommand(os.Stdout, fs.Args(), *path); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	flag.Parse()
	if *showVer {
		fmt.Println(version.String("heartbeat"))
		return
	}

	cfg, err := loadConfig(*configPath, setFlags())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	rec, source, err := loadRecording()
	if err != nil {
		log.Fatalf("Failed to load recording: %v", err)
	}

	out := io.Writer(os.Stdout)
	if *outPath != "" {
		f, err := security.CreateOutput(*outPath)
		if err != nil {
			log.Fatalf("Failed to create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	var database *db.DB
	if *dbPath != "" || *listen != "" {
		path := *dbPath
		if path == "" {
			path = ":memory:"
		}
		database, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}
	server := api.NewServer(database, cfg)

	if err := process(out, server, database != nil, rec, source, cfg, *what); err != nil {
		log.Fatalf("%v", err)
	}

	if *listen != "" {
		if err := serve(server, database, *listen); err != nil {
			log.Fatalf("%v", err)
		}
	}
}

// setFlags returns the names of the flags given on the command line.
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig reads the config file, if any, and applies the detection
// flags given on the command line on top of it.
func loadConfig(path string, set map[string]bool) (*config.DetectionConfig, error) {
	cfg := config.EmptyDetectionConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadDetectionConfig(path); err != nil {
			return nil, err
		}
	}
	if set["ch"] {
		cfg.ChannelName = chName
	}
	if set["threshold"] {
		cfg.Threshold = threshold
	}
	if set["tstart"] {
		cfg.TStart = tstart
	}
	if set["l-freq"] {
		cfg.LFreq = lFreq
	}
	if set["h-freq"] {
		cfg.HFreq = hFreq
	}
	if set["filter-length"] {
		cfg.FilterLength = filterLength
	}
	if set["event-id"] {
		cfg.EventID = eventID
	}
	if set["parallel"] {
		cfg.Parallel = parallel
	}
	if set["no-reject"] {
		reject := !*noReject
		cfg.RejectByAnnotation = &reject
	}
	return cfg, cfg.Validate()
}

func loadRecording() (*recording.Recording, string, error) {
	var (
		rec    *recording.Recording
		source string
		err    error
	)
	if *simulateBPM > 0 {
		o := simulate.DefaultOptions()
		o.BPM = *simulateBPM
		o.Seconds = duration.Seconds()
		o.Seed = *seed
		o.Noise = *noise
		if *mags > 0 {
			o.ECG = false
			o.Mags = *mags
		}
		if *rate > 0 {
			o.Rate = *rate
		}
		rec, err = simulate.Recording(o)
		source = fmt.Sprintf("simulate:%gbpm", *simulateBPM)
	} else {
		if *inPath == "" {
			return nil, "", errors.New("either -in or -simulate is required")
		}
		if *rate <= 0 {
			return nil, "", errors.New("-rate is required with -in")
		}
		var f *os.File
		if f, err = os.Open(*inPath); err != nil {
			return nil, "", err
		}
		defer f.Close()
		rec, err = recording.ReadCSV(f, *rate, *firstSample)
		source = *inPath
	}
	if err != nil {
		return nil, "", err
	}

	if *annPath != "" {
		f, err := os.Open(*annPath)
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		if rec.Annotations, err = annotation.ReadCSV(f); err != nil {
			return nil, "", fmt.Errorf("annotations: %w", err)
		}
	}
	return rec, source, nil
}

// process runs the requested analysis on rec and writes its output.
func process(out io.Writer, server *api.Server, record bool, rec *recording.Recording, source string, cfg *config.DetectionConfig, what string) error {
	o := cfg.ToOptions()

	switch what {
	case whatEpochs:
		return writeEpochs(out, rec, cfg)
	case string(ecg.WhatRPeaks), string(ecg.WhatHeartbeats):
		set, err := ecg.Annotate(rec, ecg.What(what), o)
		if err != nil {
			return err
		}
		return annotation.WriteCSV(out, set)
	case "events":
	default:
		return fmt.Errorf("unknown -what %q", what)
	}

	var (
		res *ecg.Result
		err error
	)
	if record {
		var run *db.Run
		if run, res, err = server.Analyze(source, rec, o); err != nil {
			return err
		}
		monitoring.Logf("Recorded run %s", run.RunID)
	} else if res, err = ecg.FindEvents(rec, o); err != nil {
		return err
	}

	if err := events.Write(out, res.Events); err != nil {
		return err
	}
	return writeReports(rec, res, source)
}

func writeReports(rec *recording.Recording, res *ecg.Result, source string) error {
	if *plotPath == "" && *htmlPath == "" {
		return nil
	}
	tr, err := report.FromResult(rec, res, source)
	if err != nil {
		return err
	}
	if *plotPath != "" {
		if err := security.ValidateOutputPath(*plotPath); err != nil {
			return err
		}
		if err := report.SavePNG(*plotPath, tr); err != nil {
			return err
		}
		monitoring.Logf("Wrote %s", *plotPath)
	}
	if *htmlPath != "" {
		f, err := security.CreateOutput(*htmlPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.RenderHTML(f, tr); err != nil {
			return err
		}
		monitoring.Logf("Wrote %s", *htmlPath)
	}
	return nil
}

// writeEpochs writes the average heartbeat epoch of every channel as a
// recording CSV whose first row is at the epoch start.
func writeEpochs(out io.Writer, rec *recording.Recording, cfg *config.DetectionConfig) error {
	eps, err := ecg.CreateEpochs(rec, cfg.ToEpochOptions())
	if err != nil {
		return err
	}
	monitoring.Logf("%d epochs kept, %d dropped", eps.Len(), len(eps.DropLog))
	for _, d := range eps.DropLog {
		monitoring.Logf("dropped epoch at %d: %s", d.Event.Sample, d.Reason)
	}
	avg := eps.Average()
	if avg == nil {
		return errors.New("no epochs to average")
	}
	mean := &recording.Recording{Rate: eps.Rate, FirstSample: int(math.Round(eps.TMin * eps.Rate))}
	for c, name := range eps.Channels {
		typ := recording.TypeMisc
		if i := rec.Index(name); i >= 0 {
			typ = rec.Channels[i].Type
		} else if name == ecg.SyntheticChannel {
			typ = recording.TypeECG
		}
		mean.Channels = append(mean.Channels, recording.Channel{Name: name, Type: typ, Data: avg[c]})
	}
	return recording.WriteCSV(out, mean)
}

func serve(server *api.Server, database *db.DB, addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := server.ServeMux()
	database.AttachAdminRoutes(mux)

	srv := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	log.Printf("Serving on %s (runs at /api/runs, SQL at /debug/tailsql/)", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := srv.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}
