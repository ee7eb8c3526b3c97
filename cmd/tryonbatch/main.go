package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"eyewear-tryon/internal/app"
	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/batch"
	"eyewear-tryon/internal/compositor"
	"eyewear-tryon/internal/config"
	"eyewear-tryon/internal/session"
)

func main() {
	configFile := flag.String("config", "", "Path to config JSON file")
	envFile := flag.String("env", ".env", "Path to .env file (skipped when missing)")
	jobsFile := flag.String("jobs", "", "JSON array of {capture, asset, kind, landmarks, output} jobs")
	testN := flag.Int("test", 0, "Run only the first N jobs")
	workers := flag.Int("workers", 0, "Number of worker goroutines (default: NumCPU)")
	dataDir := flag.String("data", "", "Asset base directory (default: auto-detect)")
	outputDir := flag.String("output", "", "Output directory (default: <data>/renders)")
	format := flag.String("format", "", "Output format: webp or png (default: webp)")
	detect := flag.Bool("detect", false, "Detect landmarks for jobs that carry none")
	pruneAge := flag.Duration("prune", 0, "Drop stored assets older than this before running")

	flag.Parse()

	if *jobsFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -jobs is required.")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading environment: %v\n", err)
		os.Exit(1)
	}
	cfg.Resolve(config.Flags{
		DataDir:   *dataDir,
		OutputDir: *outputDir,
		Format:    *format,
		Workers:   *workers,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	jobs, err := batch.ReadJobs(*jobsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading jobs: %v\n", err)
		os.Exit(1)
	}
	if *testN > 0 && *testN < len(jobs) {
		jobs = jobs[:*testN]
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs to run.")
		os.Exit(0)
	}

	a, err := app.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := a.Prune(ctx, *pruneAge); err != nil {
		a.Log.WithError(err).Warn("prune failed")
	}

	fmt.Printf("Eyewear try-on batch → %s\n", cfg.Render.Format)
	fmt.Printf("Jobs: %d, Workers: %d\n", len(jobs), cfg.Batch.Workers)
	fmt.Printf("Output: %s\n", cfg.Batch.OutputDir)
	fmt.Println("------------------------------------------------------------")

	start := time.Now()

	batchCfg := batch.Config{
		NewSession: func(int) *session.Controller {
			var opts []session.Option
			if *detect {
				det, err := a.Detector()
				if err != nil {
					a.Log.WithError(err).Warn("detector unavailable")
				} else {
					opts = append(opts, session.WithDetector(det))
				}
			}
			return a.NewSession(opts...)
		},
		Captures:  assets.FileFetcher{Root: cfg.Assets.BaseDir},
		OutputDir: cfg.Batch.OutputDir,
		Format:    compositor.Format(cfg.Render.Format),
		Workers:   cfg.Batch.Workers,
		Log:       a.Log,
		Progress:  2 * time.Second,
	}
	results := batch.Run(ctx, batchCfg, jobs)

	elapsed := time.Since(start)
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Done in %.1fs\n", elapsed.Seconds())

	success, failed := 0, 0
	var failures []batch.Result
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failed++
			failures = append(failures, r)
		}
	}

	fmt.Printf("Composited: %d/%d\n", success, len(jobs))

	if len(failures) > 0 {
		fmt.Printf("\nFailed (%d):\n", failed)
		limit := 20
		if len(failures) < limit {
			limit = len(failures)
		}
		for _, r := range failures[:limit] {
			fmt.Printf("  %s [%s]: %s\n", r.ID, r.ErrKind, r.Error)
		}
	}

	manifestPath := filepath.Join(cfg.Batch.OutputDir, "manifest.json")
	if err := batch.WriteManifest(manifestPath, results); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: manifest write failed: %v\n", err)
	} else {
		fmt.Printf("Manifest: %s\n", manifestPath)
	}

	if a.Store != nil {
		if counts, err := a.Store.History().Failures(ctx); err == nil && len(counts) > 0 {
			fmt.Printf("Recorded failures by kind: %v\n", counts)
		}
	}

	if failed > 0 {
		a.Close()
		os.Exit(1)
	}
}
