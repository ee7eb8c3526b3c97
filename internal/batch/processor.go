// Package batch composites many capture/product pairs concurrently and
// writes the results with a manifest.
package batch

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/compositor"
	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/geometry"
	"eyewear-tryon/internal/logging"
	"eyewear-tryon/internal/raster"
	"eyewear-tryon/internal/session"
)

// Config holds all shared resources for a batch run.
type Config struct {
	// NewSession creates the session owned by one worker. Sessions are
	// not shared between goroutines.
	NewSession func(worker int) *session.Controller
	// Captures reads capture images.
	Captures assets.Fetcher

	OutputDir string
	Format    compositor.Format
	Workers   int

	Log      logrus.FieldLogger
	Clock    clock.Clock
	Progress time.Duration // interval between progress lines, 0 disables
}

// Result holds the outcome of one job.
type Result struct {
	ID        string
	Asset     string
	Output    string
	Success   bool
	ErrKind   string
	Error     string
	Transform geometry.Transform
	Elapsed   time.Duration
}

// Run processes all jobs using a worker pool. Results are in job order.
// Cancelling ctx fails the jobs not yet started.
func Run(ctx context.Context, cfg Config, jobs []Job) []Result {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Format == "" {
		cfg.Format = compositor.FormatWebP
	}
	log := logging.OrDiscard(cfg.Log)

	total := len(jobs)
	results := make([]Result, total)
	var processed atomic.Int64
	start := cfg.Clock.Now()

	done := make(chan struct{})
	if cfg.Progress > 0 {
		ticker := cfg.Clock.Ticker(cfg.Progress)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if p := processed.Load(); p > 0 {
						rate := float64(p) / cfg.Clock.Since(start).Seconds()
						log.Infof("[%d/%d] %.1f jobs/sec", p, total, rate)
					}
				}
			}
		}()
	}

	jobChan := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			s := cfg.NewSession(w)
			defer func() {
				if err := s.Dispose(); err != nil {
					log.WithError(err).Warn("session dispose failed")
				}
			}()
			for idx := range jobChan {
				results[idx] = processJob(ctx, cfg, s, jobs[idx])
				processed.Add(1)
			}
		}(w)
	}

	for i := range jobs {
		jobChan <- i
	}
	close(jobChan)

	wg.Wait()
	close(done)

	return results
}

func processJob(ctx context.Context, cfg Config, s *session.Controller, job Job) Result {
	start := cfg.Clock.Now()
	res := Result{ID: job.ID, Asset: job.Asset}
	fail := func(err error) Result {
		res.ErrKind = errs.KindOf(err).String()
		res.Error = err.Error()
		res.Elapsed = cfg.Clock.Since(start)
		cfg.logFailure(job, err)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(errs.Wrap(errs.InvalidState, "batch.run", err, "cancelled"))
	}

	img, err := loadCapture(ctx, cfg.Captures, job.Capture)
	if err != nil {
		return fail(err)
	}
	if err := s.SelectAsset(ctx, job.Ref()); err != nil {
		return fail(err)
	}

	var out *raster.Image
	if job.Landmarks != nil {
		out, err = s.SubmitCapture(ctx, img, *job.Landmarks)
	} else {
		out, err = s.Capture(ctx, img)
	}
	if err != nil {
		return fail(err)
	}

	path := cfg.outputPath(job)
	if err := compositor.EncodeFile(path, out, compositor.FormatForPath(path, cfg.Format)); err != nil {
		return fail(err)
	}

	res.Success = true
	res.Output = path
	res.Transform = s.Snapshot().Transform
	res.Elapsed = cfg.Clock.Since(start)
	return res
}

func loadCapture(ctx context.Context, f assets.Fetcher, url string) (*raster.Image, error) {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, errs.Ensure(errs.FetchError, "batch.capture", err)
	}
	return assets.DecodeImage(data, url)
}

func (cfg Config) outputPath(job Job) string {
	if job.Output == "" {
		return filepath.Join(cfg.OutputDir, job.ID+"."+string(cfg.Format))
	}
	if filepath.IsAbs(job.Output) {
		return job.Output
	}
	return filepath.Join(cfg.OutputDir, job.Output)
}

func (cfg Config) logFailure(job Job, err error) {
	logging.OrDiscard(cfg.Log).
		WithError(err).
		WithField("job", job.ID).
		WithField(logging.AssetKey, job.Asset).
		WithField(logging.KindKey, errs.KindOf(err).String()).
		Warn("job failed")
}
