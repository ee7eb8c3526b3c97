package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"eyewear-tryon/internal/app"
	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/compositor"
	"eyewear-tryon/internal/config"
	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/landmarks"
	"eyewear-tryon/internal/postprocess"
	"eyewear-tryon/internal/raster"
	"eyewear-tryon/internal/session"
)

func main() {
	configFile := flag.String("config", "", "Path to config JSON file")
	envFile := flag.String("env", ".env", "Path to .env file (skipped when missing)")
	dataDir := flag.String("data", "", "Asset base directory (default: auto-detect)")
	capturePath := flag.String("capture", "", "Capture image (PNG, JPEG, WebP, TGA)")
	assetURL := flag.String("asset", "", "Glasses asset path or URL")
	kind := flag.String("kind", "", "Asset kind: flat or volumetric (default: from extension)")
	lmFile := flag.String("landmarks", "", "Landmarks JSON file")
	eyes := flag.String("eyes", "", "Eye centers as lx,ly,rx,ry (skips detection)")
	outPath := flag.String("out", "tryon.webp", "Output image (.webp or .png)")
	format := flag.String("format", "", "Output format when -out has no known extension")
	maxDim := flag.Int("max-dim", 0, "Downscale the capture to fit this size first")
	annotate := flag.Bool("annotate", false, "Draw landmarks and overlay footprint")
	mirror := flag.Bool("mirror", false, "Mirror the output like a selfie preview")
	roll := flag.Bool("roll", false, "Rotate the overlay with the eye line")
	supersample := flag.Int("supersample", 0, "Scene supersampling factor 1-4 (default: 2)")
	logLevel := flag.String("log-level", "", "Log level (default: info)")

	flag.Parse()

	if *capturePath == "" || *assetURL == "" {
		fmt.Fprintln(os.Stderr, "Usage: tryon -capture face.jpg -asset frames/aviator.png [-eyes lx,ly,rx,ry] [-out out.webp]")
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
		DataDir:     *dataDir,
		Format:      *format,
		LogLevel:    *logLevel,
		Supersample: *supersample,
		Roll:        *roll,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	a, err := app.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := options{
		capture:  *capturePath,
		asset:    *assetURL,
		kind:     *kind,
		lmFile:   *lmFile,
		eyes:     *eyes,
		out:      *outPath,
		maxDim:   *maxDim,
		annotate: *annotate,
		mirror:   *mirror,
	}
	if err := run(ctx, a, opts); err != nil {
		a.Log.WithError(err).WithField("kind", errs.KindOf(err).String()).Error("try-on failed")
		a.Close()
		os.Exit(1)
	}
}

type options struct {
	capture, asset, kind string
	lmFile, eyes, out    string
	maxDim               int
	annotate, mirror     bool
}

func run(ctx context.Context, a *app.App, o options) error {
	data, err := os.ReadFile(o.capture)
	if err != nil {
		return errors.Wrap(err, "read capture")
	}
	img, err := assets.DecodeImage(data, o.capture)
	if err != nil {
		return err
	}

	lm, haveLandmarks, err := readLandmarks(o)
	if err != nil {
		return err
	}

	if o.maxDim > 0 && (img.Width > o.maxDim || img.Height > o.maxDim) {
		small := imaging.Fit(img.NRGBA(), o.maxDim, o.maxDim, imaging.Lanczos)
		sx := float64(small.Bounds().Dx()) / float64(img.Width)
		sy := float64(small.Bounds().Dy()) / float64(img.Height)
		img = raster.FromImage(small)
		lm = lm.Scale(sx, sy)
		a.Log.Debugf("capture downscaled to %dx%d", img.Width, img.Height)
	}

	var sopts []session.Option
	if !haveLandmarks {
		det, err := a.Detector()
		if err != nil {
			return errors.Wrap(err, "no landmarks given and detection unavailable")
		}
		sopts = append(sopts, session.WithDetector(det))
	}
	s := a.NewSession(sopts...)
	defer s.Dispose()

	ref := assets.NewRef(o.asset)
	if k := assets.ParseKind(o.kind); k != assets.KindUnknown {
		ref.Kind = k
	}
	if err := s.SelectAsset(ctx, ref); err != nil {
		return err
	}

	var out *raster.Image
	if haveLandmarks {
		out, err = s.SubmitCapture(ctx, img, lm)
	} else {
		out, err = s.Capture(ctx, img)
	}
	if err != nil {
		return err
	}

	snap := s.Snapshot()
	if o.annotate {
		used, _ := s.Landmarks()
		ow, oh := out.Width, out.Height
		if flat, ok := s.Asset().(*session.Flat); ok {
			ow, oh = flat.Image.Width, flat.Image.Height
		}
		if out, err = compositor.Annotate(out, used, snap.Transform, ow, oh); err != nil {
			return err
		}
	}
	if o.mirror {
		out = raster.FromImage(postprocess.FlipHorizontal(out.NRGBA()))
	}

	f := compositor.FormatForPath(o.out, compositor.Format(a.Config.Render.Format))
	if err := compositor.EncodeFile(o.out, out, f); err != nil {
		return err
	}

	a.Log.WithField("out", o.out).
		WithField("scale", fmt.Sprintf("%.3f", snap.Transform.Scale)).
		WithField("position", fmt.Sprintf("%.1f,%.1f", snap.Transform.Position.X, snap.Transform.Position.Y)).
		WithField("total", snap.Timings.Total).
		Info("composite written")
	return nil
}

func readLandmarks(o options) (landmarks.Landmarks, bool, error) {
	switch {
	case o.lmFile != "":
		data, err := os.ReadFile(o.lmFile)
		if err != nil {
			return landmarks.Landmarks{}, false, errors.Wrap(err, "read landmarks")
		}
		var lm landmarks.Landmarks
		if err := lm.UnmarshalJSON(data); err != nil {
			return landmarks.Landmarks{}, false, err
		}
		return lm, true, nil
	case o.eyes != "":
		lm, err := parseEyes(o.eyes)
		return lm, err == nil, err
	}
	return landmarks.Landmarks{}, false, nil
}

func parseEyes(s string) (landmarks.Landmarks, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return landmarks.Landmarks{}, errs.Newf(errs.InvalidLandmarks, "tryon.eyes", "want lx,ly,rx,ry, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return landmarks.Landmarks{}, errs.Wrapf(errs.InvalidLandmarks, "tryon.eyes", err, "bad coordinate %q", p)
		}
		v[i] = f
	}
	return landmarks.FromEyes(r2.Point{X: v[0], Y: v[1]}, r2.Point{X: v[2], Y: v[3]}), nil
}
