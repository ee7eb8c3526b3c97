//go:build !gocv

package landmarks

import (
	"context"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/raster"
)

// CascadeConfig configures the OpenCV cascade detector.
type CascadeConfig struct {
	Dir      string
	FaceFile string
	EyeFile  string
}

// Cascade is unavailable in builds without the gocv tag.
type Cascade struct{}

// NewCascade always fails: rebuild with -tags gocv for OpenCV detection.
func NewCascade(CascadeConfig) (*Cascade, error) {
	return nil, errs.New(errs.DetectionError, "landmarks.cascade", "built without OpenCV support (use -tags gocv)")
}

func (*Cascade) Detect(context.Context, *raster.Image) (Landmarks, error) {
	return Landmarks{}, ErrNoFace
}

func (*Cascade) Close() error { return nil }
