package landmarks

import (
	"context"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/raster"
)

// Detector is the face-landmark collaborator. Implementations return
// DetectionError-kinded failures, including when no face is found.
type Detector interface {
	// Detect analyzes a decoded capture and returns the landmarks of the
	// most prominent face.
	Detect(ctx context.Context, img *raster.Image) (Landmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// ErrNoFace is returned when the capture contains no usable face.
var ErrNoFace = errs.New(errs.DetectionError, "landmarks.detect", "no face found")

// Static returns the same landmarks for every capture. It serves callers
// whose landmarks arrive out of band, such as the CLI's -landmarks flag.
type Static struct {
	Landmarks Landmarks
}

// Detect returns s.Landmarks.
func (s Static) Detect(ctx context.Context, img *raster.Image) (Landmarks, error) {
	if err := ctx.Err(); err != nil {
		return Landmarks{}, errs.Wrap(errs.DetectionError, "landmarks.detect", err, "")
	}
	if s.Landmarks.Len() == 0 {
		return Landmarks{}, ErrNoFace
	}
	return s.Landmarks, nil
}

// Close is a no-op.
func (Static) Close() error { return nil }
