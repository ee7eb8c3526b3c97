package landmarks

import (
	"context"
	"sync"

	"github.com/golang/geo/r2"

	"eyewear-tryon/internal/raster"
)

// MockDetector is a test implementation of Detector whose results are set
// by the test.
type MockDetector struct {
	mu        sync.Mutex
	landmarks Landmarks
	err       error
	calls     int
	closed    bool
}

// NewMockDetector creates a MockDetector that finds no face until
// SetLandmarks is called.
func NewMockDetector() *MockDetector {
	return &MockDetector{err: ErrNoFace}
}

// SetLandmarks sets the landmarks returned by Detect and clears any error.
func (m *MockDetector) SetLandmarks(l Landmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.landmarks, m.err = l, nil
}

// SetError sets the error returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Detect returns the configured landmarks or error.
func (m *MockDetector) Detect(ctx context.Context, img *raster.Image) (Landmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Landmarks{}, m.err
	}
	return m.landmarks, nil
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FrontalFace returns landmarks for an upright face centered in a w×h
// capture, with an interocular distance of a quarter of the width.
func FrontalFace(w, h float64) Landmarks {
	cx, cy := w/2, h*0.42
	iod := w / 4
	return New(map[Name]r2.Point{
		LeftEye:  {X: cx - iod/2, Y: cy},
		RightEye: {X: cx + iod/2, Y: cy},
		NoseTip:  {X: cx, Y: cy + iod*0.6},
		Chin:     {X: cx, Y: cy + iod*1.6},
		LeftJaw:  {X: cx - iod, Y: cy + iod},
		RightJaw: {X: cx + iod, Y: cy + iod},
	})
}
