//go:build gocv

package landmarks

import (
	"context"
	"image"
	"path/filepath"
	"sort"
	"sync"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/raster"
)

// Default Haar cascade locations searched when CascadeConfig.Dir is empty.
var cascadeDirs = []string{
	"./models/haarcascades",
	"/usr/local/share/opencv4/haarcascades",
	"/usr/share/opencv4/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

// CascadeConfig configures the OpenCV cascade detector.
type CascadeConfig struct {
	Dir      string // directory holding the cascade XML files
	FaceFile string // default haarcascade_frontalface_alt.xml
	EyeFile  string // default haarcascade_eye.xml
}

// Cascade detects the most prominent face and its eye centers with OpenCV
// Haar cascades. When the eye cascade does not find two eyes the centers are
// estimated from the face box.
type Cascade struct {
	mu   sync.Mutex
	face gocv.CascadeClassifier
	eye  gocv.CascadeClassifier
}

// NewCascade loads the face and eye classifiers.
func NewCascade(cfg CascadeConfig) (*Cascade, error) {
	const op = "landmarks.cascade"
	if cfg.FaceFile == "" {
		cfg.FaceFile = "haarcascade_frontalface_alt.xml"
	}
	if cfg.EyeFile == "" {
		cfg.EyeFile = "haarcascade_eye.xml"
	}
	dirs := cascadeDirs
	if cfg.Dir != "" {
		dirs = []string{cfg.Dir}
	}

	c := &Cascade{
		face: gocv.NewCascadeClassifier(),
		eye:  gocv.NewCascadeClassifier(),
	}
	if !loadFirst(&c.face, dirs, cfg.FaceFile) {
		c.Close()
		return nil, errs.Newf(errs.DetectionError, op, "cannot load %s", cfg.FaceFile)
	}
	if !loadFirst(&c.eye, dirs, cfg.EyeFile) {
		c.Close()
		return nil, errs.Newf(errs.DetectionError, op, "cannot load %s", cfg.EyeFile)
	}
	return c, nil
}

func loadFirst(cc *gocv.CascadeClassifier, dirs []string, name string) bool {
	for _, d := range dirs {
		if cc.Load(filepath.Join(d, name)) {
			return true
		}
	}
	return false
}

// Detect implements Detector.
func (c *Cascade) Detect(ctx context.Context, img *raster.Image) (Landmarks, error) {
	const op = "landmarks.detect"
	if err := img.Validate(op); err != nil {
		return Landmarks{}, errs.Wrap(errs.DetectionError, op, err, "")
	}
	if err := ctx.Err(); err != nil {
		return Landmarks{}, errs.Wrap(errs.DetectionError, op, err, "")
	}

	mat, err := gocv.ImageToMatRGBA(img.NRGBA())
	if err != nil {
		return Landmarks{}, errs.Wrap(errs.DetectionError, op, err, "convert capture")
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBAToGray)
	gocv.EqualizeHist(gray, &gray)

	c.mu.Lock()
	defer c.mu.Unlock()

	faces := c.face.DetectMultiScale(gray)
	if len(faces) == 0 {
		return Landmarks{}, ErrNoFace
	}
	sort.Slice(faces, func(i, j int) bool { return area(faces[i]) > area(faces[j]) })
	face := faces[0]

	// Eyes sit in the upper half of the face box.
	upper := image.Rect(face.Min.X, face.Min.Y, face.Max.X, face.Min.Y+face.Dy()/2)
	region := gray.Region(upper)
	eyes := c.eye.DetectMultiScale(region)
	region.Close()

	left, right := estimateEyes(face)
	if len(eyes) >= 2 {
		sort.Slice(eyes, func(i, j int) bool { return area(eyes[i]) > area(eyes[j]) })
		a, b := center(eyes[0], upper.Min), center(eyes[1], upper.Min)
		if a.X > b.X {
			a, b = b, a
		}
		left, right = a, b
	}

	fw, fh := float64(face.Dx()), float64(face.Dy())
	return New(map[Name]r2.Point{
		LeftEye:  left,
		RightEye: right,
		NoseTip:  {X: float64(face.Min.X) + fw*0.5, Y: float64(face.Min.Y) + fh*0.62},
		Chin:     {X: float64(face.Min.X) + fw*0.5, Y: float64(face.Max.Y)},
	}), nil
}

// Close releases the classifiers.
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return multierr.Combine(c.face.Close(), c.eye.Close())
}

func area(r image.Rectangle) int { return r.Dx() * r.Dy() }

func center(r image.Rectangle, off image.Point) r2.Point {
	return r2.Point{
		X: float64(off.X) + float64(r.Min.X+r.Max.X)/2,
		Y: float64(off.Y) + float64(r.Min.Y+r.Max.Y)/2,
	}
}

// estimateEyes places the eyes at typical proportions of a frontal face box.
func estimateEyes(face image.Rectangle) (r2.Point, r2.Point) {
	fw, fh := float64(face.Dx()), float64(face.Dy())
	y := float64(face.Min.Y) + fh*0.38
	return r2.Point{X: float64(face.Min.X) + fw*0.30, Y: y},
		r2.Point{X: float64(face.Min.X) + fw*0.70, Y: y}
}
