// Package session drives one try-on surface: it owns the active glasses
// asset, the latest capture's landmarks and output, and the session's 3D
// scene, and it turns every failure into an observable Error state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/compositor"
	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/geometry"
	"eyewear-tryon/internal/landmarks"
	"eyewear-tryon/internal/logging"
	"eyewear-tryon/internal/postprocess"
	"eyewear-tryon/internal/raster"
	"eyewear-tryon/internal/scene"
)

// State is the session's observable state.
type State int

const (
	Idle State = iota
	CapturingInput
	LandmarksReady
	Composited
	Error
	Disposed
)

var stateNames = [...]string{
	Idle:           "idle",
	CapturingInput: "capturing_input",
	LandmarksReady: "landmarks_ready",
	Composited:     "composited",
	Error:          "error",
	Disposed:       "disposed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Config tunes a session.
type Config struct {
	Geometry geometry.Params

	// TrimPadding crops fully transparent margins off flat overlays before
	// their native width is measured, so the fit follows the visible frame
	// rather than the file's canvas. Off by default.
	TrimPadding   bool
	TrimThreshold uint8

	// Scene surface used until the first capture fixes the size.
	SurfaceWidth  int
	SurfaceHeight int
	Supersample   int

	// MaxPixels bounds the composite output. SceneMaxPixels bounds the
	// supersampled render surface, which costs far more per pixel.
	MaxPixels      int64
	SceneMaxPixels int64

	// LoadTimeout bounds how long a capture waits for a model load. Zero
	// waits for as long as the caller's context allows.
	LoadTimeout time.Duration
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		Geometry:       geometry.DefaultParams(),
		TrimThreshold:  8,
		SurfaceWidth:   640,
		SurfaceHeight:  480,
		Supersample:    2,
		MaxPixels:      compositor.DefaultMaxPixels,
		SceneMaxPixels: scene.DefaultMaxPixels,
		LoadTimeout:    30 * time.Second,
	}
}

// Event is one state transition.
type Event struct {
	SessionID string
	From, To  State
	Asset     string
	ErrKind   errs.Kind
	Message   string
	At        time.Time
}

// HistoryRecorder persists transitions. Recording is best effort.
type HistoryRecorder interface {
	Record(ctx context.Context, e Event) error
}

// Timings are the durations of the most recent capture's stages.
type Timings struct {
	Detect    time.Duration
	Geometry  time.Duration
	Render    time.Duration
	Composite time.Duration
	Total     time.Duration
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID         string
	State      State
	ErrKind    errs.Kind
	ErrMessage string
	Asset      assets.Ref
	HasOutput  bool
	Transform  geometry.Transform
	Timings    Timings
	UpdatedAt  time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Controller) { c.log = l } }

// WithDetector sets the landmark detector used by Capture. The controller
// takes ownership and closes it on Dispose.
func WithDetector(d landmarks.Detector) Option { return func(c *Controller) { c.detector = d } }

// WithHistory records every transition.
func WithHistory(h HistoryRecorder) Option { return func(c *Controller) { c.history = h } }

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option { return func(c *Controller) { c.clock = clk } }

// WithTextures shares a texture cache with other sessions.
func WithTextures(tc *assets.TextureCache) Option { return func(c *Controller) { c.textures = tc } }

// WithID fixes the session ID instead of generating one.
func WithID(id string) Option { return func(c *Controller) { c.id = id } }

// Controller is one try-on session. Its methods must not be called
// concurrently, except Snapshot and Output which may be called from any
// goroutine.
type Controller struct {
	id       string
	cfg      Config
	fetch    assets.Fetcher
	textures *assets.TextureCache
	detector landmarks.Detector
	history  HistoryRecorder
	clock    clock.Clock
	log      logrus.FieldLogger
	comp     *compositor.Compositor

	mu        sync.Mutex
	state     State
	err       error
	asset     Asset
	lm        landmarks.Landmarks
	transform geometry.Transform
	output    *raster.Image
	scene     *scene.Manager
	timings   Timings
	updatedAt time.Time
}

// New returns an Idle session fetching assets through fetch.
func New(cfg Config, fetch assets.Fetcher, opts ...Option) *Controller {
	c := &Controller{cfg: cfg, fetch: fetch}
	for _, o := range opts {
		o(c)
	}
	if c.id == "" {
		c.id = uuid.New().String()
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	c.log = logging.OrDiscard(c.log).WithField(logging.SessionIDKey, c.id)
	c.comp = compositor.New()
	if cfg.MaxPixels > 0 {
		c.comp.MaxPixels = cfg.MaxPixels
	}
	c.updatedAt = c.clock.Now()
	return c
}

// ID returns the session's unique ID.
func (c *Controller) ID() string { return c.id }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that put the session in Error, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Asset returns the active asset, or nil.
func (c *Controller) Asset() Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asset
}

// Output returns a copy of the latest composite, or nil.
func (c *Controller) Output() *raster.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.Clone()
}

// Landmarks returns the landmarks of the latest capture.
func (c *Controller) Landmarks() (landmarks.Landmarks, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lm, c.lm.Len() > 0
}

// Scene returns the session's scene, nil until a volumetric asset is
// selected.
func (c *Controller) Scene() *scene.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scene
}

// Snapshot reports the session's current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		ID:        c.id,
		State:     c.state,
		HasOutput: c.output != nil,
		Transform: c.transform,
		Timings:   c.timings,
		UpdatedAt: c.updatedAt,
	}
	if c.err != nil {
		s.ErrKind = errs.KindOf(c.err)
		s.ErrMessage = errs.Message(c.err)
	}
	if c.asset != nil {
		s.Asset = c.asset.Ref()
	}
	return s
}

// transition moves to state `to` and reports it. Callers hold no lock.
func (c *Controller) transition(ctx context.Context, to State, cause error) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.err = cause
	c.updatedAt = c.clock.Now()
	ev := Event{SessionID: c.id, From: from, To: to, At: c.updatedAt}
	if c.asset != nil {
		ev.Asset = c.asset.Ref().URL
	}
	c.mu.Unlock()

	log := c.log.WithField(logging.StateKey, to.String()).WithField("from", from.String())
	if ev.Asset != "" {
		log = log.WithField(logging.AssetKey, ev.Asset)
	}
	if cause != nil {
		ev.ErrKind = errs.KindOf(cause)
		ev.Message = errs.Message(cause)
		log.WithError(cause).WithField(logging.KindKey, ev.ErrKind.String()).Warn("session failed")
	} else {
		log.Debug("session state changed")
	}

	if c.history != nil {
		if err := c.history.Record(ctx, ev); err != nil {
			c.log.WithError(err).Warn("recording session history failed")
		}
	}
}

// fail moves to Error and returns err for the caller.
func (c *Controller) fail(ctx context.Context, err error) error {
	c.transition(ctx, Error, err)
	return err
}

// begin checks that the session is usable and implicitly acknowledges a
// previous error.
func (c *Controller) begin(ctx context.Context, op string) error {
	switch c.State() {
	case Disposed:
		return errs.New(errs.SessionDisposed, op, "session is disposed")
	case Error:
		c.transition(ctx, Idle, nil)
	}
	return nil
}

// SelectAsset makes ref the active asset. Selecting the active asset again
// is a no-op. Flat assets are fetched and decoded before SelectAsset
// returns; volumetric assets start loading in the session's scene and are
// waited for by the next capture. Switching assets discards any existing
// composite. On failure the session enters Error and keeps its previous
// asset.
func (c *Controller) SelectAsset(ctx context.Context, ref assets.Ref) error {
	const op = "session.select"
	if err := c.begin(ctx, op); err != nil {
		return err
	}
	if err := ref.Validate(); err != nil {
		return c.fail(ctx, err)
	}

	c.mu.Lock()
	prev := c.asset
	c.mu.Unlock()
	if prev != nil && prev.Ref() == ref {
		return nil
	}

	var next Asset
	switch ref.Kind {
	case assets.KindFlat:
		img, err := c.loadFlat(ctx, ref)
		if err != nil {
			return c.fail(ctx, err)
		}
		next = &Flat{Image: img, Source: ref}
	case assets.KindVolumetric:
		sc, err := c.ensureScene()
		if err != nil {
			return c.fail(ctx, err)
		}
		t, err := sc.Load(ctx, ref.URL)
		if err != nil {
			return c.fail(ctx, err)
		}
		next = &Volumetric{SourceURL: ref.URL, ticket: t, previous: prev}
	default:
		return c.fail(ctx, errs.Newf(errs.UnsupportedAssetFormat, op, "unknown asset kind %v", ref.Kind))
	}

	c.mu.Lock()
	c.asset = next
	hadOutput := c.output != nil
	c.output = nil
	c.lm = landmarks.Landmarks{}
	c.mu.Unlock()

	c.log.WithField(logging.AssetKey, ref.String()).Info("asset selected")
	if hadOutput || c.State() != Idle {
		c.transition(ctx, Idle, nil)
	}
	return nil
}

func (c *Controller) loadFlat(ctx context.Context, ref assets.Ref) (*raster.Image, error) {
	data, err := c.fetch.Fetch(ctx, ref.URL)
	if err != nil {
		return nil, errs.Ensure(errs.FetchError, "session.select", err)
	}
	img, err := assets.DecodeFlat(data, ref.URL)
	if err != nil {
		return nil, err
	}
	if c.cfg.TrimPadding {
		trimmed := postprocess.TrimTransparent(img.NRGBA(), c.cfg.TrimThreshold)
		img = raster.FromImage(trimmed)
	}
	return img, nil
}

func (c *Controller) ensureScene() (*scene.Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scene != nil {
		return c.scene, nil
	}
	opts := []scene.Option{
		scene.WithLogger(c.log),
		scene.WithSupersample(c.cfg.Supersample),
	}
	if c.textures != nil {
		opts = append(opts, scene.WithTextures(c.textures))
	}
	if c.cfg.SceneMaxPixels > 0 {
		opts = append(opts, scene.WithMaxPixels(c.cfg.SceneMaxPixels))
	}
	sc := scene.New(c.fetch, opts...)
	w, h := c.cfg.SurfaceWidth, c.cfg.SurfaceHeight
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	if err := sc.Setup(w, h); err != nil {
		sc.Dispose()
		return nil, err
	}
	c.scene = sc
	return sc, nil
}

// SubmitCapture composites the active asset onto img using lm and returns a
// copy of the result. The session ends in Composited, or in Error with the
// failure returned.
func (c *Controller) SubmitCapture(ctx context.Context, img *raster.Image, lm landmarks.Landmarks) (*raster.Image, error) {
	return c.submit(ctx, img, lm, 0)
}

// Capture detects landmarks in img with the configured detector, then
// proceeds as SubmitCapture.
func (c *Controller) Capture(ctx context.Context, img *raster.Image) (*raster.Image, error) {
	const op = "session.capture"
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	if c.detector == nil {
		return nil, c.fail(ctx, errs.New(errs.InvalidState, op, "no landmark detector configured"))
	}
	if err := img.Validate(op); err != nil {
		return nil, c.fail(ctx, err)
	}
	start := c.clock.Now()
	lm, err := c.detector.Detect(ctx, img)
	if err != nil {
		return nil, c.fail(ctx, errs.Ensure(errs.DetectionError, op, err))
	}
	return c.submit(ctx, img, lm, c.clock.Since(start))
}

func (c *Controller) submit(ctx context.Context, img *raster.Image, lm landmarks.Landmarks, detect time.Duration) (*raster.Image, error) {
	const op = "session.submit"
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	c.mu.Lock()
	asset := c.asset
	c.mu.Unlock()
	if asset == nil {
		return nil, c.fail(ctx, errs.New(errs.InvalidState, op, "no asset selected"))
	}

	start := c.clock.Now()
	tm := Timings{Detect: detect}
	c.transition(ctx, CapturingInput, nil)
	if err := img.Validate(op); err != nil {
		return nil, c.fail(ctx, err)
	}
	if err := lm.Validate(); err != nil {
		return nil, c.fail(ctx, err)
	}
	c.mu.Lock()
	c.lm = lm
	c.output = nil
	c.mu.Unlock()
	c.transition(ctx, LandmarksReady, nil)

	var (
		out *raster.Image
		t   geometry.Transform
		err error
	)
	switch a := asset.(type) {
	case *Flat:
		out, t, err = c.compositeFlat(img, lm, a, &tm)
	case *Volumetric:
		out, t, err = c.compositeVolumetric(ctx, img, lm, a, &tm)
	default:
		err = errs.Newf(errs.InvalidState, op, "unknown asset type %T", asset)
	}
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	tm.Total = detect + c.clock.Since(start)

	c.mu.Lock()
	c.output = out
	c.transform = t
	c.timings = tm
	c.mu.Unlock()
	c.transition(ctx, Composited, nil)
	return out.Clone(), nil
}

func (c *Controller) compositeFlat(img *raster.Image, lm landmarks.Landmarks, a *Flat, tm *Timings) (*raster.Image, geometry.Transform, error) {
	mark := c.clock.Now()
	t, err := c.cfg.Geometry.Compute(lm, float64(a.Image.Width), float64(a.Image.Height))
	if err != nil {
		return nil, t, err
	}
	tm.Geometry = c.clock.Since(mark)

	mark = c.clock.Now()
	out, err := c.comp.Composite(img, a.Image, t)
	tm.Composite = c.clock.Since(mark)
	return out, t, err
}

// compositeVolumetric renders the model at the capture's size and blends
// the frame over the capture. The model is normalized to the surface width,
// so the image width is its native width.
func (c *Controller) compositeVolumetric(ctx context.Context, img *raster.Image, lm landmarks.Landmarks, a *Volumetric, tm *Timings) (*raster.Image, geometry.Transform, error) {
	sc := c.Scene()
	if sc == nil {
		return nil, geometry.Transform{}, errs.New(errs.InvalidState, "session.render", "volumetric asset without a scene")
	}

	wctx := ctx
	if c.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, c.cfg.LoadTimeout)
		defer cancel()
	}
	select {
	case <-a.ticket.Done():
	case <-wctx.Done():
		return nil, geometry.Transform{}, errs.Wrap(errs.AssetLoadFailed, "session.render", wctx.Err(), "waiting for model")
	}
	if err := a.ticket.Err(); err != nil {
		c.revert(a)
		return nil, geometry.Transform{}, errs.Ensure(errs.AssetLoadFailed, "session.render", err)
	}

	mark := c.clock.Now()
	t, err := c.cfg.Geometry.Compute(lm, float64(img.Width), float64(img.Height))
	if err != nil {
		return nil, t, err
	}
	tm.Geometry = c.clock.Since(mark)

	mark = c.clock.Now()
	if err := sc.Setup(img.Width, img.Height); err != nil {
		return nil, t, err
	}
	if err := sc.Place(t, img.Width, img.Height); err != nil {
		return nil, t, err
	}
	frame, err := sc.RenderFrame()
	if err != nil {
		return nil, t, err
	}
	tm.Render = c.clock.Since(mark)

	mark = c.clock.Now()
	out, err := c.comp.Composite(img, frame, geometry.Identity(img.Width, img.Height))
	tm.Composite = c.clock.Since(mark)
	return out, t, err
}

// revert restores the asset that was active before a failed model load,
// skipping models whose own load never completed.
func (c *Controller) revert(a *Volumetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.asset != a {
		return
	}
	prev := a.previous
	for prev != nil && !loaded(prev) {
		prev = prev.(*Volumetric).previous
	}
	c.asset = prev
}

// loaded reports whether a can be rendered without further loading. Flat
// overlays always can; a model only once its ticket settled without error.
func loaded(a Asset) bool {
	v, ok := a.(*Volumetric)
	if !ok {
		return true
	}
	_, ok = v.Handle()
	return ok
}

// Reset returns to Idle, dropping the output and landmarks. The asset and
// the scene are kept.
func (c *Controller) Reset() error {
	ctx := context.Background()
	if c.State() == Disposed {
		return errs.New(errs.SessionDisposed, "session.reset", "session is disposed")
	}
	c.mu.Lock()
	c.output = nil
	c.lm = landmarks.Landmarks{}
	c.transform = geometry.Transform{}
	c.mu.Unlock()
	c.transition(ctx, Idle, nil)
	return nil
}

// Acknowledge clears an Error state. It does nothing in any other state.
func (c *Controller) Acknowledge() error {
	switch c.State() {
	case Disposed:
		return errs.New(errs.SessionDisposed, "session.acknowledge", "session is disposed")
	case Error:
		c.transition(context.Background(), Idle, nil)
	}
	return nil
}

// Dispose tears down the scene, drops all rasters and closes the detector.
// The session is unusable afterwards; Dispose itself is idempotent.
func (c *Controller) Dispose() error {
	if c.State() == Disposed {
		return nil
	}
	c.mu.Lock()
	sc := c.scene
	c.scene = nil
	c.asset = nil
	c.output = nil
	c.lm = landmarks.Landmarks{}
	det := c.detector
	c.detector = nil
	c.mu.Unlock()

	if sc != nil {
		sc.Dispose()
	}
	var err error
	if det != nil {
		err = det.Close()
	}
	c.transition(context.Background(), Disposed, nil)
	return err
}
