// Package scene renders volumetric glasses models over a capture.
//
// A Manager owns one render surface, an orthographic camera, the lights and
// at most one active model node. Model loads run asynchronously; starting a
// new load supersedes any load still in flight, and only the newest load can
// ever become active. Public methods must be called from one goroutine at a
// time; load completion is applied under the manager's lock.
package scene

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/geometry"
	"eyewear-tryon/internal/logging"
	"eyewear-tryon/internal/postprocess"
	"eyewear-tryon/internal/raster"
)

// State is the manager's lifecycle state.
type State int

const (
	Uninitialized State = iota
	Ready
	LoadingAsset
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case LoadingAsset:
		return "loading"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

// DefaultMaxPixels bounds the supersampled surface.
const DefaultMaxPixels = 1 << 26

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(m *Manager) { m.log = l } }

// WithSupersample renders at n× the output size and filters down. Values
// below 1 are treated as 1.
func WithSupersample(n int) Option { return func(m *Manager) { m.supersample = n } }

// WithLights replaces the default studio lighting.
func WithLights(lc raster.LightConfig) Option { return func(m *Manager) { m.lights = lc } }

// WithTextures shares a texture cache between managers.
func WithTextures(tc *assets.TextureCache) Option { return func(m *Manager) { m.textures = tc } }

// WithMaxPixels bounds the supersampled surface size.
func WithMaxPixels(n int64) Option { return func(m *Manager) { m.maxPixels = n } }

// Manager is one session's 3D scene.
type Manager struct {
	fetch       assets.Fetcher
	textures    *assets.TextureCache
	log         logrus.FieldLogger
	supersample int
	lights      raster.LightConfig
	maxPixels   int64
	counters    counters

	mu      sync.Mutex
	state   State
	camera  camera
	fb      *raster.FrameBuffer
	active  *node
	pose    pose
	placed  bool
	gen     uint64
	pending *Ticket
	cancel  context.CancelFunc
	lastErr error

	wg sync.WaitGroup // load goroutines
}

// New returns an Uninitialized manager loading assets through fetch.
func New(fetch assets.Fetcher, opts ...Option) *Manager {
	m := &Manager{
		fetch:       fetch,
		supersample: 1,
		lights:      raster.DefaultLightConfig(),
		maxPixels:   DefaultMaxPixels,
	}
	for _, o := range opts {
		o(m)
	}
	if m.supersample < 1 {
		m.supersample = 1
	}
	if m.textures == nil {
		m.textures = assets.NewTextureCache(fetch)
	}
	m.log = logging.OrDiscard(m.log)
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError is the failure of the most recent settled load, nil if it
// succeeded.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Setup creates the render surface, camera and lights for w×h output, or
// resizes an existing surface. The first call moves the manager to Ready.
func (m *Manager) Setup(w, h int) error {
	const op = "scene.setup"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disposed {
		return errs.New(errs.SceneDisposed, op, "scene is disposed")
	}
	if w <= 0 || h <= 0 {
		return errs.Newf(errs.InvalidImage, op, "surface must have positive size, got %dx%d", w, h)
	}
	ss := int64(m.supersample)
	fw, fh := int64(w)*ss, int64(h)*ss
	if n := fw * fh; n/fh != fw || n > m.maxPixels {
		return errs.Newf(errs.AllocationFailure, op, "surface %dx%d at %dx supersampling exceeds %d pixels", w, h, ss, m.maxPixels)
	}

	if m.fb == nil {
		m.fb = raster.NewFrameBuffer(int(fw), int(fh))
	} else if m.fb.Width != int(fw) || m.fb.Height != int(fh) {
		m.fb.Resize(int(fw), int(fh))
	}
	m.camera = newCamera(w, h)
	if m.state == Uninitialized {
		m.state = Ready
	}
	return nil
}

// Size returns the output size set by Setup.
func (m *Manager) Size() (w, h int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera.width, m.camera.height
}

// Load starts loading the model at url and returns at once. Any load still
// in flight is cancelled and its ticket settles with ErrSuperseded. ctx
// bounds the load itself.
func (m *Manager) Load(ctx context.Context, url string) (*Ticket, error) {
	const op = "scene.load"
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Disposed:
		return nil, errs.New(errs.SceneDisposed, op, "scene is disposed")
	case Uninitialized:
		return nil, errs.New(errs.InvalidState, op, "scene has no surface, call Setup first")
	}

	m.supersedeLocked(ErrSuperseded)
	m.gen++
	gen := m.gen
	lctx, cancel := context.WithCancel(ctx)
	t := newTicket(gen, url)
	m.pending, m.cancel = t, cancel
	m.state = LoadingAsset

	log := m.log.WithFields(logrus.Fields{logging.AssetKey: url, logging.GenerationKey: gen})
	log.Debug("model load started")

	b := &builder{fetch: m.fetch, textures: m.textures, counters: &m.counters, log: log}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		n, err := b.build(lctx, url)
		m.complete(t, n, err)
	}()
	return t, nil
}

// supersedeLocked cancels and settles the in-flight load, if any.
func (m *Manager) supersedeLocked(reason error) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.pending != nil {
		m.pending.settle(0, reason)
		m.pending = nil
	}
}

// complete applies a finished load. Results from any generation but the
// newest are discarded and their node released immediately.
func (m *Manager) complete(t *Ticket, n *node, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.log.WithFields(logrus.Fields{logging.AssetKey: t.URL, logging.GenerationKey: t.Generation})

	if m.state == Disposed || t.Generation != m.gen {
		if n != nil {
			n.release(&m.counters)
		}
		log.Debug("stale model load discarded")
		return
	}

	m.pending, m.cancel = nil, nil
	m.state = Ready
	if err != nil {
		m.lastErr = err
		log.WithError(err).WithField(logging.KindKey, errs.KindOf(err)).Warn("model load failed, keeping previous model")
		t.settle(0, err)
		return
	}

	old := m.active
	m.active = n
	if m.placed {
		n.pose = m.pose
	}
	if old != nil {
		old.release(&m.counters)
	}
	m.lastErr = nil
	log.WithField("node", n.handle).Info("model active")
	t.settle(n.handle, nil)
}

// Wait blocks until the newest load has settled and returns its error. A
// load superseded while waiting is followed to its replacement.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.state == Disposed {
			m.mu.Unlock()
			return errs.New(errs.SceneDisposed, "scene.wait", "scene is disposed")
		}
		t := m.pending
		if t == nil {
			err := m.lastErr
			m.mu.Unlock()
			return err
		}
		m.mu.Unlock()

		select {
		case <-t.Done():
			if err := t.Err(); !errors.Is(err, ErrSuperseded) {
				if m.State() == Disposed {
					return errs.New(errs.SceneDisposed, "scene.wait", "scene is disposed")
				}
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Active returns the handle of the node currently drawn.
func (m *Manager) Active() (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0, false
	}
	return m.active.handle, true
}

// Lookup describes a live node. Released nodes are never resolved.
func (m *Manager) Lookup(h Handle) (NodeInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.handle != h || m.active.released {
		return NodeInfo{}, false
	}
	return m.active.info(), true
}

// Resources reports the buffers currently held.
func (m *Manager) Resources() Resources {
	m.mu.Lock()
	var surface int64
	if m.fb != nil {
		surface = m.fb.Bytes()
	}
	m.mu.Unlock()
	return Resources{
		Nodes:         m.counters.nodes.Load(),
		Geometries:    m.counters.geometries.Load(),
		Materials:     m.counters.materials.Load(),
		GeometryBytes: m.counters.geometryBytes.Load(),
		MaterialBytes: m.counters.materialBytes.Load(),
		SurfaceBytes:  surface,
	}
}

// Place positions the active model for a source image of imageW×imageH
// pixels: centered at t.Position, scaled by t.Scale and rotated by
// t.Rotation (clockwise in image space). The placement also applies to
// models that become active later.
func (m *Manager) Place(t geometry.Transform, imageW, imageH int) error {
	const op = "scene.place"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disposed {
		return errs.New(errs.SceneDisposed, op, "scene is disposed")
	}
	if m.state == Uninitialized {
		return errs.New(errs.InvalidState, op, "scene has no surface, call Setup first")
	}
	if imageW <= 0 || imageH <= 0 {
		return errs.Newf(errs.InvalidImage, op, "image must have positive size, got %dx%d", imageW, imageH)
	}
	c := newCamera(imageW, imageH)
	p := newPose(c.toNDC(t.Position), t.Scale, -t.Rotation)
	if !p.valid() {
		return errs.Newf(errs.InvalidLandmarks, op, "transform is not placeable: %+v", t)
	}
	m.pose, m.placed = p, true
	if m.active != nil {
		m.active.pose = p
	}
	return nil
}

// RenderFrame draws the active model on a transparent background and
// returns a new image of the Setup size.
func (m *Manager) RenderFrame() (*raster.Image, error) {
	const op = "scene.render"
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Disposed:
		return nil, errs.New(errs.SceneDisposed, op, "scene is disposed")
	case Uninitialized:
		return nil, errs.New(errs.InvalidState, op, "scene has no surface, call Setup first")
	}

	m.fb.Clear()
	if m.active != nil && m.placed {
		m.draw(m.active)
	}

	if m.supersample == 1 {
		return m.fb.Snapshot(), nil
	}
	view := &image.NRGBA{
		Pix:    m.fb.Color,
		Stride: m.fb.Width * 4,
		Rect:   image.Rect(0, 0, m.fb.Width, m.fb.Height),
	}
	small := postprocess.Downsample(view, m.camera.width, m.camera.height)
	return &raster.Image{Width: m.camera.width, Height: m.camera.height, Pix: small.Pix, HasAlpha: true}, nil
}

func (m *Manager) draw(n *node) {
	fw, fh := float64(m.fb.Width), float64(m.fb.Height)
	for _, g := range n.geoms {
		g.proj.Ensure(len(g.positions))
		for i, v := range g.positions {
			g.proj.X[i], g.proj.Y[i], g.proj.Z[i] = m.camera.project(v, &n.pose, fw, fh)
		}
		for _, f := range g.faces {
			vi := [3]int{int(f.V[0]), int(f.V[1]), int(f.V[2])}
			ti := [3]int{int(f.T[0]), int(f.T[1]), int(f.T[2])}
			raster.RasterizeTriangle(m.fb, &g.proj, g.uvs, vi, ti, &g.surface, &m.lights)
		}
	}
}

// Dispose releases the active model and the surface and cancels any load in
// flight. It is terminal and idempotent; later calls fail with
// SceneDisposed. Loads still running release their results as they finish.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disposed {
		return
	}
	m.state = Disposed
	m.supersedeLocked(errs.New(errs.SceneDisposed, "scene.load", "scene disposed during load"))
	if m.active != nil {
		m.active.release(&m.counters)
		m.active = nil
	}
	if m.fb != nil {
		m.fb.Release()
		m.fb = nil
	}
	m.log.Debug("scene disposed")
}
