package scene

import (
	"bytes"
	"context"
	"image"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/logging"
	"eyewear-tryon/internal/mesh"
	"eyewear-tryon/internal/raster"
)

// Handle identifies a node. Handles are never reused.
type Handle uint64

// strayVerts is the size below which a disconnected fragment far from the
// frame is discarded.
const strayVerts = 8

// ModelWidth is the world-space width every model is normalized to. At scale
// 1 a model spans the full surface width.
const ModelWidth = 2.0

// geom is one uploaded mesh: vertex buffers, its material and the
// per-frame projection scratch space.
type geom struct {
	positions [][3]float32
	uvs       [][2]float32
	faces     []mesh.Face
	surface   raster.Surface
	proj      raster.Projected

	bytes    int64 // vertex, index and projection buffers
	matBytes int64 // material state, textures are shared and not counted
}

type node struct {
	handle   Handle
	url      string
	name     string
	geoms    []*geom
	pose     pose
	released bool
}

// NodeInfo describes a live node.
type NodeInfo struct {
	Handle    Handle
	URL       string
	Name      string
	Meshes    int
	Vertices  int
	Triangles int
	Bytes     int64
}

func (n *node) info() NodeInfo {
	in := NodeInfo{Handle: n.handle, URL: n.url, Name: n.name, Meshes: len(n.geoms)}
	for _, g := range n.geoms {
		in.Vertices += len(g.positions)
		in.Triangles += len(g.faces)
		in.Bytes += g.bytes + g.matBytes
	}
	return in
}

// Resources counts GPU-style buffers held by the scene. After a swap only
// the active node's buffers may remain; anything more is a leak.
type Resources struct {
	Nodes         int64
	Geometries    int64
	Materials     int64
	GeometryBytes int64
	MaterialBytes int64
	SurfaceBytes  int64
}

type counters struct {
	nodes, geometries, materials atomic.Int64
	geometryBytes, materialBytes atomic.Int64
}

func (c *counters) add(n *node, sign int64) {
	c.nodes.Add(sign)
	for _, g := range n.geoms {
		c.geometries.Add(sign)
		c.materials.Add(sign)
		c.geometryBytes.Add(sign * g.bytes)
		c.materialBytes.Add(sign * g.matBytes)
	}
}

var handleSeq atomic.Uint64

// builder turns fetched bytes into a node. It runs on the load goroutine
// and touches no manager state except the resource counters.
type builder struct {
	fetch    assets.Fetcher
	textures *assets.TextureCache
	counters *counters
	log      logrus.FieldLogger
}

func (b *builder) build(ctx context.Context, url string) (*node, error) {
	const op = "scene.load"
	data, err := b.fetch.Fetch(ctx, url)
	if err != nil {
		return nil, errs.Ensure(errs.FetchError, op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.AssetLoadFailed, op, err, "cancelled")
	}

	model, err := mesh.Parse(data, url)
	if err != nil {
		return nil, errs.Ensure(errs.AssetLoadFailed, op, err)
	}
	for _, lib := range model.MaterialLibs {
		b.applyMTL(ctx, model, assets.Resolve(url, lib))
	}
	if dropped := model.Clean(strayVerts); dropped > 0 {
		b.log.WithField(logging.AssetKey, url).Debugf("dropped %d helper meshes", dropped)
	}
	model.Normalize(ModelWidth)

	n := &node{handle: Handle(handleSeq.Add(1)), url: url, name: model.Name}
	for i := range model.Meshes {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.AssetLoadFailed, op, err, "cancelled")
		}
		m := &model.Meshes[i]
		g := &geom{
			positions: m.Positions,
			uvs:       m.UVs,
			faces:     m.Faces,
			surface:   raster.Surface{Color: m.Material.Diffuse},
			bytes:     m.Bytes(),
			matBytes:  int64(len(m.Material.Name)) + 4,
		}
		if m.Material.Texture != "" {
			g.surface.Texture = b.texture(ctx, url, m.Material.Texture)
		}
		g.proj.Ensure(len(m.Positions))
		g.bytes += g.proj.Bytes()
		n.geoms = append(n.geoms, g)
	}
	b.counters.add(n, 1)
	return n, nil
}

func (b *builder) applyMTL(ctx context.Context, model *mesh.Model, url string) {
	log := b.log.WithField(logging.AssetKey, url)
	data, err := b.fetch.Fetch(ctx, url)
	if err != nil {
		log.WithError(err).Warn("material library unavailable, using defaults")
		return
	}
	lib, err := mesh.ParseMTL(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).Warn("material library unreadable, using defaults")
		return
	}
	model.ApplyMaterials(lib)
}

// texture resolves a texture, falling back to the flat material color.
func (b *builder) texture(ctx context.Context, base, name string) *image.NRGBA {
	if b.textures == nil {
		return nil
	}
	img, err := b.textures.Resolve(ctx, base, name)
	if err != nil {
		b.log.WithError(err).WithField(logging.AssetKey, name).Warn("texture unavailable, drawing untextured")
		return nil
	}
	return img
}

// release drops a node's buffers. It is idempotent.
func (n *node) release(c *counters) {
	if n.released {
		return
	}
	c.add(n, -1)
	for _, g := range n.geoms {
		g.positions, g.uvs, g.faces = nil, nil, nil
		g.surface = raster.Surface{}
		g.proj = raster.Projected{}
	}
	n.geoms = nil
	n.released = true
}
