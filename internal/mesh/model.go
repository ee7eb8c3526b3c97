// Package mesh parses volumetric glasses assets into triangle meshes ready
// for the scene renderer.
package mesh

import (
	"math"

	"eyewear-tryon/internal/mathutil"
)

// Face is one triangle. V, T and N index the owning mesh's Positions, UVs and
// Normals; T and N hold -1 where the source had no texture coordinate or
// normal.
type Face struct {
	V, T, N [3]int32
}

// Material is the surface a mesh is drawn with.
type Material struct {
	Name    string
	Diffuse [4]uint8 // non-premultiplied RGBA
	Texture string   // relative to the asset, empty when untextured
}

// DefaultMaterial is opaque white.
func DefaultMaterial() Material {
	return Material{Diffuse: [4]uint8{255, 255, 255, 255}}
}

// Mesh is a run of faces sharing one material.
type Mesh struct {
	Name      string
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Faces     []Face
	Material  Material
}

// Bytes approximates the memory held by the mesh buffers.
func (m *Mesh) Bytes() int64 {
	return int64(len(m.Positions))*12 + int64(len(m.Normals))*12 +
		int64(len(m.UVs))*8 + int64(len(m.Faces))*36
}

// Model is a parsed asset.
type Model struct {
	Name   string
	Format string // "obj" or "bmd"
	Meshes []Mesh

	// MaterialLibs lists the MTL files an OBJ asked for, relative to the
	// asset. The caller fetches them and calls ApplyMaterials.
	MaterialLibs []string
}

// Stats reports vertex and triangle totals.
func (m *Model) Stats() (vertices, triangles int) {
	for i := range m.Meshes {
		vertices += len(m.Meshes[i].Positions)
		triangles += len(m.Meshes[i].Faces)
	}
	return vertices, triangles
}

// Bounds returns the axis-aligned bounds of every vertex that is referenced
// by a face. ok is false for a model without faces.
func (m *Model) Bounds() (lo, hi mathutil.Vec3, ok bool) {
	lo = mathutil.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi = mathutil.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := range m.Meshes {
		mesh := &m.Meshes[i]
		for _, f := range mesh.Faces {
			for _, vi := range f.V {
				p := mesh.Positions[vi]
				v := mathutil.Vec3{float64(p[0]), float64(p[1]), float64(p[2])}
				lo, hi = lo.Min(v), hi.Max(v)
				ok = true
			}
		}
	}
	if !ok {
		return mathutil.Vec3{}, mathutil.Vec3{}, false
	}
	return lo, hi, true
}

// Normalize centers the model on the origin and scales it uniformly so its X
// extent equals width. A model with no X extent is sized by its largest
// extent instead. Degenerate models are left untouched.
func (m *Model) Normalize(width float64) {
	lo, hi, ok := m.Bounds()
	if !ok || !(width > 0) {
		return
	}
	size := hi.Sub(lo)
	extent := size[0]
	if extent <= 1e-12 {
		extent = math.Max(size[1], size[2])
	}
	if extent <= 1e-12 {
		return
	}
	center := lo.Add(hi).Scale(0.5)
	s := width / extent
	m.Transform(mathutil.TRS(center.Scale(-s), mathutil.Mat3Identity(), s))
}

// Transform applies mtx to every position, and its rotation part to every
// normal.
func (m *Model) Transform(mtx mathutil.Mat4) {
	for i := range m.Meshes {
		mesh := &m.Meshes[i]
		for j, p := range mesh.Positions {
			v := mtx.MulPoint(mathutil.Vec3{float64(p[0]), float64(p[1]), float64(p[2])})
			mesh.Positions[j] = [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
		}
		for j, n := range mesh.Normals {
			v := mtx.MulDir(mathutil.Vec3{float64(n[0]), float64(n[1]), float64(n[2])}).Normalize()
			mesh.Normals[j] = [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
		}
	}
}

// ApplyMaterials resolves each mesh's material name against lib. Unknown
// names keep the default material.
func (m *Model) ApplyMaterials(lib map[string]Material) {
	for i := range m.Meshes {
		if mat, ok := lib[m.Meshes[i].Material.Name]; ok {
			m.Meshes[i].Material = mat
		}
	}
}
