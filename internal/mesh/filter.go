package mesh

import (
	"path"
	"regexp"
	"strings"
)

// helperRE matches mesh or texture stems of geometry exporters leave in
// product models that must not be drawn on a face: baked shadow catchers,
// lens glare cards, environment spheres and display stands.
var helperRE = regexp.MustCompile(`(?i)(?:^|[_\-.\s])(?:shadow|ao_?plane|ground|floor|glow|flare|glare|reflection|refl|env(?:map)?|sky|stand|display|helper|collider|proxy)(?:$|[_\-.\s\d])`)

// IsHelperMesh reports whether the mesh is exporter scaffolding rather than
// part of the frame, judged by its name, material or texture.
func IsHelperMesh(m *Mesh) bool {
	for _, s := range []string{m.Name, m.Material.Name, stem(m.Material.Texture)} {
		if s != "" && helperRE.MatchString(s) {
			return true
		}
	}
	return false
}

func stem(tex string) string {
	base := path.Base(strings.ReplaceAll(tex, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Clean drops helper meshes and stray disconnected fragments, keeping at
// least one mesh. Run before Normalize: a stray vertex far from the frame
// would otherwise shrink the frame to a speck.
func (m *Model) Clean(minVerts int) (dropped int) {
	var kept []Mesh
	for i := range m.Meshes {
		if IsHelperMesh(&m.Meshes[i]) {
			dropped++
			continue
		}
		kept = append(kept, m.Meshes[i])
	}
	if len(kept) == 0 {
		return 0
	}
	for i := range kept {
		kept[i] = FilterComponents(&kept[i], minVerts)
	}
	m.Meshes = kept
	return dropped
}

// FilterComponents removes small disconnected components from a mesh.
// Components with at least minVerts vertices survive, as do small ones
// within 40% of the largest component's span of its bounding box (screws,
// hinges, nose pads). The result shares vertex data with m.
func FilterComponents(m *Mesh, minVerts int) Mesh {
	if len(m.Positions) == 0 || len(m.Faces) == 0 {
		return *m
	}
	// Tiny meshes (a single lens card) have nothing to filter.
	if len(m.Positions) <= 2*minVerts {
		return *m
	}

	adj := make(map[int32][]int32)
	for _, f := range m.Faces {
		for a := 0; a < 3; a++ {
			for b := a + 1; b < 3; b++ {
				va, vb := f.V[a], f.V[b]
				adj[va] = append(adj[va], vb)
				adj[vb] = append(adj[vb], va)
			}
		}
	}

	visited := make([]bool, len(m.Positions))
	var components [][]int32
	for v := range m.Positions {
		if visited[v] || len(adj[int32(v)]) == 0 {
			continue
		}
		var comp []int32
		stack := []int32{int32(v)}
		for len(stack) > 0 {
			curr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[curr] {
				continue
			}
			visited[curr] = true
			comp = append(comp, curr)
			for _, nb := range adj[curr] {
				if !visited[nb] {
					stack = append(stack, nb)
				}
			}
		}
		components = append(components, comp)
	}
	if len(components) <= 1 {
		return *m
	}

	largestIdx := 0
	for i, c := range components {
		if len(c) > len(components[largestIdx]) {
			largestIdx = i
		}
	}
	lMin, lMax := m.bounds(components[largestIdx])
	var lSpan float64
	for k := 0; k < 3; k++ {
		lSpan = max(lSpan, float64(lMax[k]-lMin[k]))
	}

	keep := make([]bool, len(m.Positions))
	for i, comp := range components {
		near := i == largestIdx || len(comp) >= minVerts
		if !near {
			var c [3]float64
			for _, vi := range comp {
				for k := 0; k < 3; k++ {
					c[k] += float64(m.Positions[vi][k])
				}
			}
			var distSq float64
			for k := 0; k < 3; k++ {
				c[k] /= float64(len(comp))
				lo, hi := float64(lMin[k]), float64(lMax[k])
				switch {
				case c[k] < lo:
					distSq += (lo - c[k]) * (lo - c[k])
				case c[k] > hi:
					distSq += (c[k] - hi) * (c[k] - hi)
				}
			}
			near = distSq < lSpan*lSpan*0.16
		}
		if near {
			for _, vi := range comp {
				keep[vi] = true
			}
		}
	}

	var faces []Face
	for _, f := range m.Faces {
		if keep[f.V[0]] && keep[f.V[1]] && keep[f.V[2]] {
			faces = append(faces, f)
		}
	}
	out := *m
	out.Faces = faces
	return out
}

func (m *Mesh) bounds(verts []int32) (lo, hi [3]float32) {
	lo, hi = m.Positions[verts[0]], m.Positions[verts[0]]
	for _, vi := range verts[1:] {
		p := m.Positions[vi]
		for k := 0; k < 3; k++ {
			if p[k] < lo[k] {
				lo[k] = p[k]
			}
			if p[k] > hi[k] {
				hi[k] = p[k]
			}
		}
	}
	return lo, hi
}
