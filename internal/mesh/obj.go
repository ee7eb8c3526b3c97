package mesh

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"eyewear-tryon/internal/errs"
)

const objOp = "mesh.obj"

// ParseOBJ reads a Wavefront OBJ model. Polygons are fan-triangulated and a
// new mesh starts at every o, g or usemtl directive. Texture V is flipped so
// 0 is the top of the image.
func ParseOBJ(r io.Reader) (*Model, error) {
	p := objParser{model: &Model{Format: "obj"}}
	p.begin("", "")

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(stripComment(sc.Text()))
		if len(fields) == 0 {
			continue
		}
		if err := p.directive(fields); err != nil {
			return nil, errs.Wrap(errs.AssetLoadFailed, objOp, err, "line "+strconv.Itoa(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.AssetLoadFailed, objOp, err, "read")
	}
	p.flush()
	if len(p.model.Meshes) == 0 {
		return nil, errs.New(errs.AssetLoadFailed, objOp, "model has no faces")
	}
	return p.model, nil
}

type objParser struct {
	model *Model

	positions [][3]float32
	uvs       [][2]float32
	normals   [][3]float32

	cur  *Mesh
	name string
	vmap map[int]int32
	tmap map[int]int32
	nmap map[int]int32
}

func (p *objParser) directive(f []string) error {
	switch f[0] {
	case "v":
		v, err := floats(f[1:], 3)
		if err != nil {
			return err
		}
		p.positions = append(p.positions, [3]float32{v[0], v[1], v[2]})
	case "vt":
		v, err := floats(f[1:], 1)
		if err != nil {
			return err
		}
		var tv float32
		if len(v) > 1 {
			tv = v[1]
		}
		p.uvs = append(p.uvs, [2]float32{v[0], 1 - tv})
	case "vn":
		v, err := floats(f[1:], 3)
		if err != nil {
			return err
		}
		p.normals = append(p.normals, [3]float32{v[0], v[1], v[2]})
	case "f":
		return p.face(f[1:])
	case "o", "g":
		name := strings.Join(f[1:], " ")
		p.begin(name, p.cur.Material.Name)
	case "usemtl":
		if len(f) < 2 {
			return errors.New("usemtl without a name")
		}
		p.begin(p.name, f[1])
	case "mtllib":
		p.model.MaterialLibs = append(p.model.MaterialLibs, f[1:]...)
	}
	return nil
}

// begin closes the current mesh and opens a new one.
func (p *objParser) begin(name, material string) {
	p.flush()
	mat := DefaultMaterial()
	mat.Name = material
	p.name = name
	p.cur = &Mesh{Name: name, Material: mat}
	p.vmap = make(map[int]int32)
	p.tmap = make(map[int]int32)
	p.nmap = make(map[int]int32)
}

func (p *objParser) flush() {
	if p.cur != nil && len(p.cur.Faces) > 0 {
		p.model.Meshes = append(p.model.Meshes, *p.cur)
	}
	p.cur = nil
}

func (p *objParser) face(refs []string) error {
	if len(refs) < 3 {
		return errors.New("face needs at least 3 vertices")
	}
	corners := make([][3]int32, len(refs))
	for i, ref := range refs {
		c, err := p.corner(ref)
		if err != nil {
			return err
		}
		corners[i] = c
	}
	for i := 1; i+1 < len(corners); i++ {
		a, b, c := corners[0], corners[i], corners[i+1]
		p.cur.Faces = append(p.cur.Faces, Face{
			V: [3]int32{a[0], b[0], c[0]},
			T: [3]int32{a[1], b[1], c[1]},
			N: [3]int32{a[2], b[2], c[2]},
		})
	}
	return nil
}

// corner resolves one "v", "v/vt", "v//vn" or "v/vt/vn" reference into
// mesh-local indices.
func (p *objParser) corner(ref string) ([3]int32, error) {
	out := [3]int32{-1, -1, -1}
	parts := strings.Split(ref, "/")
	if len(parts) > 3 || parts[0] == "" {
		return out, errors.New("malformed face reference " + strconv.Quote(ref))
	}

	vi, err := resolveIndex(parts[0], len(p.positions))
	if err != nil {
		return out, err
	}
	out[0] = remap(p.vmap, vi, func() int32 {
		p.cur.Positions = append(p.cur.Positions, p.positions[vi])
		return int32(len(p.cur.Positions) - 1)
	})

	if len(parts) > 1 && parts[1] != "" {
		ti, err := resolveIndex(parts[1], len(p.uvs))
		if err != nil {
			return out, err
		}
		out[1] = remap(p.tmap, ti, func() int32 {
			p.cur.UVs = append(p.cur.UVs, p.uvs[ti])
			return int32(len(p.cur.UVs) - 1)
		})
	}
	if len(parts) > 2 && parts[2] != "" {
		ni, err := resolveIndex(parts[2], len(p.normals))
		if err != nil {
			return out, err
		}
		out[2] = remap(p.nmap, ni, func() int32 {
			p.cur.Normals = append(p.cur.Normals, p.normals[ni])
			return int32(len(p.cur.Normals) - 1)
		})
	}
	return out, nil
}

func remap(m map[int]int32, global int, add func() int32) int32 {
	if local, ok := m[global]; ok {
		return local
	}
	local := add()
	m[global] = local
	return local
}

// resolveIndex turns a 1-based or negative (relative) OBJ index into a
// 0-based one.
func resolveIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("bad index " + strconv.Quote(s))
	}
	switch {
	case i > 0 && i <= n:
		return i - 1, nil
	case i < 0 && -i <= n:
		return n + i, nil
	}
	return 0, errors.New("index " + s + " out of range")
}

func floats(f []string, want int) ([]float32, error) {
	if len(f) < want {
		return nil, errors.New("expected " + strconv.Itoa(want) + " numbers")
	}
	out := make([]float32, len(f))
	for i, s := range f {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, errors.New("bad number " + strconv.Quote(s))
		}
		out[i] = float32(v)
	}
	return out, nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

// looksLikeOBJ reports whether data starts with OBJ directives.
func looksLikeOBJ(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	for _, ln := range bytes.Split(head, []byte("\n")) {
		f := strings.Fields(stripComment(string(ln)))
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "v", "vt", "vn", "f", "o", "g", "s", "mtllib", "usemtl":
			return true
		}
		return false
	}
	return false
}

// ParseMTL reads a Wavefront material library. Kd sets the diffuse color,
// d (or Tr, inverted) its alpha and map_Kd the texture.
func ParseMTL(r io.Reader) (map[string]Material, error) {
	const op = "mesh.mtl"
	lib := make(map[string]Material)
	var cur *Material
	commit := func() {
		if cur != nil {
			lib[cur.Name] = *cur
		}
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		f := strings.Fields(stripComment(sc.Text()))
		if len(f) == 0 {
			continue
		}
		if f[0] != "newmtl" && cur == nil {
			continue
		}
		var err error
		switch f[0] {
		case "newmtl":
			commit()
			m := DefaultMaterial()
			m.Name = strings.Join(f[1:], " ")
			cur = &m
		case "Kd":
			var v []float32
			if v, err = floats(f[1:], 3); err == nil {
				cur.Diffuse[0], cur.Diffuse[1], cur.Diffuse[2] = unit8(v[0]), unit8(v[1]), unit8(v[2])
			}
		case "d":
			var v []float32
			if v, err = floats(f[1:], 1); err == nil {
				cur.Diffuse[3] = unit8(v[0])
			}
		case "Tr":
			var v []float32
			if v, err = floats(f[1:], 1); err == nil {
				cur.Diffuse[3] = unit8(1 - v[0])
			}
		case "map_Kd":
			if len(f) > 1 {
				// Options such as -s or -o precede the file name.
				cur.Texture = strings.ReplaceAll(f[len(f)-1], "\\", "/")
			}
		}
		if err != nil {
			return nil, errs.Wrap(errs.AssetLoadFailed, op, err, "line "+strconv.Itoa(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.AssetLoadFailed, op, err, "read")
	}
	commit()
	return lib, nil
}

func unit8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
