package mesh

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/mathutil"
)

const bmdOp = "mesh.bmd"

// Mesh counts above this are treated as corruption.
const bmdMaxMeshes = 100

var bmdXORKey = [16]byte{
	0xD1, 0x73, 0x52, 0xF6, 0xD2, 0x9A, 0xCB, 0x27,
	0x3E, 0xAF, 0x59, 0x31, 0x37, 0xB3, 0xE7, 0xA2,
}

// bmdTriangle holds polygon type and index quads into the vertex, normal
// and texcoord arrays. Polygon == 4 is a quad (0-1-2 and 0-2-3).
type bmdTriangle struct {
	Polygon int
	VI      [4]int16
	NI      [4]int16
	TI      [4]int16
}

type bmdMesh struct {
	Verts   [][3]float32
	Nodes   []int16 // bone per vertex
	Normals [][3]float32
	UVs     [][2]float32
	Tris    []bmdTriangle
	TexPath string
}

// bmdBone is the bind pose (action 0, key 0) of one bone.
type bmdBone struct {
	Parent       int
	IsDummy      bool
	BindPosition [3]float64
	BindRotation [3]float64 // Euler XYZ radians
}

// ParseBMD reads a BMD mesh bundle, version 10 (plain) or 12 (XOR
// obfuscated). Vertices are posed with the bind skeleton and converted from
// Z-up to the scene's Y-up space.
func ParseBMD(raw []byte) (*Model, error) {
	if len(raw) < 4 || string(raw[:3]) != "BMD" {
		return nil, errs.New(errs.AssetLoadFailed, bmdOp, "invalid header")
	}

	var data []byte
	switch version := raw[3]; version {
	case 10:
		data = raw[4:]
	case 12:
		if len(raw) < 8 {
			return nil, errs.New(errs.AssetLoadFailed, bmdOp, "truncated v12 header")
		}
		size := binary.LittleEndian.Uint32(raw[4:8])
		if uint64(size) > uint64(len(raw)-8) {
			return nil, errs.New(errs.AssetLoadFailed, bmdOp, "truncated v12 data")
		}
		data = decryptXOR(raw[8 : 8+size])
	default:
		return nil, errs.Newf(errs.UnsupportedAssetFormat, bmdOp, "BMD version %d is not supported", version)
	}

	r := &bmdReader{data: data}
	name, meshes, bones, err := r.parse()
	if err != nil {
		return nil, errs.Wrap(errs.AssetLoadFailed, bmdOp, err, "parse")
	}
	applyBindPose(meshes, bones)

	model := &Model{Name: name, Format: "bmd"}
	for i, bm := range meshes {
		m, err := bm.toMesh()
		if err != nil {
			return nil, errs.Wrapf(errs.AssetLoadFailed, bmdOp, err, "mesh %d", i)
		}
		if len(m.Faces) > 0 {
			model.Meshes = append(model.Meshes, m)
		}
	}
	if len(model.Meshes) == 0 {
		return nil, errs.New(errs.AssetLoadFailed, bmdOp, "model has no faces")
	}
	model.Transform(mathutil.FromMat3Translation(mathutil.ZUpToYUp, mathutil.Vec3{}))
	return model, nil
}

// decryptXOR undoes the v12 chained XOR:
//
//	out[i] = ((data[i] ^ key[i&15]) - chain) & 0xFF
//	chain = (data[i] + 0x3D) & 0xFF
func decryptXOR(data []byte) []byte {
	out := make([]byte, len(data))
	chain := byte(0x5E)
	for i, b := range data {
		out[i] = (b ^ bmdXORKey[i&15]) - chain
		chain = b + 0x3D
	}
	return out
}

func (bm *bmdMesh) toMesh() (Mesh, error) {
	m := Mesh{
		Positions: bm.Verts,
		Normals:   bm.Normals,
		UVs:       bm.UVs,
		Material:  DefaultMaterial(),
	}
	m.Material.Texture = bm.TexPath

	idx := func(v int16, n int) (int32, bool) {
		return int32(v), v >= 0 && int(v) < n
	}
	emit := func(t *bmdTriangle, a, b, c int) error {
		var f Face
		for k, corner := range [3]int{a, b, c} {
			v, ok := idx(t.VI[corner], len(m.Positions))
			if !ok {
				return errors.Errorf("vertex index %d out of range", t.VI[corner])
			}
			f.V[k] = v
			f.T[k], f.N[k] = -1, -1
			if ti, ok := idx(t.TI[corner], len(m.UVs)); ok {
				f.T[k] = ti
			}
			if ni, ok := idx(t.NI[corner], len(m.Normals)); ok {
				f.N[k] = ni
			}
		}
		m.Faces = append(m.Faces, f)
		return nil
	}
	for i := range bm.Tris {
		t := &bm.Tris[i]
		if err := emit(t, 0, 1, 2); err != nil {
			return m, err
		}
		if t.Polygon == 4 {
			if err := emit(t, 0, 2, 3); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// bmdReader is a little-endian cursor. Reading past the end records
// errTruncated and yields zero values, so parse checks r.err once per
// section.
type bmdReader struct {
	data []byte
	off  int
	err  error
}

var errTruncated = errors.New("unexpected end of data")

func (r *bmdReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errTruncated
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *bmdReader) str(n int) string {
	s := r.take(n)
	for i, b := range s {
		if b == 0 {
			return string(s[:i])
		}
	}
	return string(s)
}

func (r *bmdReader) i16() int16 {
	if b := r.take(2); b != nil {
		return int16(binary.LittleEndian.Uint16(b))
	}
	return 0
}

func (r *bmdReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *bmdReader) f32() float32 {
	if b := r.take(4); b != nil {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (r *bmdReader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *bmdReader) count() (int, error) {
	n := int(r.i16())
	if n < 0 {
		return 0, errors.Errorf("negative element count %d", n)
	}
	return n, r.err
}

func (r *bmdReader) parse() (string, []bmdMesh, []bmdBone, error) {
	name := r.str(32)
	meshCount := int(r.u16())
	boneCount := int(r.u16())
	actionCount := int(r.u16())
	if r.err != nil {
		return "", nil, nil, r.err
	}
	if meshCount > bmdMaxMeshes {
		return "", nil, nil, errors.Errorf("invalid mesh count %d", meshCount)
	}

	meshes := make([]bmdMesh, 0, meshCount)
	for i := 0; i < meshCount; i++ {
		var counts [4]int
		for k := range counts {
			n, err := r.count()
			if err != nil {
				return "", nil, nil, errors.Wrapf(err, "mesh %d header", i)
			}
			counts[k] = n
		}
		nv, nn, ntc, nt := counts[0], counts[1], counts[2], counts[3]
		_ = r.i16() // texture index

		// Each section must fit in what is left before anything is allocated.
		need := nv*16 + nn*20 + ntc*8 + nt*64
		if r.off+need > len(r.data) {
			return "", nil, nil, errors.Wrapf(errTruncated, "mesh %d", i)
		}

		// Vertices: node i16, pad i16, x y z f32
		verts := make([][3]float32, nv)
		nodes := make([]int16, nv)
		for j := range verts {
			nodes[j] = r.i16()
			_ = r.i16()
			verts[j] = [3]float32{r.f32(), r.f32(), r.f32()}
		}

		// Normals: node i16, pad i16, nx ny nz f32, bind vertex i16, pad i16
		normals := make([][3]float32, nn)
		for j := range normals {
			_ = r.i16()
			_ = r.i16()
			normals[j] = [3]float32{r.f32(), r.f32(), r.f32()}
			_ = r.i16()
			_ = r.i16()
		}

		uvs := make([][2]float32, ntc)
		for j := range uvs {
			uvs[j] = [2]float32{r.f32(), r.f32()}
		}

		// Triangles: 64 bytes each
		tris := make([]bmdTriangle, nt)
		for j := range tris {
			b := r.take(64)
			if b == nil {
				break
			}
			t := bmdTriangle{Polygon: int(b[0])}
			for k := 0; k < 4; k++ {
				t.VI[k] = int16(binary.LittleEndian.Uint16(b[2+k*2:]))
				t.NI[k] = int16(binary.LittleEndian.Uint16(b[10+k*2:]))
				t.TI[k] = int16(binary.LittleEndian.Uint16(b[18+k*2:]))
			}
			tris[j] = t
		}

		texPath := strings.ReplaceAll(r.str(32), "\\", "/")
		if r.err != nil {
			return "", nil, nil, errors.Wrapf(r.err, "mesh %d", i)
		}

		meshes = append(meshes, bmdMesh{
			Verts:   verts,
			Nodes:   nodes,
			Normals: normals,
			UVs:     uvs,
			Tris:    tris,
			TexPath: texPath,
		})
	}

	// Actions: key count, lock-position flag, optional per-key positions.
	actionKeys := make([]int, actionCount)
	for a := range actionKeys {
		numKeys := int(r.i16())
		if r.u8() > 0 {
			r.take(numKeys * 12)
		}
		actionKeys[a] = numKeys
	}

	bones := make([]bmdBone, 0, boneCount)
	for b := 0; b < boneCount && r.err == nil; b++ {
		if r.u8() > 0 {
			bones = append(bones, bmdBone{Parent: -1, IsDummy: true})
			continue
		}

		_ = r.str(32) // bone name
		bone := bmdBone{Parent: int(r.i16())}
		for a, numKeys := range actionKeys {
			for k := 0; k < numKeys; k++ {
				p := [3]float64{float64(r.f32()), float64(r.f32()), float64(r.f32())}
				if a == 0 && k == 0 {
					bone.BindPosition = p
				}
			}
			for k := 0; k < numKeys; k++ {
				rot := [3]float64{float64(r.f32()), float64(r.f32()), float64(r.f32())}
				if a == 0 && k == 0 {
					bone.BindRotation = rot
				}
			}
		}
		bones = append(bones, bone)
	}
	if r.err != nil {
		// Geometry without a complete skeleton is still drawable unposed.
		bones = nil
	}

	return name, meshes, bones, nil
}
