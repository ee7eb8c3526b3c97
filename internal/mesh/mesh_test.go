package mesh

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"go.viam.com/test"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/mathutil"
)

const quadOBJ = `# two lenses
mtllib frame.mtl
o frame
v -2 -0.5 0
v 2 -0.5 0
v 2 0.5 0
v -2 0.5 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl metal
f 1/1/1 2/2/1 3/3/1 4/4/1
usemtl lens
f -4//-1 -2//-1 -1//-1
`

func TestParseOBJ(t *testing.T) {
	m, err := Parse([]byte(quadOBJ), "assets/aviator.obj")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Format, test.ShouldEqual, "obj")
	test.That(t, m.Name, test.ShouldEqual, "aviator")
	test.That(t, m.MaterialLibs, test.ShouldResemble, []string{"frame.mtl"})
	test.That(t, len(m.Meshes), test.ShouldEqual, 2)

	metal := m.Meshes[0]
	test.That(t, metal.Name, test.ShouldEqual, "frame")
	test.That(t, metal.Material.Name, test.ShouldEqual, "metal")
	test.That(t, len(metal.Faces), test.ShouldEqual, 2)
	test.That(t, metal.Faces[1].V, test.ShouldResemble, [3]int32{0, 2, 3})
	test.That(t, len(metal.Positions), test.ShouldEqual, 4)
	// V is flipped to a top-left origin.
	test.That(t, metal.UVs[2], test.ShouldResemble, [2]float32{1, 0})

	lens := m.Meshes[1]
	test.That(t, lens.Material.Name, test.ShouldEqual, "lens")
	test.That(t, len(lens.Faces), test.ShouldEqual, 1)
	test.That(t, lens.Faces[0].T, test.ShouldResemble, [3]int32{-1, -1, -1})
	test.That(t, lens.Positions[1], test.ShouldResemble, [3]float32{2, 0.5, 0})

	v, tris := m.Stats()
	test.That(t, v, test.ShouldEqual, 7)
	test.That(t, tris, test.ShouldEqual, 3)
}

func TestParseOBJErrors(t *testing.T) {
	for name, src := range map[string]string{
		"index out of range": "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n",
		"bad number":         "v 0 zero 0\n",
		"short face":         "v 0 0 0\nv 1 0 0\nf 1 2\n",
		"no faces":           "v 0 0 0\nv 1 0 0\nv 0 1 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "bad.obj")
			test.That(t, errs.KindOf(err), test.ShouldEqual, errs.AssetLoadFailed)
		})
	}
}

func TestParseMTL(t *testing.T) {
	lib, err := ParseMTL(strings.NewReader(`
newmtl metal
Kd 0.5 0.25 1
map_Kd -s 1 1 1 textures\gold.png
newmtl lens
Kd 0.1 0.1 0.1
Tr 0.75
`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lib["metal"].Diffuse, test.ShouldResemble, [4]uint8{128, 64, 255, 255})
	test.That(t, lib["metal"].Texture, test.ShouldEqual, "textures/gold.png")
	test.That(t, lib["lens"].Diffuse[3], test.ShouldEqual, uint8(64))

	m, err := Parse([]byte(quadOBJ), "a.obj")
	test.That(t, err, test.ShouldBeNil)
	m.ApplyMaterials(lib)
	test.That(t, m.Meshes[0].Material.Texture, test.ShouldEqual, "textures/gold.png")
	test.That(t, m.Meshes[1].Material.Diffuse[3], test.ShouldEqual, uint8(64))
}

func TestUnsupportedFormats(t *testing.T) {
	for name, data := range map[string][]byte{
		"frame.glb":  append([]byte("glTF"), 2, 0, 0, 0),
		"frame.gltf": []byte(`{"asset": {"version": "2.0"}, "meshes": []}`),
		"frame.fbx":  {0x4b, 0x61, 0x79, 0x64, 0x61, 0x72, 0x61, 0x00},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(data, name)
			test.That(t, errs.KindOf(err), test.ShouldEqual, errs.UnsupportedAssetFormat)
		})
	}

	_, err := Parse(nil, "empty.obj")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.AssetLoadFailed)
}

func TestNormalize(t *testing.T) {
	m, err := Parse([]byte(quadOBJ), "a.obj")
	test.That(t, err, test.ShouldBeNil)
	m.Meshes[0].Positions[0][0] = -6 // x spans [-6, 2]

	m.Normalize(2)
	lo, hi, ok := m.Bounds()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, lo[0], test.ShouldAlmostEqual, -1, 1e-6)
	test.That(t, hi[0], test.ShouldAlmostEqual, 1, 1e-6)
	// Uniform: the 1-unit height becomes 0.25.
	test.That(t, hi[1]-lo[1], test.ShouldAlmostEqual, 0.25, 1e-6)
	test.That(t, lo[1]+hi[1], test.ShouldAlmostEqual, 0, 1e-6)
}

// bmdBuilder writes the subset of BMD the parser reads.
type bmdBuilder struct{ bytes.Buffer }

func (b *bmdBuilder) put(vs ...interface{}) {
	for _, v := range vs {
		_ = binary.Write(&b.Buffer, binary.LittleEndian, v)
	}
}

func (b *bmdBuilder) str(s string, n int) {
	buf := make([]byte, n)
	copy(buf, s)
	b.Write(buf)
}

// triangleBMD is one textured triangle bound to a single bone that is
// translated by (10, 0, 0).
func triangleBMD() []byte {
	var b bmdBuilder
	b.str("Glasses01", 32)
	b.put(uint16(1), uint16(1), uint16(1)) // meshes, bones, actions

	b.put(int16(3), int16(1), int16(3), int16(1), int16(0))
	for _, v := range [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}} {
		b.put(int16(0), int16(0), v)
	}
	b.put(int16(0), int16(0), [3]float32{0, -1, 0}, int16(0), int16(0))
	for _, uv := range [][2]float32{{0, 0}, {1, 0}, {0, 1}} {
		b.put(uv)
	}
	tri := make([]byte, 64)
	tri[0] = 3
	for k, v := range []int16{0, 1, 2} {
		binary.LittleEndian.PutUint16(tri[2+k*2:], uint16(v))
		binary.LittleEndian.PutUint16(tri[18+k*2:], uint16(v))
	}
	b.Write(tri)
	b.str(`Item\glass.jpg`, 32)

	b.put(int16(1), uint8(0)) // action 0: one key, no locked positions

	b.put(uint8(0))
	b.str("Bip01", 32)
	b.put(int16(-1), [3]float32{10, 0, 0}, [3]float32{0, 0, 0})
	return b.Bytes()
}

func encryptXOR(plain []byte) []byte {
	out := make([]byte, len(plain))
	chain := byte(0x5E)
	for i, p := range plain {
		out[i] = (p + chain) ^ bmdXORKey[i&15]
		chain = out[i] + 0x3D
	}
	return out
}

func TestParseBMD(t *testing.T) {
	check := func(t *testing.T, m *Model) {
		t.Helper()
		test.That(t, m.Format, test.ShouldEqual, "bmd")
		test.That(t, m.Name, test.ShouldEqual, "Glasses01")
		test.That(t, len(m.Meshes), test.ShouldEqual, 1)
		mesh := m.Meshes[0]
		test.That(t, mesh.Material.Texture, test.ShouldEqual, "Item/glass.jpg")
		test.That(t, mesh.Faces[0].T, test.ShouldResemble, [3]int32{0, 1, 2})
		test.That(t, mesh.Faces[0].N, test.ShouldResemble, [3]int32{0, 0, 0})

		// Bone translation, then Z-up to Y-up: (x, y, z) -> (x, z, -y).
		want := mathutil.ZUpToYUp.MulVec3(mathutil.Vec3{10, 0, 1})
		got := mesh.Positions[2]
		for k := 0; k < 3; k++ {
			test.That(t, float64(got[k]), test.ShouldAlmostEqual, want[k], 1e-5)
		}
		test.That(t, math.Abs(float64(got[1])-1), test.ShouldBeLessThan, 1e-5)
	}

	t.Run("v10", func(t *testing.T) {
		data := append([]byte("BMD\x0a"), triangleBMD()...)
		m, err := Parse(data, "glasses.bmd")
		test.That(t, err, test.ShouldBeNil)
		check(t, m)
	})

	t.Run("v12", func(t *testing.T) {
		plain := triangleBMD()
		data := []byte("BMD\x0c")
		size := make([]byte, 4)
		binary.LittleEndian.PutUint32(size, uint32(len(plain)))
		data = append(data, size...)
		data = append(data, encryptXOR(plain)...)
		test.That(t, decryptXOR(encryptXOR(plain)), test.ShouldResemble, plain)

		m, err := Parse(data, "glasses.bmd")
		test.That(t, err, test.ShouldBeNil)
		check(t, m)
	})

	t.Run("truncated", func(t *testing.T) {
		data := append([]byte("BMD\x0a"), triangleBMD()[:60]...)
		_, err := Parse(data, "glasses.bmd")
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.AssetLoadFailed)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := Parse([]byte("BMD\x0f\x00\x00\x00\x00"), "glasses.bmd")
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.UnsupportedAssetFormat)
	})
}
