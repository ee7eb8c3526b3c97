package raster

import (
	"image"
	"math"
)

// Projected holds one geometry's vertices in surface space: X right, Y down
// (pixels), Z toward the viewer. The scene keeps one per geometry and refills
// it every frame, so rendering does not allocate per vertex.
type Projected struct {
	X, Y, Z []float64
}

// Ensure grows the buffers to hold n vertices.
func (p *Projected) Ensure(n int) {
	if cap(p.X) < n {
		p.X = make([]float64, n)
		p.Y = make([]float64, n)
		p.Z = make([]float64, n)
		return
	}
	p.X, p.Y, p.Z = p.X[:n], p.Y[:n], p.Z[:n]
}

// Bytes returns the memory held by the buffers.
func (p *Projected) Bytes() int64 {
	return int64(cap(p.X)+cap(p.Y)+cap(p.Z)) * 8
}

// Surface is the material state a triangle is shaded with.
type Surface struct {
	Texture *image.NRGBA // optional
	Color   [4]uint8     // base color, multiplies the texture when present
}

// RasterizeTriangle rasterizes one triangle with texture mapping, z-buffer,
// sRGB color space, flat lighting and ACES tone mapping. vi indexes the
// projected vertices, ti the UVs.
//
// This is the hot path; the pixel loop does not allocate.
func RasterizeTriangle(
	fb *FrameBuffer,
	p *Projected,
	uvs [][2]float32,
	vi, ti [3]int,
	surf *Surface,
	lc *LightConfig,
) {
	nv := len(p.X)
	for _, i := range vi {
		if i < 0 || i >= nv {
			return
		}
	}

	x0, y0, z0 := p.X[vi[0]], p.Y[vi[0]], p.Z[vi[0]]
	x1, y1, z1 := p.X[vi[1]], p.Y[vi[1]], p.Z[vi[1]]
	x2, y2, z2 := p.X[vi[2]], p.Y[vi[2]], p.Z[vi[2]]

	tex := surf.Texture
	hasUV := tex != nil
	for _, i := range ti {
		if i < 0 || i >= len(uvs) {
			hasUV = false
			break
		}
	}

	var u0, v0, u1, v1, u2, v2 float64
	if hasUV {
		u0, v0 = float64(uvs[ti[0]][0]), float64(uvs[ti[0]][1])
		u1, v1 = float64(uvs[ti[1]][0]), float64(uvs[ti[1]][1])
		u2, v2 = float64(uvs[ti[2]][0]), float64(uvs[ti[2]][1])
	}

	// Face normal in camera space (surface Y points down, camera Y up).
	e1x, e1y, e1z := x1-x0, -(y1 - y0), z1-z0
	e2x, e2y, e2z := x2-x0, -(y2 - y0), z2-z0
	nx := e1y*e2z - e1z*e2y
	ny := e1z*e2x - e1x*e2z
	nz := e1x*e2y - e1y*e2x
	nl := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if nl < 1e-8 {
		return
	}
	inv := 1.0 / nl
	shade := lc.Shade(nx*inv, ny*inv, nz*inv)

	// Bounding box clipped to the surface.
	minX := int(math.Floor(math.Min(math.Min(x0, x1), x2)))
	maxX := int(math.Ceil(math.Max(math.Max(x0, x1), x2)))
	minY := int(math.Floor(math.Min(math.Min(y0, y1), y2)))
	maxY := int(math.Ceil(math.Max(math.Max(y0, y1), y2)))
	if minX < 0 {
		minX = 0
	}
	if maxX > fb.Width-1 {
		maxX = fb.Width - 1
	}
	if minY < 0 {
		minY = 0
	}
	if maxY > fb.Height-1 {
		maxY = fb.Height - 1
	}
	if minX > maxX || minY > maxY {
		return
	}

	det := (y1-y2)*(x0-x2) + (x2-x1)*(y0-y2)
	if det > -1e-8 && det < 1e-8 {
		return
	}
	invDet := 1.0 / det

	dy12 := y1 - y2
	dx21 := x2 - x1
	dy20 := y2 - y0
	dx02 := x0 - x2

	exposure := lc.Exposure
	invGamma := lc.InvGamma
	baseR := float64(surf.Color[0]) / 255
	baseG := float64(surf.Color[1]) / 255
	baseB := float64(surf.Color[2]) / 255
	baseA := float64(surf.Color[3]) / 255

	for sy := minY; sy <= maxY; sy++ {
		// Sample at pixel centers.
		dsy := float64(sy) + 0.5 - y2
		rowOff := sy * fb.Width
		for sx := minX; sx <= maxX; sx++ {
			dsx := float64(sx) + 0.5 - x2
			w0 := (dy12*dsx + dx21*dsy) * invDet
			w1 := (dy20*dsx + dx02*dsy) * invDet
			w2 := 1.0 - w0 - w1
			if w0 < -0.001 || w1 < -0.001 || w2 < -0.001 {
				continue
			}

			z := w0*z0 + w1*z1 + w2*z2
			zIdx := rowOff + sx
			if z <= fb.ZBuf[zIdx] {
				continue
			}

			cr, cg, cb, ca := uint8(255), uint8(255), uint8(255), uint8(255)
			if hasUV {
				u := w0*u0 + w1*u1 + w2*u2
				v := w0*v0 + w1*v1 + w2*v2
				cr, cg, cb, ca = SampleTexture(tex, u, v)
			}
			alpha := float64(ca) * baseA
			// Skip transparent texels
			if alpha < 8 {
				continue
			}
			fb.ZBuf[zIdx] = z

			// sRGB decode → linear (LUT), shade, tone map, encode.
			tr := ACESTonemap(srgbToLinear[cr] * baseR * shade * exposure)
			tg := ACESTonemap(srgbToLinear[cg] * baseG * shade * exposure)
			tb := ACESTonemap(srgbToLinear[cb] * baseB * shade * exposure)

			px := zIdx * 4
			fb.Color[px] = clamp255(math.Pow(tr, invGamma) * 255)
			fb.Color[px+1] = clamp255(math.Pow(tg, invGamma) * 255)
			fb.Color[px+2] = clamp255(math.Pow(tb, invGamma) * 255)
			fb.Color[px+3] = clamp255(alpha)
		}
	}
}

func clamp255(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
