package mesh

import "eyewear-tryon/internal/mathutil"

// boneWorldMatrices composes each bone's bind pose with its parent's.
// Parents always precede children in a BMD skeleton.
func boneWorldMatrices(bones []bmdBone) []mathutil.Mat4 {
	worlds := make([]mathutil.Mat4, len(bones))
	for i, bone := range bones {
		worlds[i] = mathutil.Mat4Identity()
		if bone.IsDummy {
			continue
		}
		rot := mathutil.EulerToQuat(bone.BindRotation[0], bone.BindRotation[1], bone.BindRotation[2]).Mat3()
		pos := mathutil.Vec3{bone.BindPosition[0], bone.BindPosition[1], bone.BindPosition[2]}
		local := mathutil.FromMat3Translation(rot, pos)
		if bone.Parent >= 0 && bone.Parent < i {
			worlds[i] = mathutil.Mat4Mul(worlds[bone.Parent], local)
		} else {
			worlds[i] = local
		}
	}
	return worlds
}

// applyBindPose moves vertices into bind pose in place. Skinning is rigid:
// one bone per vertex with weight 1.
func applyBindPose(meshes []bmdMesh, bones []bmdBone) {
	if len(bones) == 0 {
		return
	}
	worlds := boneWorldMatrices(bones)
	identity := true
	for _, w := range worlds {
		if !w.IsIdentity() {
			identity = false
			break
		}
	}
	if identity {
		return
	}

	for mi := range meshes {
		m := &meshes[mi]
		for vi, p := range m.Verts {
			bone := int(m.Nodes[vi])
			if bone < 0 || bone >= len(worlds) {
				continue
			}
			v := worlds[bone].MulPoint(mathutil.Vec3{float64(p[0]), float64(p[1]), float64(p[2])})
			m.Verts[vi] = [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
		}
	}
}
