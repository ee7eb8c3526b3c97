package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/mesh"
)

func main() {
	dataDir := flag.String("data", ".", "Asset base directory")
	flag.Parse()

	fetch := assets.FileFetcher{Root: *dataDir}
	textures := assets.NewTextureCache(fetch)
	ctx := context.Background()

	failed := false
	for _, arg := range flag.Args() {
		if err := inspect(ctx, fetch, textures, arg); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", arg, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func inspect(ctx context.Context, fetch assets.Fetcher, textures *assets.TextureCache, url string) error {
	data, err := fetch.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if assets.KindForURL(url) == assets.KindFlat {
		img, err := assets.DecodeFlat(data, url)
		if err != nil {
			return err
		}
		fmt.Printf("\n=== %s (flat %dx%d) ===\n", url, img.Width, img.Height)
		return nil
	}

	model, err := mesh.Parse(data, url)
	if err != nil {
		return err
	}
	for _, lib := range model.MaterialLibs {
		raw, err := fetch.Fetch(ctx, assets.Resolve(url, lib))
		if err != nil {
			fmt.Printf("  material library %s: %v\n", lib, err)
			continue
		}
		mats, err := mesh.ParseMTL(bytes.NewReader(raw))
		if err != nil {
			fmt.Printf("  material library %s: %v\n", lib, err)
			continue
		}
		model.ApplyMaterials(mats)
	}

	v, tris := model.Stats()
	fmt.Printf("\n=== %s (%s meshes=%d verts=%d tris=%d) ===\n", url, model.Format, len(model.Meshes), v, tris)

	fmt.Println("--- RAW ---")
	printMeshes(ctx, model, textures, url)

	dropped := model.Clean(8)
	model.Normalize(2)
	fmt.Printf("--- CLEANED + NORMALIZED (dropped %d helper meshes) ---\n", dropped)
	printMeshes(ctx, model, textures, url)
	return nil
}

func printMeshes(ctx context.Context, model *mesh.Model, textures *assets.TextureCache, url string) {
	for i := range model.Meshes {
		m := &model.Meshes[i]
		texInfo := "none"
		bright := 0.0
		if m.Material.Texture != "" {
			texInfo = "MISSING"
			if tex, err := textures.Resolve(ctx, url, m.Material.Texture); err == nil && tex != nil {
				b := tex.Bounds()
				texInfo = fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
				total := 0.0
				count := len(tex.Pix) / 4
				for j := 0; j < len(tex.Pix); j += 4 {
					total += float64(int(tex.Pix[j])+int(tex.Pix[j+1])+int(tex.Pix[j+2])) / 3.0
				}
				if count > 0 {
					bright = total / float64(count)
				}
			}
		}
		flags := ""
		if mesh.IsHelperMesh(m) {
			flags = " [HELPER]"
		}

		if len(m.Positions) == 0 {
			continue
		}
		minV, maxV := m.Positions[0], m.Positions[0]
		for _, p := range m.Positions[1:] {
			for k := 0; k < 3; k++ {
				minV[k] = min(minV[k], p[k])
				maxV[k] = max(maxV[k], p[k])
			}
		}
		fmt.Printf("  Mesh[%d] %q: v=%d t=%d mat=%q tex=%q (%s) bright=%.0f min=(%.2f,%.2f,%.2f) max=(%.2f,%.2f,%.2f)%s\n",
			i, m.Name, len(m.Positions), len(m.Faces), m.Material.Name, m.Material.Texture, texInfo, bright,
			minV[0], minV[1], minV[2], maxV[0], maxV[1], maxV[2], flags)
	}
}
