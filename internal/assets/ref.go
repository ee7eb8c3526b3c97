// Package assets fetches, caches and decodes glasses assets.
package assets

import (
	"net/url"
	"path"
	"strings"

	"eyewear-tryon/internal/errs"
)

// Kind selects how an asset is drawn.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindFlat is a transparent 2D image composited directly.
	KindFlat
	// KindVolumetric is a 3D model rendered by the scene.
	KindVolumetric
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindVolumetric:
		return "volumetric"
	}
	return "unknown"
}

// ParseKind accepts "flat", "2d", "volumetric" or "3d".
func ParseKind(s string) Kind {
	switch strings.ToLower(s) {
	case "flat", "2d":
		return KindFlat
	case "volumetric", "3d":
		return KindVolumetric
	}
	return KindUnknown
}

var extKinds = map[string]Kind{
	".png":  KindFlat,
	".webp": KindFlat,
	".tga":  KindFlat,
	".ozt":  KindFlat,
	".obj":  KindVolumetric,
	".bmd":  KindVolumetric,
	".gltf": KindVolumetric,
	".glb":  KindVolumetric,
}

// KindForURL infers the kind from the URL's path extension.
func KindForURL(raw string) Kind {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	return extKinds[strings.ToLower(path.Ext(p))]
}

// Ref names an asset and how to draw it.
type Ref struct {
	URL  string `json:"url"`
	Kind Kind   `json:"kind"`
}

// NewRef returns a Ref whose kind is inferred from url.
func NewRef(url string) Ref {
	return Ref{URL: url, Kind: KindForURL(url)}
}

// Validate fails with AssetLoadFailed for an empty URL or unknown kind.
func (r Ref) Validate() error {
	const op = "assets.ref"
	if strings.TrimSpace(r.URL) == "" {
		return errs.New(errs.AssetLoadFailed, op, "asset URL is empty")
	}
	if r.Kind != KindFlat && r.Kind != KindVolumetric {
		return errs.Newf(errs.UnsupportedAssetFormat, op, "cannot tell how to draw %q", r.URL)
	}
	return nil
}

func (r Ref) String() string {
	return r.Kind.String() + ":" + r.URL
}
