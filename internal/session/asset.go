package session

import (
	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/raster"
	"eyewear-tryon/internal/scene"
)

// Asset is the active glasses asset: exactly one of *Flat or *Volumetric.
type Asset interface {
	Kind() assets.Kind
	Ref() assets.Ref
	isAsset()
}

// Flat is a decoded transparent overlay image.
type Flat struct {
	Image  *raster.Image
	Source assets.Ref
}

func (*Flat) Kind() assets.Kind { return assets.KindFlat }
func (f *Flat) Ref() assets.Ref { return f.Source }
func (*Flat) isAsset() {}

// Volumetric is a model loaded into the session's scene.
type Volumetric struct {
	SourceURL string

	ticket   *scene.Ticket
	previous Asset // restored if this load fails
}

func (*Volumetric) Kind() assets.Kind { return assets.KindVolumetric }
func (v *Volumetric) Ref() assets.Ref {
	return assets.Ref{URL: v.SourceURL, Kind: assets.KindVolumetric}
}
func (*Volumetric) isAsset() {}

// Handle returns the scene node once the model has loaded.
func (v *Volumetric) Handle() (scene.Handle, bool) {
	return v.ticket.Handle()
}
