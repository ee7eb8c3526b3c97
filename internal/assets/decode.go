package assets

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/webp"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/raster"
)

// Container headers in front of the embedded JPEG/TGA stream.
const (
	ozjHeader = 24
	oztHeader = 4
)

// DecodeImage decodes PNG, JPEG, WebP or TGA data. JPEG and TGA wrapped in
// OZJ/OZT containers are recognised by name. The format is sniffed from the
// content; name only matters for TGA, which has no magic number.
func DecodeImage(data []byte, name string) (*raster.Image, error) {
	const op = "assets.decode"
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".ozj":
		if len(data) <= ozjHeader {
			return nil, errs.New(errs.AssetLoadFailed, op, "OZJ too short")
		}
		data = data[ozjHeader:]
	case ".ozt":
		if len(data) <= oztHeader {
			return nil, errs.New(errs.AssetLoadFailed, op, "OZT too short")
		}
		data = data[oztHeader:]
		ext = ".tga"
	}

	var decode func(*bytes.Reader) (image.Image, error)
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		decode = func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) }
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		decode = func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) }
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		decode = func(r *bytes.Reader) (image.Image, error) { return webp.Decode(r) }
	case ext == ".tga":
		decode = func(r *bytes.Reader) (image.Image, error) { return tga.Decode(r) }
	default:
		return nil, errs.Newf(errs.UnsupportedAssetFormat, op, "unrecognised image format for %q", name)
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.AssetLoadFailed, op, err, name)
	}
	out := raster.FromImage(img)
	if err := out.Validate(op); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeFlat decodes a 2D overlay. Overlays must carry transparency: an
// image without any transparent pixel would paint a rectangle over the face.
func DecodeFlat(data []byte, name string) (*raster.Image, error) {
	img, err := DecodeImage(data, name)
	if err != nil {
		return nil, err
	}
	if !img.HasAlpha || opaque(img) {
		return nil, errs.Newf(errs.UnsupportedAssetFormat, "assets.flat", "%q has no transparency", name)
	}
	return img, nil
}

func opaque(img *raster.Image) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xFF {
			return false
		}
	}
	return true
}
