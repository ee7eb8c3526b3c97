package compositor

import (
	"bufio"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/pkg/errors"

	"eyewear-tryon/internal/raster"
)

// Format is an export encoding.
type Format string

const (
	FormatWebP Format = "webp"
	FormatPNG  Format = "png"
)

// ParseFormat accepts "webp" or "png" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatWebP, FormatPNG:
		return f, nil
	}
	return "", errors.Errorf("unknown export format %q", s)
}

// FormatForPath infers the format from a file extension, falling back to def.
func FormatForPath(path string, def Format) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return def
}

// Encode writes img to w. WebP output is lossless.
func Encode(w io.Writer, img *raster.Image, f Format) error {
	if err := img.Validate("compositor.encode"); err != nil {
		return err
	}
	switch f {
	case FormatWebP:
		return errors.Wrap(nativewebp.Encode(w, img.NRGBA(), nil), "encode webp")
	case FormatPNG:
		return errors.Wrap(png.Encode(w, img.NRGBA()), "encode png")
	default:
		return errors.Errorf("unknown export format %q", f)
	}
}

// EncodeFile writes img to path, creating parent directories.
func EncodeFile(path string, img *raster.Image, f Format) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create output dir")
	}
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer func() {
		if cerr := fh.Close(); err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(fh)
	if err := Encode(bw, img, f); err != nil {
		return err
	}
	return bw.Flush()
}
