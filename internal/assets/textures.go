package assets

import (
	"context"
	"image"
	"path"
	"strings"
	"sync"

	"eyewear-tryon/internal/errs"
)

// TextureCache decodes model textures once per URL. It is safe for
// concurrent use; a texture that failed to load is remembered as missing.
type TextureCache struct {
	fetch Fetcher

	mu    sync.RWMutex
	items map[string]*image.NRGBA
}

// NewTextureCache returns a cache resolving through fetch.
func NewTextureCache(fetch Fetcher) *TextureCache {
	return &TextureCache{fetch: fetch, items: make(map[string]*image.NRGBA)}
}

// Resolve loads the texture name referenced by the asset at base. Model
// bundles often name a .jpg or .tga while shipping the OZJ/OZT container, so
// those variants are tried too.
func (c *TextureCache) Resolve(ctx context.Context, base, name string) (*image.NRGBA, error) {
	url := Resolve(base, name)

	// Fast path: read lock
	c.mu.RLock()
	img, ok := c.items[url]
	c.mu.RUnlock()
	if ok {
		if img == nil {
			return nil, errs.Newf(errs.AssetLoadFailed, "assets.texture", "texture %q is missing", name)
		}
		return img, nil
	}

	img, err := c.load(ctx, url)
	if err != nil && ctx.Err() != nil {
		// Cancelled loads say nothing about the texture.
		return nil, err
	}

	// Write lock with double-check
	c.mu.Lock()
	if prev, ok := c.items[url]; ok && prev != nil {
		img, err = prev, nil
	} else {
		c.items[url] = img
	}
	c.mu.Unlock()
	return img, err
}

func (c *TextureCache) load(ctx context.Context, url string) (*image.NRGBA, error) {
	var firstErr error
	for _, candidate := range TextureCandidates(url) {
		data, err := c.fetch.Fetch(ctx, candidate)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		img, err := DecodeImage(data, candidate)
		if err != nil {
			return nil, err
		}
		return img.NRGBA(), nil
	}
	return nil, firstErr
}

// Len returns the number of remembered textures, including missing ones.
func (c *TextureCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// TextureCandidates lists the URLs tried for a texture reference, most
// specific first. OZT is preferred over OZJ for the same stem since it keeps
// the alpha channel.
func TextureCandidates(url string) []string {
	ext := path.Ext(url)
	stem := strings.TrimSuffix(url, ext)
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return []string{url, stem + ".ozt", stem + ".ozj"}
	case ".tga":
		return []string{url, stem + ".ozt"}
	}
	return []string{url}
}
