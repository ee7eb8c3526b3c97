package assets

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/HugoSmits86/nativewebp"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"eyewear-tryon/internal/errs"
)

// memFetcher serves a fixed set of files and counts requests.
type memFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	calls map[string]int
	gate  chan struct{} // when set, every fetch waits for it
}

func newMemFetcher(files map[string][]byte) *memFetcher {
	return &memFetcher{files: files, calls: make(map[string]int)}
}

func (m *memFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	m.calls[url]++
	data, ok := m.files[url]
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, errs.Newf(errs.FetchError, "mem", "%s not found", url)
	}
	return data, nil
}

func (m *memFetcher) count(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	test.That(t, png.Encode(&buf, img), test.ShouldBeNil)
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	test.That(t, jpeg.Encode(&buf, img, nil), test.ShouldBeNil)
	return buf.Bytes()
}

func lensImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for x := 1; x < 7; x++ {
		img.SetNRGBA(x, 2, color.NRGBA{R: 20, G: 20, B: 20, A: 255})
	}
	return img
}

func TestRef(t *testing.T) {
	test.That(t, NewRef("https://cdn.example.com/frames/aviator.png?v=3").Kind, test.ShouldEqual, KindFlat)
	test.That(t, NewRef("frames/aviator.OBJ").Kind, test.ShouldEqual, KindVolumetric)
	test.That(t, NewRef("frames/aviator.bmd").Kind, test.ShouldEqual, KindVolumetric)
	test.That(t, NewRef("frames/aviator").Kind, test.ShouldEqual, KindUnknown)
	test.That(t, ParseKind("3D"), test.ShouldEqual, KindVolumetric)
	test.That(t, ParseKind("2d"), test.ShouldEqual, KindFlat)

	test.That(t, NewRef("a.png").Validate(), test.ShouldBeNil)
	test.That(t, errs.KindOf(Ref{Kind: KindFlat}.Validate()), test.ShouldEqual, errs.AssetLoadFailed)
	test.That(t, errs.KindOf(NewRef("a.gif").Validate()), test.ShouldEqual, errs.UnsupportedAssetFormat)
	test.That(t, NewRef("a.png").String(), test.ShouldEqual, "flat:a.png")
}

func TestResolve(t *testing.T) {
	test.That(t, Resolve("models/frame.obj", "frame.mtl"), test.ShouldEqual, "models/frame.mtl")
	test.That(t, Resolve("models/frame.bmd", `tex\glass.jpg`), test.ShouldEqual, "models/tex/glass.jpg")
	test.That(t, Resolve("https://cdn.example.com/m/frame.obj", "gold.png"), test.ShouldEqual, "https://cdn.example.com/m/gold.png")
	test.That(t, Resolve("models/frame.obj", "https://x.test/a.png"), test.ShouldEqual, "https://x.test/a.png")
	test.That(t, Resolve("models/frame.obj", "/abs/a.png"), test.ShouldEqual, "/abs/a.png")
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	test.That(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("data"), 0o644), test.ShouldBeNil)
	f := FileFetcher{Root: dir}

	data, err := f.Fetch(context.Background(), "a.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "data")

	data, err = f.Fetch(context.Background(), "file://"+filepath.ToSlash(filepath.Join(dir, "a.png")))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "data")

	_, err = f.Fetch(context.Background(), "missing.png")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.FetchError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, "a.png")
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/frame.png":
			_, _ = w.Write([]byte("remote"))
		case "/huge.png":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	test.That(t, os.WriteFile(filepath.Join(dir, "local.png"), []byte("local"), 0o644), test.ShouldBeNil)
	r := NewRouter(dir, 0)

	data, err := r.Fetch(context.Background(), srv.URL+"/frame.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "remote")

	data, err = r.Fetch(context.Background(), "local.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "local")

	_, err = r.Fetch(context.Background(), srv.URL+"/nope.png")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.FetchError)

	r.Handle("https", &HTTPFetcher{Client: srv.Client(), MaxBytes: 16})
	r.Handle("http", &HTTPFetcher{Client: srv.Client(), MaxBytes: 16})
	_, err = r.Fetch(context.Background(), srv.URL+"/huge.png")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.FetchError)

	_, err = r.Fetch(context.Background(), "s3://bucket/frame.png")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.FetchError)
}

func TestCache(t *testing.T) {
	t.Run("hits after the first fetch", func(t *testing.T) {
		m := newMemFetcher(map[string][]byte{"a": []byte("aaaa")})
		c := NewCache(m)
		for i := 0; i < 3; i++ {
			data, err := c.Fetch(context.Background(), "a")
			test.That(t, err, test.ShouldBeNil)
			test.That(t, string(data), test.ShouldEqual, "aaaa")
		}
		test.That(t, m.count("a"), test.ShouldEqual, 1)
		st := c.Stats()
		test.That(t, st.Hits, test.ShouldEqual, int64(2))
		test.That(t, st.Misses, test.ShouldEqual, int64(1))
		test.That(t, st.Bytes, test.ShouldEqual, int64(4))
	})

	t.Run("concurrent misses share one fetch", func(t *testing.T) {
		m := newMemFetcher(map[string][]byte{"a": []byte("aaaa")})
		m.gate = make(chan struct{})
		c := NewCache(m)

		var wg sync.WaitGroup
		var ok atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := c.Fetch(context.Background(), "a"); err == nil {
					ok.Add(1)
				}
			}()
		}
		for m.count("a") == 0 {
			runtime.Gosched()
		}
		close(m.gate)
		wg.Wait()
		test.That(t, ok.Load(), test.ShouldEqual, int32(8))
		test.That(t, m.count("a"), test.ShouldEqual, 1)
	})

	t.Run("evicts least recently used over budget", func(t *testing.T) {
		m := newMemFetcher(map[string][]byte{
			"a": make([]byte, 4), "b": make([]byte, 4), "c": make([]byte, 4), "big": make([]byte, 20),
		})
		c := NewCache(m, WithBudget(10))
		ctx := context.Background()
		for _, u := range []string{"a", "b", "a", "c"} {
			_, err := c.Fetch(ctx, u)
			test.That(t, err, test.ShouldBeNil)
		}
		// b was least recently used when c arrived.
		test.That(t, c.Stats().Entries, test.ShouldEqual, 2)
		_, _ = c.Fetch(ctx, "a")
		test.That(t, m.count("a"), test.ShouldEqual, 1)
		_, _ = c.Fetch(ctx, "b")
		test.That(t, m.count("b"), test.ShouldEqual, 2)

		_, err := c.Fetch(ctx, "big")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.Stats().Bytes, test.ShouldBeLessThanOrEqualTo, 10)

		c.Invalidate("b")
		_, _ = c.Fetch(ctx, "b")
		test.That(t, m.count("b"), test.ShouldEqual, 3)
	})

	t.Run("failures are not cached", func(t *testing.T) {
		m := newMemFetcher(map[string][]byte{})
		c := NewCache(m)
		_, err := c.Fetch(context.Background(), "x")
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.FetchError)
		_, err = c.Fetch(context.Background(), "x")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, m.count("x"), test.ShouldEqual, 2)
	})

	t.Run("persistent tier is consulted and filled", func(t *testing.T) {
		m := newMemFetcher(map[string][]byte{"a": []byte("net")})
		tier := &mapTier{data: map[string][]byte{"b": []byte("disk")}}
		c := NewCache(m, WithTier(tier))

		data, err := c.Fetch(context.Background(), "b")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(data), test.ShouldEqual, "disk")
		test.That(t, m.count("b"), test.ShouldEqual, 0)

		_, err = c.Fetch(context.Background(), "a")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(tier.data["a"]), test.ShouldEqual, "net")
	})
}

type mapTier struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapTier) Get(_ context.Context, url string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[url]
	return d, ok, nil
}

func (m *mapTier) Put(_ context.Context, url string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[url] = data
	return nil
}

func TestDecode(t *testing.T) {
	t.Run("png overlay", func(t *testing.T) {
		img, err := DecodeFlat(encodePNG(t, lensImage()), "lens.png")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Width, test.ShouldEqual, 8)
		test.That(t, img.Height, test.ShouldEqual, 4)
		test.That(t, img.HasAlpha, test.ShouldBeTrue)
		test.That(t, img.At(3, 2).A, test.ShouldEqual, uint8(255))
		test.That(t, img.At(3, 0).A, test.ShouldEqual, uint8(0))
	})

	t.Run("webp overlay", func(t *testing.T) {
		var buf bytes.Buffer
		test.That(t, nativewebp.Encode(&buf, lensImage(), nil), test.ShouldBeNil)
		img, err := DecodeFlat(buf.Bytes(), "lens.webp")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Width, test.ShouldEqual, 8)
	})

	t.Run("tga overlay", func(t *testing.T) {
		// 2x1 uncompressed 32-bit, top-left origin.
		data := []byte{0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 0, 1, 0, 32, 0x28}
		data = append(data, 0, 0, 255, 255, 0, 0, 0, 0)
		img, err := DecodeFlat(data, "lens.tga")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Width, test.ShouldEqual, 2)
		test.That(t, img.Height, test.ShouldEqual, 1)
	})

	t.Run("jpeg has no transparency", func(t *testing.T) {
		data := encodeJPEG(t, image.NewRGBA(image.Rect(0, 0, 4, 4)))
		_, err := DecodeFlat(data, "lens.jpg")
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.UnsupportedAssetFormat)
		img, err := DecodeImage(data, "lens.jpg")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.HasAlpha, test.ShouldBeFalse)
	})

	t.Run("opaque png is rejected", func(t *testing.T) {
		opaque := image.NewNRGBA(image.Rect(0, 0, 2, 2))
		for i := 3; i < len(opaque.Pix); i += 4 {
			opaque.Pix[i] = 255
		}
		_, err := DecodeFlat(encodePNG(t, opaque), "box.png")
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.UnsupportedAssetFormat)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeImage([]byte("GIF89a...."), "a.gif")
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.UnsupportedAssetFormat)
		_, err = DecodeImage([]byte("\x89PNG\r\n\x1a\ntruncated"), "a.png")
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.AssetLoadFailed)
	})
}

func TestTextureCache(t *testing.T) {
	ozj := append(make([]byte, ozjHeader), encodeJPEG(t, image.NewRGBA(image.Rect(0, 0, 4, 2)))...)
	m := newMemFetcher(map[string][]byte{"models/glass.ozj": ozj})
	c := NewTextureCache(m)
	ctx := context.Background()

	img, err := c.Resolve(ctx, "models/frame.bmd", "glass.jpg")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 4)
	test.That(t, m.count("models/glass.jpg"), test.ShouldEqual, 1)
	test.That(t, m.count("models/glass.ozt"), test.ShouldEqual, 1)

	again, err := c.Resolve(ctx, "models/frame.bmd", "glass.jpg")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, img)
	test.That(t, m.count("models/glass.ozj"), test.ShouldEqual, 1)

	_, err = c.Resolve(ctx, "models/frame.bmd", "missing.png")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.FetchError)
	_, err = c.Resolve(ctx, "models/frame.bmd", "missing.png")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.AssetLoadFailed)
	test.That(t, m.count("models/missing.png"), test.ShouldEqual, 1)
	test.That(t, c.Len(), test.ShouldEqual, 2)
}
