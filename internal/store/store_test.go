package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.viam.com/test"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/session"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "tryon.db"))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tryon.db")
	s, err := New(path)
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Path(), test.ShouldEqual, path)
	test.That(t, s.Close(), test.ShouldBeNil)

	// Reopening runs the migrations again without error.
	s, err = New(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)
}

func TestAssets(t *testing.T) {
	ctx := context.Background()
	r := newStore(t).Assets()

	_, ok, err := r.Get(ctx, "frames/aviator.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, r.Put(ctx, "frames/aviator.png", []byte("v1")), test.ShouldBeNil)
	test.That(t, r.Put(ctx, "frames/aviator.png", []byte("v2!")), test.ShouldBeNil)
	data, ok, err := r.Get(ctx, "frames/aviator.png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, string(data), test.ShouldEqual, "v2!")

	n, size, err := r.Usage(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, int64(1))
	test.That(t, size, test.ShouldEqual, int64(3))

	test.That(t, r.Delete(ctx, "frames/aviator.png"), test.ShouldBeNil)
	_, ok, _ = r.Get(ctx, "frames/aviator.png")
	test.That(t, ok, test.ShouldBeFalse)

	t.Run("prune", func(t *testing.T) {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		r.now = func() time.Time { return base }
		test.That(t, r.Put(ctx, "old.obj", []byte("o")), test.ShouldBeNil)
		r.now = func() time.Time { return base.Add(time.Hour) }
		test.That(t, r.Put(ctx, "new.obj", []byte("n")), test.ShouldBeNil)

		gone, err := r.Prune(ctx, base.Add(time.Minute))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, gone, test.ShouldEqual, int64(1))
		_, ok, _ := r.Get(ctx, "new.obj")
		test.That(t, ok, test.ShouldBeTrue)
	})
}

func TestAssetTier(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	var fetches int32
	origin := assets.FetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		atomic.AddInt32(&fetches, 1)
		return []byte("bytes of " + url), nil
	})

	first := assets.NewCache(origin, assets.WithTier(s.Assets()))
	data, err := first.Fetch(ctx, "frames/round.obj")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "bytes of frames/round.obj")

	// A fresh cache over the same store is served from disk.
	second := assets.NewCache(origin, assets.WithTier(s.Assets()))
	data, err = second.Fetch(ctx, "frames/round.obj")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "bytes of frames/round.obj")
	test.That(t, atomic.LoadInt32(&fetches), test.ShouldEqual, int32(1))
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	h := newStore(t).History()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	test.That(t, h.Record(ctx, session.Event{SessionID: "a", From: session.Idle, To: session.CapturingInput, At: at}), test.ShouldBeNil)
	test.That(t, h.Record(ctx, session.Event{
		SessionID: "a", From: session.CapturingInput, To: session.Error,
		Asset: "frames/aviator.png", ErrKind: errs.InvalidLandmarks, Message: "eyes coincide", At: at.Add(time.Second),
	}), test.ShouldBeNil)
	test.That(t, h.Record(ctx, session.Event{SessionID: "b", From: session.Idle, To: session.Disposed, At: at}), test.ShouldBeNil)

	entries, err := h.List(ctx, "a")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 2)
	test.That(t, entries[0].To, test.ShouldEqual, "capturing_input")
	test.That(t, entries[0].ErrKind, test.ShouldEqual, "")
	test.That(t, entries[1].To, test.ShouldEqual, "error")
	test.That(t, entries[1].ErrKind, test.ShouldEqual, "InvalidLandmarks")
	test.That(t, entries[1].Asset, test.ShouldEqual, "frames/aviator.png")
	test.That(t, entries[1].At.Equal(at.Add(time.Second)), test.ShouldBeTrue)

	failures, err := h.Failures(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, failures, test.ShouldResemble, map[string]int{"InvalidLandmarks": 1})
}

func TestSessionHistory(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c := session.New(session.DefaultConfig(), assets.FetcherFunc(func(context.Context, string) ([]byte, error) {
		return nil, errs.New(errs.FetchError, "test.fetch", "offline")
	}), session.WithHistory(s.History()), session.WithID("kiosk-1"))

	err := c.SelectAsset(ctx, assets.Ref{URL: "frames/aviator.png", Kind: assets.KindFlat})
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.FetchError)
	test.That(t, c.Dispose(), test.ShouldBeNil)

	entries, err := s.History().List(ctx, "kiosk-1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 2)
	test.That(t, entries[0].ErrKind, test.ShouldEqual, "FetchError")
	test.That(t, entries[1].From, test.ShouldEqual, "error")
	test.That(t, entries[1].To, test.ShouldEqual, "disposed")
}
