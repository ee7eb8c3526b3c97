// Package app assembles the shared runtime of the try-on tools from a
// resolved configuration: logger, asset fetch stack, texture cache and the
// optional SQLite store.
package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/config"
	"eyewear-tryon/internal/landmarks"
	"eyewear-tryon/internal/logging"
	"eyewear-tryon/internal/session"
	"eyewear-tryon/internal/store"
)

// App holds resources shared by every session of a process.
type App struct {
	Config   config.Config
	Log      *logrus.Logger
	Fetcher  *assets.Cache
	Textures *assets.TextureCache
	Store    *store.Store // nil without a cache database
}

// Open builds the runtime. cfg must already be resolved and validated.
func Open(cfg config.Config) (*App, error) {
	log, err := logging.New(cfg.LogOptions())
	if err != nil {
		return nil, err
	}
	return OpenWithLogger(cfg, log)
}

// OpenWithLogger is Open with a caller-supplied logger.
func OpenWithLogger(cfg config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	opts := []assets.CacheOption{
		assets.WithBudget(cfg.Assets.CacheBytes),
		assets.WithLogger(log),
	}
	if cfg.Assets.CacheDB != "" {
		st, err := store.New(cfg.Assets.CacheDB)
		if err != nil {
			return nil, err
		}
		a.Store = st
		opts = append(opts, assets.WithTier(st.Assets()))
		log.WithField("path", cfg.Assets.CacheDB).Debug("asset store opened")
	}

	router := assets.NewRouter(cfg.Assets.BaseDir, time.Duration(cfg.Assets.FetchTimeout))
	a.Fetcher = assets.NewCache(router, opts...)
	a.Textures = assets.NewTextureCache(a.Fetcher)
	return a, nil
}

// NewSession starts a session on the shared runtime. Transitions are
// recorded when a store is open.
func (a *App) NewSession(opts ...session.Option) *session.Controller {
	base := []session.Option{
		session.WithLogger(a.Log),
		session.WithTextures(a.Textures),
	}
	if a.Store != nil {
		base = append(base, session.WithHistory(a.Store.History()))
	}
	return session.New(a.Config.Session(), a.Fetcher, append(base, opts...)...)
}

// Detector opens the OpenCV detector when the binary was built with it.
func (a *App) Detector() (landmarks.Detector, error) {
	return landmarks.NewCascade(landmarks.CascadeConfig{})
}

// Prune drops stored assets older than maxAge. It is a no-op without a
// store.
func (a *App) Prune(ctx context.Context, maxAge time.Duration) error {
	if a.Store == nil || maxAge <= 0 {
		return nil
	}
	n, err := a.Store.Assets().Prune(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return err
	}
	if n > 0 {
		a.Log.WithField("count", n).Info("pruned stale assets")
	}
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
