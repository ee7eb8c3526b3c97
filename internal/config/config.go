// Package config loads try-on settings from a JSON file, a .env file and
// TRYON_* environment variables, and command-line flags, in that order of
// increasing priority.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/compositor"
	"eyewear-tryon/internal/geometry"
	"eyewear-tryon/internal/logging"
	"eyewear-tryon/internal/scene"
	"eyewear-tryon/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds every tunable of the try-on tools.
type Config struct {
	Geometry geometry.Params `json:"geometry"`
	Render   Render          `json:"render"`
	Assets   Assets          `json:"assets"`
	Logging  Logging         `json:"logging"`
	Batch    Batch           `json:"batch"`
}

// Render settings.
type Render struct {
	Supersample int    `json:"supersample" validate:"gte=1,lte=4"`
	MaxPixels   int64  `json:"max_pixels" validate:"gte=0"`
	Format      string `json:"format" validate:"oneof=webp png"`

	// SceneMaxPixels bounds the supersampled 3D surface (width*height*ss²).
	SceneMaxPixels int64 `json:"scene_max_pixels" validate:"gte=0"`

	// Scene surface used before the first capture arrives.
	Width  int `json:"width" validate:"gte=1"`
	Height int `json:"height" validate:"gte=1"`

	LoadTimeout Duration `json:"load_timeout" validate:"gte=0"`
}

// Assets settings.
type Assets struct {
	BaseDir      string   `json:"base_dir"`
	FetchTimeout Duration `json:"fetch_timeout" validate:"gte=0"`
	CacheBytes   int64    `json:"cache_bytes" validate:"gte=0"`
	CacheDB      string   `json:"cache_db"`

	// TrimPadding crops transparent margins off flat overlays before they
	// are fitted.
	TrimPadding   bool  `json:"trim_padding"`
	TrimThreshold uint8 `json:"trim_threshold"`
}

// Logging settings.
type Logging struct {
	Level string `json:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	File  string `json:"file"`
}

// Batch settings.
type Batch struct {
	Workers   int    `json:"workers" validate:"gte=1"`
	OutputDir string `json:"output_dir"`
}

// Duration decodes from a Go duration string ("15s") or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

func parseDuration(s string) (Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Errorf("invalid duration %q", s)
	}
	return Duration(v), nil
}

// Load reads a JSON config file. Fields not set in the file keep their zero
// values until Resolve fills them in.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, nil
}

// LoadEnv loads .env files into the process environment (missing files are
// skipped) and then applies TRYON_* variables to c.
func (c *Config) LoadEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			return errors.Wrap(err, "config: load env")
		}
	}
	return c.ApplyEnv(os.LookupEnv)
}

// ApplyEnv overrides fields from TRYON_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}
	e.Text("TRYON_BASE_DIR", &c.Assets.BaseDir)
	e.Text("TRYON_CACHE_DB", &c.Assets.CacheDB)
	e.Text("TRYON_LOG_LEVEL", &c.Logging.Level)
	e.Text("TRYON_LOG_FILE", &c.Logging.File)
	e.Text("TRYON_FORMAT", &c.Render.Format)
	e.Text("TRYON_OUTPUT_DIR", &c.Batch.OutputDir)
	e.Int("TRYON_SUPERSAMPLE", &c.Render.Supersample)
	e.Int("TRYON_WORKERS", &c.Batch.Workers)
	e.Int64("TRYON_MAX_PIXELS", &c.Render.MaxPixels)
	e.Int64("TRYON_SCENE_MAX_PIXELS", &c.Render.SceneMaxPixels)
	e.Int64("TRYON_CACHE_BYTES", &c.Assets.CacheBytes)
	e.Duration("TRYON_FETCH_TIMEOUT", &c.Assets.FetchTimeout)
	e.Float("TRYON_SCALE_FACTOR", &c.Geometry.ScaleFactor)
	e.Bool("TRYON_ROLL", &c.Geometry.RollCompensation)
	return e.err
}

// envReader parses variables, keeping the first error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	return v, ok && v != "" && e.err == nil
}

func (e *envReader) fail(key string, err error) {
	if err != nil {
		e.err = errors.Wrapf(err, "config: %s", key)
	}
}

func (e *envReader) Text(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) Int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		e.fail(key, err)
		if err == nil {
			*dst = n
		}
	}
}

func (e *envReader) Int64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		e.fail(key, err)
		if err == nil {
			*dst = n
		}
	}
}

func (e *envReader) Float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		e.fail(key, err)
		if err == nil {
			*dst = f
		}
	}
}

func (e *envReader) Bool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		e.fail(key, err)
		if err == nil {
			*dst = b
		}
	}
}

func (e *envReader) Duration(key string, dst *Duration) {
	if v, ok := e.get(key); ok {
		d, err := parseDuration(v)
		e.fail(key, err)
		if err == nil {
			*dst = d
		}
	}
}

// Flags holds CLI flag values that override everything else when set.
type Flags struct {
	DataDir     string
	OutputDir   string
	Format      string
	LogLevel    string
	Supersample int
	Workers     int
	Roll        bool
}

// Resolve applies flags and then fills empty fields with defaults.
// Relative paths are resolved against the asset base dir.
func (c *Config) Resolve(flags Flags) {
	if flags.DataDir != "" {
		c.Assets.BaseDir = flags.DataDir
	}
	if flags.OutputDir != "" {
		c.Batch.OutputDir = flags.OutputDir
	}
	if flags.Format != "" {
		c.Render.Format = flags.Format
	}
	if flags.LogLevel != "" {
		c.Logging.Level = flags.LogLevel
	}
	if flags.Supersample > 0 {
		c.Render.Supersample = flags.Supersample
	}
	if flags.Workers > 0 {
		c.Batch.Workers = flags.Workers
	}
	if flags.Roll {
		c.Geometry.RollCompensation = true
	}

	def := geometry.DefaultParams()
	if c.Geometry.ScaleFactor == 0 {
		c.Geometry.ScaleFactor = def.ScaleFactor
	}
	if c.Geometry.VerticalOffsetRatio == 0 {
		c.Geometry.VerticalOffsetRatio = def.VerticalOffsetRatio
	}

	if c.Assets.BaseDir == "" {
		c.Assets.BaseDir = detectBaseDir()
	}
	if c.Assets.CacheDB != "" && !filepath.IsAbs(c.Assets.CacheDB) {
		c.Assets.CacheDB = filepath.Join(c.Assets.BaseDir, c.Assets.CacheDB)
	}
	if c.Batch.OutputDir == "" {
		c.Batch.OutputDir = filepath.Join(c.Assets.BaseDir, "renders")
	} else if !filepath.IsAbs(c.Batch.OutputDir) {
		c.Batch.OutputDir = filepath.Join(c.Assets.BaseDir, c.Batch.OutputDir)
	}

	if c.Render.Supersample <= 0 {
		c.Render.Supersample = 2
	}
	if c.Render.MaxPixels <= 0 {
		c.Render.MaxPixels = compositor.DefaultMaxPixels
	}
	if c.Render.SceneMaxPixels <= 0 {
		c.Render.SceneMaxPixels = scene.DefaultMaxPixels
	}
	if c.Render.Format == "" {
		c.Render.Format = string(compositor.FormatWebP)
	}
	c.Render.Format = strings.ToLower(c.Render.Format)
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		c.Render.Width, c.Render.Height = 640, 480
	}
	if c.Render.LoadTimeout <= 0 {
		c.Render.LoadTimeout = Duration(30 * time.Second)
	}
	if c.Assets.FetchTimeout <= 0 {
		c.Assets.FetchTimeout = Duration(15 * time.Second)
	}
	if c.Assets.CacheBytes <= 0 {
		c.Assets.CacheBytes = assets.DefaultCacheBytes
	}
	if c.Assets.TrimThreshold == 0 {
		c.Assets.TrimThreshold = 8
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = runtime.NumCPU()
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "config: invalid")
	}
	return c.Geometry.Validate()
}

// Session returns the per-session settings.
func (c *Config) Session() session.Config {
	return session.Config{
		Geometry:       c.Geometry,
		TrimPadding:    c.Assets.TrimPadding,
		TrimThreshold:  c.Assets.TrimThreshold,
		SurfaceWidth:   c.Render.Width,
		SurfaceHeight:  c.Render.Height,
		Supersample:    c.Render.Supersample,
		MaxPixels:      c.Render.MaxPixels,
		SceneMaxPixels: c.Render.SceneMaxPixels,
		LoadTimeout:    time.Duration(c.Render.LoadTimeout),
	}
}

// LogOptions returns the logger settings.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{Level: c.Logging.Level, File: c.Logging.File}
}

// detectBaseDir looks for an assets directory next to the executable or the
// working directory, falling back to the working directory.
func detectBaseDir() string {
	exe, _ := os.Executable()
	if exe != "" {
		dir := filepath.Dir(exe)
		for _, base := range []string{dir, filepath.Dir(dir)} {
			if _, err := os.Stat(filepath.Join(base, "assets")); err == nil {
				return base
			}
		}
	}

	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, "assets")); err == nil {
		return cwd
	}
	if cwd == "" {
		return "."
	}
	return cwd
}
