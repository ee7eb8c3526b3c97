package batch

import (
	"os"
	"path/filepath"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"eyewear-tryon/internal/assets"
	"eyewear-tryon/internal/geometry"
	"eyewear-tryon/internal/landmarks"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Job composites one product onto one capture.
type Job struct {
	ID      string `json:"id"`
	Capture string `json:"capture"`
	Asset   string `json:"asset"`
	// Kind is "flat" or "volumetric"; inferred from the asset extension
	// when empty.
	Kind string `json:"kind,omitempty"`
	// Landmarks skip detection when present.
	Landmarks *landmarks.Landmarks `json:"landmarks,omitempty"`
	Output    string               `json:"output,omitempty"`
}

// Ref returns the job's asset reference.
func (j Job) Ref() assets.Ref {
	if k := assets.ParseKind(j.Kind); k != assets.KindUnknown {
		return assets.Ref{URL: j.Asset, Kind: k}
	}
	return assets.NewRef(j.Asset)
}

// ReadJobs reads a JSON array of jobs. Jobs without an ID are numbered.
func ReadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read jobs %s", path)
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, errors.Wrapf(err, "parse jobs %s", path)
	}
	for i := range jobs {
		if jobs[i].ID == "" {
			jobs[i].ID = jobID(i)
		}
	}
	return jobs, nil
}

func jobID(i int) string {
	return "job-" + strconv.Itoa(i+1)
}

// ManifestEntry represents one job in the output manifest.
type ManifestEntry struct {
	ID        string              `json:"id"`
	Asset     string              `json:"asset"`
	Image     string              `json:"image,omitempty"`
	Transform *geometry.Transform `json:"transform,omitempty"`
	ErrKind   string              `json:"error_kind,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// WriteManifest writes manifest.json describing every result. Image paths
// are relative to the manifest's directory.
func WriteManifest(path string, results []Result) error {
	dir := filepath.Dir(path)
	entries := make([]ManifestEntry, len(results))
	for i, r := range results {
		e := ManifestEntry{ID: r.ID, Asset: r.Asset, ErrKind: r.ErrKind, Error: r.Error}
		if r.Success {
			t := r.Transform
			e.Transform = &t
			if rel, err := filepath.Rel(dir, r.Output); err == nil {
				e.Image = filepath.ToSlash(rel)
			} else {
				e.Image = r.Output
			}
		}
		entries[i] = e
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
