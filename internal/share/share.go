package share

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"altitude-recorder/internal/logger"
)

// ContentType is the registered media type for GeoJSON.
const ContentType = "application/geo+json"

// Uploader hands an export to a remote destination and returns where it
// can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// Artifact describes a shared export.
type Artifact struct {
	Name string `json:"file"`
	Path string `json:"-"`
	URL  string `json:"url,omitempty"`
}

type Sharer struct {
	dir      string
	uploader Uploader
	now      func() time.Time
}

// NewSharer writes exports to dir. uploader and now may be nil.
func NewSharer(dir string, uploader Uploader, now func() time.Time) *Sharer {
	if now == nil {
		now = time.Now
	}
	return &Sharer{dir: dir, uploader: uploader, now: now}
}

// FileName returns the export file name for the given time.
func FileName(t time.Time) string {
	return fmt.Sprintf("altitude-recorder-%d.geojson", t.Unix())
}

// Share writes data to a temporary .geojson file and, when an uploader is
// configured, uploads it and removes the local copy. Without an uploader
// the caller owns the file and releases it with Artifact.Cleanup.
func (s *Sharer) Share(ctx context.Context, data []byte) (Artifact, error) {
	name := FileName(s.now())
	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return Artifact{}, fmt.Errorf("write export: %w", err)
	}

	art := Artifact{Name: name, Path: path}
	if s.uploader == nil {
		return art, nil
	}

	url, err := s.uploader.Upload(ctx, name, data)
	if rmErr := os.Remove(path); rmErr != nil {
		logger.Warn("remove uploaded export", "path", path, "error", rmErr)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("upload export: %w", err)
	}
	art.URL = url
	art.Path = ""
	logger.Info("export uploaded", "file", name, "url", url)
	return art, nil
}

// Cleanup removes the local export file, if one is left.
func (a Artifact) Cleanup() {
	if a.Path == "" {
		return
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove export file", "path", a.Path, "error", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
