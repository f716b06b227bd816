package share

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestShare_WritesNamedFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1717236000, 0)
	s := NewSharer(dir, nil, func() time.Time { return now })

	art, err := s.Share(context.Background(), []byte(`{"type":"FeatureCollection","features":[]}`))
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if art.Name != "altitude-recorder-1717236000.geojson" {
		t.Fatalf("name=%q", art.Name)
	}
	if art.Path != filepath.Join(dir, art.Name) {
		t.Fatalf("path=%q", art.Path)
	}
	if art.URL != "" {
		t.Fatalf("url=%q", art.URL)
	}
	b, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != `{"type":"FeatureCollection","features":[]}` {
		t.Fatalf("content=%s", b)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("leftover temp files: %d entries", len(entries))
	}
}

func TestShare_MissingDir(t *testing.T) {
	s := NewSharer(filepath.Join(t.TempDir(), "nope"), nil, nil)
	if _, err := s.Share(context.Background(), []byte("{}")); err == nil {
		t.Fatalf("expected error")
	}
}

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestShare_UploadsToS3(t *testing.T) {
	fake := &fakeS3{}
	up := NewS3Uploader(fake, "tracks", "eu-central-1", "exports/")
	now := time.Unix(1717236000, 0)
	dir := t.TempDir()
	s := NewSharer(dir, up, func() time.Time { return now })

	art, err := s.Share(context.Background(), []byte("{}"))
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if got := aws.ToString(fake.in.Key); got != "exports/altitude-recorder-1717236000.geojson" {
		t.Fatalf("key=%q", got)
	}
	if got := aws.ToString(fake.in.ContentType); got != ContentType {
		t.Fatalf("content type=%q", got)
	}
	if string(fake.body) != "{}" {
		t.Fatalf("body=%q", fake.body)
	}
	want := "https://tracks.s3.eu-central-1.amazonaws.com/exports/altitude-recorder-1717236000.geojson"
	if art.URL != want {
		t.Fatalf("url=%q", art.URL)
	}
	if art.Path != "" {
		t.Fatalf("path=%q after upload", art.Path)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("local export left behind: %d entries", len(entries))
	}
}

func TestShare_UploadFailure(t *testing.T) {
	up := NewS3Uploader(&fakeS3{err: errors.New("denied")}, "tracks", "eu-central-1", "")
	dir := t.TempDir()
	s := NewSharer(dir, up, nil)
	if _, err := s.Share(context.Background(), []byte("{}")); err == nil {
		t.Fatalf("expected error")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("local export left behind: %d entries", len(entries))
	}
}

func TestArtifactCleanup(t *testing.T) {
	dir := t.TempDir()
	art, err := NewSharer(dir, nil, nil).Share(context.Background(), []byte("{}"))
	if err != nil {
		t.Fatalf("Share: %v", err)
	}

	art.Cleanup()
	if _, err := os.Stat(art.Path); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	// A second call on a removed file is a no-op.
	art.Cleanup()
	Artifact{}.Cleanup()
}
