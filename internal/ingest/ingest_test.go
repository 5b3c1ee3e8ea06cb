package ingest

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/examscan/examscan/internal/procerr"
	"github.com/examscan/examscan/internal/store"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 600, 800))
	for y := 0; y < 800; y++ {
		for x := 0; x < 600; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
}

func TestSortByNumber(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "numeric suffixes sort numerically",
			paths: []string{"exam-10.pdf", "exam-2.pdf", "exam-1.pdf"},
			want:  []string{"exam-1.pdf", "exam-2.pdf", "exam-10.pdf"},
		},
		{
			name:  "unnumbered files come first",
			paths: []string{"exam-1.png", "cover.png"},
			want:  []string{"cover.png", "exam-1.png"},
		},
		{
			name:  "plain names sort alphabetically",
			paths: []string{"b.pdf", "a.pdf"},
			want:  []string{"a.pdf", "b.pdf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sortByNumber(tt.paths); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sortByNumber() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"physics-final.pdf", "physics-final"},
		{"/tmp/scans/midterm-1.pdf", "midterm"},
		{"page-03.png", "page"},
	}
	for _, tt := range tests {
		if got := deriveName(tt.path); got != tt.want {
			t.Errorf("deriveName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIngestImages(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "exam-2.png"),
		filepath.Join(dir, "exam-1.png"),
	}
	for _, p := range paths {
		writePNG(t, p)
	}

	st := store.NewMemoryStore()
	ing := New(st, DefaultConfig(), nil)
	res, err := ing.Ingest(context.Background(), Request{Paths: paths})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.PageCount != 2 || len(res.Pages) != 2 {
		t.Errorf("page count = %d (%d images), want 2", res.PageCount, len(res.Pages))
	}
	if res.Name != "exam" {
		t.Errorf("name = %q, want exam", res.Name)
	}
	if len(res.DetectionPages) != 2 {
		t.Fatalf("detection pages = %d, want 2", len(res.DetectionPages))
	}
	if res.DetectionScale != 2 {
		t.Errorf("detection scale = %g, want 2 (300/150 dpi)", res.DetectionScale)
	}
	b := res.DetectionPages[0].Bounds()
	if b.Dx() != 300 || b.Dy() != 400 {
		t.Errorf("detection page = %dx%d, want 300x400 (half of 600x800)", b.Dx(), b.Dy())
	}

	doc, err := st.GetDocument(context.Background(), res.DocumentID)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Status != store.DocumentUploaded || doc.PageCount != 2 {
		t.Errorf("document = %+v, want uploaded with 2 pages", doc)
	}
}

func TestIngestSingleTier(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "page.png")
	writePNG(t, p)

	cfg := DefaultConfig()
	cfg.DetectionDPI = cfg.RenderDPI
	ing := New(nil, cfg, nil)
	res, err := ing.Ingest(context.Background(), Request{Paths: []string{p}})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.DetectionScale != 1 {
		t.Errorf("detection scale = %g, want 1", res.DetectionScale)
	}
	if len(res.DetectionPages) != 1 || res.DetectionPages[0] != res.Pages[0] {
		t.Errorf("detection tier should reuse the full raster when the DPI tiers coincide")
	}
}

func TestIngestRejections(t *testing.T) {
	dir := t.TempDir()
	badExt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(badExt, []byte("plain text"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	corrupt := filepath.Join(dir, "corrupt.png")
	if err := os.WriteFile(corrupt, []byte("not a png"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tests := []struct {
		name string
		req  Request
	}{
		{name: "no files", req: Request{}},
		{name: "missing file", req: Request{Paths: []string{filepath.Join(dir, "absent.pdf")}}},
		{name: "unsupported extension", req: Request{Paths: []string{badExt}}},
		{name: "corrupt image", req: Request{Paths: []string{corrupt}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := New(nil, DefaultConfig(), nil)
			_, err := ing.Ingest(context.Background(), tt.req)
			var perr *procerr.Error
			if !errors.As(err, &perr) {
				t.Fatalf("Ingest() error = %v, want *procerr.Error", err)
			}
			if perr.Kind != procerr.KindFileSecurity {
				t.Errorf("error kind = %s, want file_security", perr.Kind)
			}
		})
	}
}

func TestIngestSizeLimit(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "page.png")
	writePNG(t, p)

	cfg := DefaultConfig()
	cfg.MaxFileBytes = 1
	ing := New(nil, cfg, nil)
	_, err := ing.Ingest(context.Background(), Request{Paths: []string{p}})
	var perr *procerr.Error
	if !errors.As(err, &perr) || perr.Kind != procerr.KindFileSecurity {
		t.Fatalf("Ingest() error = %v, want file_security", err)
	}
}
