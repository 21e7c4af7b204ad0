package index

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/frederic-klein/yacr/internal/recipe"
)

const testCatalog = `recipes:
  vsg:
    "1.0.3":
      url: https://mirror.example/vsg-1.0.3.tar.gz
      sha256: 6f1e3b0a
    "1.0.5":
      url: https://mirror.example/vsg-1.0.5.tar.gz
  picojson:
    "1.3.0":
      url: https://mirror.example/picojson-1.3.0.tar.gz
`

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRemote_Lookup_NotLoaded(t *testing.T) {
	idx := NewRemote("https://mirror.example", t.TempDir())

	_, found := idx.Lookup(recipe.Ref{Name: "vsg", Version: "1.0.3"})
	if found {
		t.Error("Lookup() should return false when index not loaded")
	}
}

func TestRemote_ParseCache(t *testing.T) {
	cacheDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cacheDir, "index.yaml"), []byte(testCatalog), 0644); err != nil {
		t.Fatal(err)
	}

	idx := NewRemote("https://mirror.example", cacheDir)
	if err := idx.parseCache(); err != nil {
		t.Fatalf("parseCache() error = %v", err)
	}

	tests := []struct {
		ref       string
		wantURL   string
		wantSHA   string
		wantFound bool
	}{
		{"vsg/1.0.3", "https://mirror.example/vsg-1.0.3.tar.gz", "6f1e3b0a", true},
		{"vsg/1.0.5", "https://mirror.example/vsg-1.0.5.tar.gz", "", true},
		{"picojson/1.3.0", "https://mirror.example/picojson-1.3.0.tar.gz", "", true},
		{"vsg/0.1.0", "", "", false},
		{"zlib/1.3", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			ref, err := recipe.ParseRef(tt.ref)
			if err != nil {
				t.Fatal(err)
			}
			src, found := idx.Lookup(ref)
			if found != tt.wantFound {
				t.Errorf("Lookup(%q) found = %v, want %v", tt.ref, found, tt.wantFound)
			}
			if src.URL != tt.wantURL || src.SHA256 != tt.wantSHA {
				t.Errorf("Lookup(%q) = %+v, want url %q sha %q", tt.ref, src, tt.wantURL, tt.wantSHA)
			}
		})
	}
}

func TestRemote_Load_Downloads(t *testing.T) {
	// Arrange
	body := gzipped(t, testCatalog)
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index.yaml.gz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		requests++
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(body)
	}))
	defer server.Close()

	idx := NewRemote(server.URL+"/", t.TempDir())

	// Act
	err := idx.Load(context.Background())

	// Assert
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, found := idx.Lookup(recipe.Ref{Name: "vsg", Version: "1.0.5"}); !found {
		t.Error("vsg/1.0.5 missing after Load()")
	}

	// A second load within the TTL uses the cache.
	if err := NewRemote(server.URL, idx.cacheDir).Load(context.Background()); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if requests != 1 {
		t.Errorf("server was called %d times, want 1", requests)
	}
}

func TestRemote_Load_StaleCache(t *testing.T) {
	cacheDir := t.TempDir()
	cacheFile := filepath.Join(cacheDir, "index.yaml")
	if err := os.WriteFile(cacheFile, []byte("recipes: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * cacheTTL)
	if err := os.Chtimes(cacheFile, old, old); err != nil {
		t.Fatal(err)
	}

	body := gzipped(t, testCatalog)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	idx := NewRemote(server.URL, cacheDir)
	if err := idx.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, found := idx.Lookup(recipe.Ref{Name: "vsg", Version: "1.0.3"}); !found {
		t.Error("stale cache was not refreshed")
	}
}

func TestRemote_Load_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	idx := NewRemote(server.URL, t.TempDir())
	if err := idx.Load(context.Background()); err == nil {
		t.Error("Load() should fail on HTTP 500")
	}
}

func TestRemote_Mirror(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://mirror.example", "https://mirror.example"},
		{"https://mirror.example/", "https://mirror.example"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			idx := NewRemote(tt.input, t.TempDir())
			if got := idx.Mirror(); got != tt.want {
				t.Errorf("Mirror() = %q, want %q", got, tt.want)
			}
		})
	}
}
