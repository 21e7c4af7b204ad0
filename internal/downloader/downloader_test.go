package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func TestDownloader_Download_SingleFile(t *testing.T) {
	// Arrange
	content := []byte("test tarball content")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	dl := NewDownloader(2, cacheDir)
	destPath := filepath.Join(cacheDir, "test.tar.gz")

	jobs := []Job{{
		URL:      server.URL + "/test.tar.gz",
		DestPath: destPath,
		SHA256:   sum(content),
	}}

	// Act
	results := dl.Download(context.Background(), jobs)

	// Assert
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Error != nil {
		t.Errorf("Download() error = %v", results[0].Error)
	}

	data, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("file content = %q, want %q", data, content)
	}
}

func TestDownloader_Download_ChecksumMismatch(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered"))
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	dl := NewDownloader(1, cacheDir)
	destPath := filepath.Join(cacheDir, "vsg.tar.gz")
	jobs := []Job{{
		URL:      server.URL + "/vsg.tar.gz",
		DestPath: destPath,
		SHA256:   sum([]byte("original")),
	}}

	// Act
	results := dl.Download(context.Background(), jobs)

	// Assert
	if !errors.Is(results[0].Error, ErrChecksum) {
		t.Errorf("Download() error = %v, want ErrChecksum", results[0].Error)
	}
	if _, err := os.Stat(destPath); !os.IsNotExist(err) {
		t.Error("file with bad checksum was kept")
	}
	if _, err := os.Stat(destPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file was not removed")
	}
}

func TestDownloader_Download_Cached(t *testing.T) {
	// Arrange: Pre-create the file
	cacheDir := t.TempDir()
	destPath := filepath.Join(cacheDir, "cached.tar.gz")
	if err := os.WriteFile(destPath, []byte("cached"), 0644); err != nil {
		t.Fatal(err)
	}

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Write([]byte("new content"))
	}))
	defer server.Close()

	dl := NewDownloader(1, cacheDir)
	jobs := []Job{{
		URL:      server.URL + "/cached.tar.gz",
		DestPath: destPath,
		SHA256:   sum([]byte("cached")),
	}}

	// Act
	results := dl.Download(context.Background(), jobs)

	// Assert
	if results[0].Error != nil {
		t.Errorf("Download() error = %v", results[0].Error)
	}
	if requestCount != 0 {
		t.Errorf("server was called %d times, want 0 (should use cache)", requestCount)
	}

	data, _ := os.ReadFile(destPath)
	if string(data) != "cached" {
		t.Error("cached file was overwritten")
	}
}

func TestDownloader_Download_StaleCacheRefetched(t *testing.T) {
	// Arrange: cached file does not match the expected checksum
	cacheDir := t.TempDir()
	destPath := filepath.Join(cacheDir, "stale.tar.gz")
	if err := os.WriteFile(destPath, []byte("truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	fresh := []byte("complete archive")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fresh)
	}))
	defer server.Close()

	dl := NewDownloader(1, cacheDir)
	jobs := []Job{{URL: server.URL + "/stale.tar.gz", DestPath: destPath, SHA256: sum(fresh)}}

	// Act
	results := dl.Download(context.Background(), jobs)

	// Assert
	if results[0].Error != nil {
		t.Fatalf("Download() error = %v", results[0].Error)
	}
	data, _ := os.ReadFile(destPath)
	if string(data) != string(fresh) {
		t.Errorf("file content = %q, want %q", data, fresh)
	}
}

func TestDownloader_Download_HTTPError(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	dl := NewDownloader(1, cacheDir)
	jobs := []Job{{
		URL:      server.URL + "/notfound.tar.gz",
		DestPath: filepath.Join(cacheDir, "notfound.tar.gz"),
	}}

	// Act
	results := dl.Download(context.Background(), jobs)

	// Assert
	if results[0].Error == nil {
		t.Error("Download() should return error for 404")
	}
}

func TestDownloader_Download_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cacheDir := t.TempDir()
	dl := NewDownloader(1, cacheDir)
	results := dl.Download(ctx, []Job{{URL: server.URL + "/a.tar.gz", DestPath: filepath.Join(cacheDir, "a.tar.gz")}})

	if !errors.Is(results[0].Error, context.Canceled) {
		t.Errorf("Download() error = %v, want context.Canceled", results[0].Error)
	}
}

func TestDownloader_Download_Parallel(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content for " + r.URL.Path))
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	dl := NewDownloader(3, cacheDir)

	jobs := []Job{
		{URL: server.URL + "/file1.tar.gz", DestPath: filepath.Join(cacheDir, "file1.tar.gz")},
		{URL: server.URL + "/file2.tar.gz", DestPath: filepath.Join(cacheDir, "file2.tar.gz")},
		{URL: server.URL + "/file3.tar.gz", DestPath: filepath.Join(cacheDir, "file3.tar.gz")},
	}

	// Act
	results := dl.Download(context.Background(), jobs)

	// Assert
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	for _, r := range results {
		if r.Error != nil {
			t.Errorf("Download(%s) error = %v", r.Job.URL, r.Error)
		}
	}

	for _, job := range jobs {
		if _, err := os.Stat(job.DestPath); os.IsNotExist(err) {
			t.Errorf("file %s was not created", job.DestPath)
		}
	}
}

func TestDownloader_Download_CreatesSubdirectories(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	dl := NewDownloader(1, cacheDir)
	destPath := dl.CachePath("vsg", "1.0.3", server.URL+"/v1.0.3.tar.gz")

	jobs := []Job{{
		URL:      server.URL + "/v1.0.3.tar.gz",
		DestPath: destPath,
	}}

	// Act
	results := dl.Download(context.Background(), jobs)

	// Assert
	if results[0].Error != nil {
		t.Errorf("Download() error = %v", results[0].Error)
	}
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		t.Error("file was not created with subdirectories")
	}
}

func TestVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Verify(path, "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if err := Verify(path, sum([]byte("abd"))); !errors.Is(err, ErrChecksum) {
		t.Errorf("Verify() error = %v, want ErrChecksum", err)
	}
}

func TestDownloader_CachePath(t *testing.T) {
	dl := NewDownloader(1, "/home/user/.yacr/cache")

	tests := []struct {
		url  string
		want string
	}{
		{
			"https://github.com/vsg-dev/VulkanSceneGraph/archive/refs/tags/v1.0.3.tar.gz",
			"/home/user/.yacr/cache/sources/vsg/1.0.3/v1.0.3.tar.gz",
		},
		{
			"https://mirror.example/vsg.tar.gz?token=abc",
			"/home/user/.yacr/cache/sources/vsg/1.0.3/vsg.tar.gz",
		},
	}

	for _, tt := range tests {
		if got := dl.CachePath("vsg", "1.0.3", tt.url); got != tt.want {
			t.Errorf("CachePath(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
