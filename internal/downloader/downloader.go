package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrChecksum is returned when a downloaded file does not match its expected sha256.
var ErrChecksum = errors.New("checksum mismatch")

// Job represents a download job.
type Job struct {
	URL      string
	DestPath string
	SHA256   string // optional, hex encoded
}

// Result represents a download result.
type Result struct {
	Job   Job
	Error error
}

// Downloader handles parallel HTTP downloads of source archives.
type Downloader struct {
	workers  int
	cacheDir string
	client   *http.Client
}

// NewDownloader creates a new downloader with the specified number of workers.
func NewDownloader(workers int, cacheDir string) *Downloader {
	if workers < 1 {
		workers = 1
	}
	return &Downloader{
		workers:  workers,
		cacheDir: cacheDir,
		client:   &http.Client{},
	}
}

// Download downloads multiple files in parallel.
func (d *Downloader) Download(ctx context.Context, jobs []Job) []Result {
	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		results := make([]Result, len(jobs))
		for i, job := range jobs {
			results[i] = Result{Job: job, Error: err}
		}
		return results
	}

	jobChan := make(chan Job, len(jobs))
	resultChan := make(chan Result, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				err := d.downloadOne(ctx, job)
				resultChan <- Result{Job: job, Error: err}
			}
		}()
	}

	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]Result, 0, len(jobs))
	for result := range resultChan {
		results = append(results, result)
	}

	return results
}

func (d *Downloader) downloadOne(ctx context.Context, job Job) error {
	// A cached file is reused only if it still matches the expected checksum.
	if _, err := os.Stat(job.DestPath); err == nil {
		if job.SHA256 == "" || Verify(job.DestPath, job.SHA256) == nil {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(job.DestPath), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", job.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: HTTP %d", job.URL, resp.StatusCode)
	}

	// Write to temp file first, then rename
	tmpPath := job.DestPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, h), resp.Body)
	out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}

	if job.SHA256 != "" {
		if got := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(got, job.SHA256) {
			os.Remove(tmpPath)
			return fmt.Errorf("downloading %s: %w: got %s, want %s", job.URL, ErrChecksum, got, job.SHA256)
		}
	}

	if err := os.Rename(tmpPath, job.DestPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming file: %w", err)
	}

	return nil
}

// Verify checks the sha256 of a file.
func Verify(filePath, want string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if got := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(got, want) {
		return fmt.Errorf("%s: %w: got %s, want %s", filePath, ErrChecksum, got, want)
	}
	return nil
}

// CacheDir returns the cache directory.
func (d *Downloader) CacheDir() string {
	return d.cacheDir
}

// CachePath returns the cache path for a source archive of a recipe version.
// The archive keeps the file name of its URL.
func (d *Downloader) CachePath(name, version, url string) string {
	base := path.Base(strings.SplitN(url, "?", 2)[0])
	return filepath.Join(d.cacheDir, "sources", name, version, base)
}
