// Package utils holds download and cache helpers shared by the dataset loaders.
package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("file not found on server")

// CacheDir is where GetCachedReader keeps downloaded files.
var CacheDir = "data/cache"

type progressWriter struct {
	io.Writer
	total uint64
	last  uint64
	label string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.total += uint64(n)
	if pw.total-pw.last > 1024*1024 {
		log.Printf("%s: downloaded %d KB", pw.label, pw.total/1024)
		pw.last = pw.total
	}
	return n, err
}

func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return resp, nil
}

// DownloadFile downloads url to path, writing through a temp file so a partial
// download never replaces an existing copy.
func DownloadFile(ctx context.Context, client *http.Client, url, path string) error {
	resp, err := get(ctx, client, url)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Printf("Error removing temp file %s: %v", tmpName, err)
		}
	}()

	pw := &progressWriter{Writer: tmpFile, label: filepath.Base(path)}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CacheFileName returns the local file name used for url. The prefix keeps
// files of the same name from different hosts apart.
func CacheFileName(url, prefix string) string {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	name := parts[len(parts)-1]
	prefix = strings.ReplaceAll(strings.Trim(prefix, "[]"), " ", "_")
	if prefix != "" {
		name = prefix + "_" + name
	}
	return name
}

// GetCachedReader returns a reader for url. With useCache set the body is
// downloaded once into CacheDir and later calls read the local copy.
func GetCachedReader(ctx context.Context, client *http.Client, url string, useCache bool, logPrefix string) (io.ReadCloser, error) {
	if !useCache {
		log.Printf("%s Streaming from %s", logPrefix, url)
		resp, err := get(ctx, client, url)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	if err := os.MkdirAll(CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	localPath := filepath.Join(CacheDir, CacheFileName(url, logPrefix))
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		log.Printf("%s Downloading %s", logPrefix, url)
		if err := DownloadFile(ctx, client, url, localPath); err != nil {
			return nil, err
		}
	} else {
		log.Printf("%s Using cached file: %s", logPrefix, localPath)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return f, nil
}
