package dataset

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sudorandom/latency-map/pkg/utils"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.json
var fixtures embed.FS

const (
	exchangesFile = "exchanges"
	regionsFile   = "cloud_regions"
	samplesFile   = "latency_samples"
)

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog built from the fixtures compiled into the binary.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(fixtures, "data")
		if err != nil {
			defaultErr = err
			return
		}
		defaultCatalog, defaultErr = LoadFS(sub)
	})
	return defaultCatalog, defaultErr
}

// LoadDir loads the three dataset files from dir. Each may be .json, .yaml or .yml.
func LoadDir(dir string) (*Catalog, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS loads the dataset files from the root of fsys.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	var (
		exchanges []Exchange
		clouds    []CloudRegion
		samples   []LatencySample
	)
	if err := decodeFile(fsys, exchangesFile, &exchanges); err != nil {
		return nil, err
	}
	if err := decodeFile(fsys, regionsFile, &clouds); err != nil {
		return nil, err
	}
	if err := decodeFile(fsys, samplesFile, &samples); err != nil {
		return nil, err
	}
	return NewCatalog(exchanges, clouds, samples)
}

func decodeFile(fsys fs.FS, base string, v any) error {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		f, err := fsys.Open(base + ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("open %s%s: %w", base, ext, err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Printf("[dataset] Error closing %s%s: %v", base, ext, err)
			}
		}()
		if err := decode(f, ext, v); err != nil {
			return fmt.Errorf("decode %s%s: %w", base, ext, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s.{json,yaml,yml} not found", ErrInvalidDataset, base)
}

func decode(r io.Reader, ext string, v any) error {
	if ext == ".json" {
		return json.NewDecoder(r).Decode(v)
	}
	return yaml.NewDecoder(r).Decode(v)
}

// LoadURL fetches exchanges.json, cloud_regions.json and latency_samples.json
// from baseURL.
func LoadURL(ctx context.Context, client *http.Client, baseURL string, useCache bool) (*Catalog, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	var (
		exchanges []Exchange
		clouds    []CloudRegion
		samples   []LatencySample
	)
	targets := []struct {
		name string
		v    any
	}{
		{exchangesFile, &exchanges},
		{regionsFile, &clouds},
		{samplesFile, &samples},
	}
	for _, t := range targets {
		url := baseURL + "/" + t.name + ".json"
		rc, err := utils.GetCachedReader(ctx, client, url, useCache, "[dataset]")
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		err = json.NewDecoder(rc).Decode(t.v)
		if cerr := rc.Close(); cerr != nil {
			log.Printf("[dataset] Error closing %s: %v", url, cerr)
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", url, err)
		}
	}
	return NewCatalog(exchanges, clouds, samples)
}

// Load picks the source from the given options: a directory, then a URL,
// falling back to the embedded fixtures.
func Load(ctx context.Context, dir, url string) (*Catalog, error) {
	switch {
	case dir != "":
		log.Printf("[dataset] Loading reference data from %s", filepath.Clean(dir))
		return LoadDir(dir)
	case url != "":
		log.Printf("[dataset] Loading reference data from %s", url)
		return LoadURL(ctx, nil, url, true)
	default:
		return Default()
	}
}
