// Package filecache describes where a fetcher may persist the payload it
// produced, and implements the read/write side of that descriptor.
//
// The descriptor has its own JSON serializer; fetcher configurations embed the
// serialized form without interpreting it.
package filecache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrDisabled is returned by Read and Write on a disabled descriptor.
var ErrDisabled = errors.New("filecache: cache disabled")

// FileCache is the cache descriptor of one fetcher.
type FileCache struct {
	// Path is the cache file location.
	Path string

	// MaxAge is how long a written payload stays valid. Zero or negative
	// means a cached payload is never valid unless UseOutdated is set.
	MaxAge time.Duration

	// Disabled turns Read and Write into ErrDisabled.
	Disabled bool

	// UseOutdated makes Read return payloads regardless of age.
	UseOutdated bool

	// Simulation makes Read ignore age and Write a no-op, so a replay never
	// overwrites the recorded payload.
	Simulation bool
}

// NoCache returns the disabled descriptor used by fetchers whose source data
// is itself a cache.
func NoCache(path string) FileCache {
	return FileCache{Path: path, Disabled: true}
}

// wireCache is the serialized form. Field names are part of the persisted
// fetcher configuration format.
type wireCache struct {
	Path          string `json:"path"`
	MaxAge        string `json:"max_age"` // time.Duration string, e.g. "1m30s"
	Disabled      bool   `json:"disabled"`
	UseOutdated   bool   `json:"use_outdated"`
	Simulation    bool   `json:"simulation"`
}

// MarshalJSON implements json.Marshaler.
func (c FileCache) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCache{
		Path:          c.Path,
		MaxAge:        c.MaxAge.String(),
		Disabled:      c.Disabled,
		UseOutdated:   c.UseOutdated,
		Simulation:    c.Simulation,
	})
}

// Decode parses a descriptor produced by MarshalJSON. Unknown fields and
// trailing data are rejected.
func Decode(data []byte) (FileCache, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireCache
	if err := dec.Decode(&w); err != nil {
		return FileCache{}, fmt.Errorf("filecache: decode: %w", err)
	}
	if dec.More() {
		return FileCache{}, errors.New("filecache: decode: trailing data after descriptor")
	}
	var maxAge time.Duration
	if w.MaxAge != "" {
		d, err := time.ParseDuration(w.MaxAge)
		if err != nil {
			return FileCache{}, fmt.Errorf("filecache: decode: max_age: %w", err)
		}
		maxAge = d
	}
	return FileCache{
		Path:        w.Path,
		MaxAge:      maxAge,
		Disabled:    w.Disabled,
		UseOutdated: w.UseOutdated,
		Simulation:  w.Simulation,
	}, nil
}

// Read returns the cached payload and true when a usable one exists.
// A missing file is not an error.
func (c FileCache) Read(now time.Time) ([]byte, bool, error) {
	if c.Disabled {
		return nil, false, ErrDisabled
	}
	fi, err := os.Stat(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("filecache: stat %q: %w", c.Path, err)
	}

	if !c.UseOutdated && !c.Simulation {
		if c.MaxAge <= 0 || now.Sub(fi.ModTime()) > c.MaxAge {
			return nil, false, nil
		}
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, false, fmt.Errorf("filecache: read %q: %w", c.Path, err)
	}
	return data, true, nil
}

// Write atomically replaces the cache file with data.
func (c FileCache) Write(data []byte) error {
	if c.Disabled {
		return ErrDisabled
	}
	if c.Simulation {
		return nil
	}
	return WriteAtomic(c.Path, data)
}

// WriteAtomic writes data to a temporary file next to path and renames it
// into place, creating the parent directory if needed.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filecache: create dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("filecache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filecache: write %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filecache: close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filecache: rename into %q: %w", path, err)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler with the strict rules of Decode.
func (c *FileCache) UnmarshalJSON(data []byte) error {
	fc, err := Decode(data)
	if err != nil {
		return err
	}
	*c = fc
	return nil
}
