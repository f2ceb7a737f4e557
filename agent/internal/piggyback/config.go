package piggyback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/obsidianstack/piggyback/agent/internal/filecache"
	"github.com/obsidianstack/piggyback/pkg/types"
)

// ConfigVersion is the schema version written by FetcherConfig.MarshalJSON.
const ConfigVersion = 1

// ErrUnsupportedVersion is returned when decoding a configuration written
// with a schema version this build does not understand.
var ErrUnsupportedVersion = errors.New("piggyback: unsupported fetcher config version")

// FetcherConfig is the identity of a Fetcher: everything needed to rebuild
// it in another process, and nothing it fetched. Empty lists are held as nil.
type FetcherConfig struct {
	FileCache    filecache.FileCache
	ClusterNodes []string
	Hostname     string
	Address      string
	TimeSettings []types.TimeSetting
}

func (c FetcherConfig) clone() FetcherConfig {
	c.ClusterNodes = cloneList(c.ClusterNodes)
	c.TimeSettings = cloneList(c.TimeSettings)
	return c
}

// cloneList copies s, mapping an empty list to nil.
func cloneList[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}

// wireConfig is the versioned serialized form. file_cache is produced and
// consumed by the filecache package and passed through untouched.
type wireConfig struct {
	Version      int                 `json:"version"`
	FileCache    json.RawMessage     `json:"file_cache"`
	ClusterNodes []string            `json:"cluster_nodes"`
	Hostname     string              `json:"hostname"`
	Address      string              `json:"address,omitempty"`
	TimeSettings []types.TimeSetting `json:"time_settings"`
}

// MarshalJSON implements json.Marshaler.
func (c FetcherConfig) MarshalJSON() ([]byte, error) {
	fc, err := json.Marshal(c.FileCache)
	if err != nil {
		return nil, fmt.Errorf("piggyback: encode file_cache: %w", err)
	}
	w := wireConfig{
		Version:      ConfigVersion,
		FileCache:    fc,
		ClusterNodes: c.ClusterNodes,
		Hostname:     c.Hostname,
		Address:      c.Address,
		TimeSettings: c.TimeSettings,
	}
	if w.ClusterNodes == nil {
		w.ClusterNodes = []string{}
	}
	if w.TimeSettings == nil {
		w.TimeSettings = []types.TimeSetting{}
	}
	return json.Marshal(w)
}

// DecodeFetcherConfig parses a document produced by MarshalJSON.
// Unknown fields, a missing version, hostname or file_cache, and trailing
// data are all errors.
func DecodeFetcherConfig(data []byte) (FetcherConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireConfig
	if err := dec.Decode(&w); err != nil {
		return FetcherConfig{}, fmt.Errorf("piggyback: decode fetcher config: %w", err)
	}
	if dec.More() {
		return FetcherConfig{}, errors.New("piggyback: decode fetcher config: trailing data")
	}

	switch {
	case w.Version == 0:
		return FetcherConfig{}, errors.New("piggyback: decode fetcher config: missing version")
	case w.Version != ConfigVersion:
		return FetcherConfig{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, w.Version)
	case w.Hostname == "":
		return FetcherConfig{}, errors.New("piggyback: decode fetcher config: missing hostname")
	case len(w.FileCache) == 0 || string(w.FileCache) == "null":
		return FetcherConfig{}, errors.New("piggyback: decode fetcher config: missing file_cache")
	}

	fc, err := filecache.Decode(w.FileCache)
	if err != nil {
		return FetcherConfig{}, fmt.Errorf("piggyback: decode fetcher config: %w", err)
	}
	return FetcherConfig{
		FileCache:    fc,
		ClusterNodes: cloneList(w.ClusterNodes),
		Hostname:     w.Hostname,
		Address:      w.Address,
		TimeSettings: cloneList(w.TimeSettings),
	}, nil
}

// MarshalJSON serializes the fetcher's identity.
func (f *Fetcher) MarshalJSON() ([]byte, error) {
	return f.cfg.MarshalJSON()
}

// FromJSON rebuilds an idle Fetcher from a serialized identity. No store
// query is made.
func FromJSON(data []byte, store Store, opts ...Option) (*Fetcher, error) {
	cfg, err := DecodeFetcherConfig(data)
	if err != nil {
		return nil, err
	}
	return NewFetcher(store, cfg, opts...), nil
}

// UnmarshalJSON implements json.Unmarshaler with the strict rules of
// DecodeFetcherConfig.
func (c *FetcherConfig) UnmarshalJSON(data []byte) error {
	cfg, err := DecodeFetcherConfig(data)
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}
