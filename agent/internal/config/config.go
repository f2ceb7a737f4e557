package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/piggyback/agent/internal/filecache"
	"github.com/obsidianstack/piggyback/agent/internal/piggyback"
	"github.com/obsidianstack/piggyback/agent/internal/store"
	"github.com/obsidianstack/piggyback/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCheckInterval  = 60 * time.Second
	DefaultCacheMaxAge    = 5 * time.Minute
	DefaultMode           = "checking"
	DefaultLabelNamespace = piggyback.DefaultLabelNamespace
	DefaultTextfile       = "piggyback.prom"
)

// Config is the top-level configuration of the piggyback agent.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// PiggybackDir is the root of the piggyback store.
	PiggybackDir string `yaml:"piggyback_dir"`

	// OutputDir receives the per-host payload cache and the metrics
	// textfile. Empty disables both.
	OutputDir string `yaml:"output_dir"`

	// CheckInterval controls how often every host is processed.
	CheckInterval time.Duration `yaml:"check_interval"`

	// CacheMaxAge is how long a cached payload stays valid for readers of
	// the output cache.
	CacheMaxAge time.Duration `yaml:"cache_max_age"`

	// Mode is the pipeline phase the agent runs in:
	// checking | discovery | inventory | none.
	Mode string `yaml:"mode"`

	// LabelNamespace prefixes the piggyback source host labels.
	LabelNamespace string `yaml:"label_namespace"`

	// Textfile is the metrics file name inside OutputDir.
	Textfile string `yaml:"textfile"`

	// HTTPListen is the address of the status API (e.g. ":9470").
	// Empty disables it.
	HTTPListen string `yaml:"http_listen"`

	// TimeSettings apply to every host, ahead of the host's own settings.
	TimeSettings []TimeSetting `yaml:"time_settings"`

	// Hosts is the table of monitored hosts.
	Hosts []Host `yaml:"hosts"`

	mode types.Mode
}

// TimeSetting is one store time setting. Threshold is in seconds, or a state
// code for validity_state.
type TimeSetting struct {
	OriginPattern string `yaml:"origin_pattern"`
	Setting       string `yaml:"setting"`
	Threshold     int    `yaml:"threshold"`
}

// Host describes one monitored host that receives piggyback data.
type Host struct {
	Hostname string `yaml:"hostname"`

	// Address is the host's IP address. Data sent for the address is merged
	// after data sent for the hostname.
	Address string `yaml:"address"`

	ClusterNodes []string `yaml:"cluster_nodes"`

	// AlwaysExpectData reports WARN when no source sends data.
	AlwaysExpectData bool `yaml:"always_expect_data"`

	TimeSettings []TimeSetting `yaml:"time_settings"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			CheckInterval:  DefaultCheckInterval,
			CacheMaxAge:    DefaultCacheMaxAge,
			Mode:           DefaultMode,
			LabelNamespace: DefaultLabelNamespace,
			Textfile:       DefaultTextfile,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := &cfg.Agent
	if a.PiggybackDir == "" {
		return fmt.Errorf("agent.piggyback_dir is required")
	}
	if a.CheckInterval <= 0 {
		return fmt.Errorf("agent.check_interval must be positive")
	}
	if a.CacheMaxAge < 0 {
		return fmt.Errorf("agent.cache_max_age must not be negative")
	}
	mode, err := types.ParseMode(a.Mode)
	if err != nil {
		return fmt.Errorf("agent.mode: %w", err)
	}
	a.mode = mode

	if err := validateTimeSettings("agent.time_settings", a.TimeSettings); err != nil {
		return err
	}

	seen := make(map[string]bool, len(a.Hosts))
	for i, h := range a.Hosts {
		if h.Hostname == "" {
			return fmt.Errorf("hosts[%d]: hostname is required", i)
		}
		if seen[h.Hostname] {
			return fmt.Errorf("hosts[%d]: duplicate hostname %q", i, h.Hostname)
		}
		seen[h.Hostname] = true
		if err := validateTimeSettings(fmt.Sprintf("hosts[%d] %q: time_settings", i, h.Hostname), h.TimeSettings); err != nil {
			return err
		}
	}
	return nil
}

func validateTimeSettings(where string, settings []TimeSetting) error {
	for i, ts := range settings {
		switch ts.Setting {
		case types.SettingMaxCacheAge, types.SettingValidityPeriod:
			if ts.Threshold < 0 {
				return fmt.Errorf("%s[%d]: %s threshold must not be negative", where, i, ts.Setting)
			}
		case types.SettingValidityState:
			if !types.State(ts.Threshold).Valid() {
				return fmt.Errorf("%s[%d]: validity_state must be 0..3, got %d", where, i, ts.Threshold)
			}
		default:
			return fmt.Errorf("%s[%d]: unknown setting %q", where, i, ts.Setting)
		}
		if ts.OriginPattern != "" {
			if err := store.ValidPattern(ts.OriginPattern); err != nil {
				return fmt.Errorf("%s[%d]: %w", where, i, err)
			}
		}
	}
	return nil
}

// RunMode returns the parsed Mode. Only valid on a Config returned by Load.
func (a AgentConfig) RunMode() types.Mode {
	return a.mode
}

// Host returns the host entry named hostname.
func (a AgentConfig) Host(hostname string) (Host, bool) {
	for _, h := range a.Hosts {
		if h.Hostname == hostname {
			return h, true
		}
	}
	return Host{}, false
}

// TimeSettingsFor returns the global time settings followed by those of h,
// or nil when neither has any.
func (a AgentConfig) TimeSettingsFor(h Host) []types.TimeSetting {
	if len(a.TimeSettings)+len(h.TimeSettings) == 0 {
		return nil
	}
	out := make([]types.TimeSetting, 0, len(a.TimeSettings)+len(h.TimeSettings))
	for _, list := range [][]TimeSetting{a.TimeSettings, h.TimeSettings} {
		for _, ts := range list {
			out = append(out, types.TimeSetting{
				OriginPattern: ts.OriginPattern,
				Setting:       ts.Setting,
				Threshold:     ts.Threshold,
			})
		}
	}
	return out
}

// PayloadCache returns the output cache descriptor for hostname: a file
// under OutputDir/payload, or a disabled cache when OutputDir is empty.
func (a AgentConfig) PayloadCache(hostname string) filecache.FileCache {
	if a.OutputDir == "" {
		return filecache.NoCache("")
	}
	return filecache.FileCache{
		Path:   filepath.Join(a.OutputDir, "payload", hostname),
		MaxAge: a.CacheMaxAge,
	}
}

// TextfilePath returns where the metrics textfile is written, or "" when
// output is disabled.
func (a AgentConfig) TextfilePath() string {
	if a.OutputDir == "" || a.Textfile == "" {
		return ""
	}
	return filepath.Join(a.OutputDir, a.Textfile)
}

// FetcherConfig returns the fetcher identity of h. Empty lists are nil, as
// piggyback.DecodeFetcherConfig returns them.
func (a AgentConfig) FetcherConfig(h Host) piggyback.FetcherConfig {
	var nodes []string
	if len(h.ClusterNodes) > 0 {
		nodes = slices.Clone(h.ClusterNodes)
	}
	return piggyback.FetcherConfig{
		FileCache:    a.PayloadCache(h.Hostname),
		ClusterNodes: nodes,
		Hostname:     h.Hostname,
		Address:      h.Address,
		TimeSettings: a.TimeSettingsFor(h),
	}
}

// SummarizerConfig returns the summarizer parameters of h.
func (a AgentConfig) SummarizerConfig(h Host) piggyback.SummarizerConfig {
	return piggyback.SummarizerConfig{
		Hostname:         h.Hostname,
		Address:          h.Address,
		TimeSettings:     a.TimeSettingsFor(h),
		AlwaysExpectData: h.AlwaysExpectData,
	}
}
