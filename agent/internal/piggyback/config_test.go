package piggyback

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/piggyback/agent/internal/filecache"
	"github.com/obsidianstack/piggyback/pkg/types"
)

func sampleConfig() FetcherConfig {
	return FetcherConfig{
		FileCache: filecache.FileCache{
			Path:   "/var/lib/piggyback/out/vm01",
			MaxAge: 90 * time.Second,
		},
		ClusterNodes: []string{"node-a", "node-b"},
		Hostname:     "vm01",
		Address:      "10.0.0.11",
		TimeSettings: []types.TimeSetting{
			{OriginPattern: "", Setting: types.SettingMaxCacheAge, Threshold: 3600},
			{OriginPattern: "hv-*", Setting: types.SettingValidityPeriod, Threshold: 120},
		},
	}
}

func TestFetcherConfig_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  FetcherConfig
	}{
		{"full", sampleConfig()},
		{"no address", func() FetcherConfig {
			c := sampleConfig()
			c.Address = ""
			return c
		}()},
		{"disabled cache, no lists", FetcherConfig{
			FileCache: filecache.NoCache("/tmp/x"),
			Hostname:  "vm02",
		}},
		{"sub-second cache age", func() FetcherConfig {
			c := sampleConfig()
			c.FileCache.MaxAge = 1500 * time.Millisecond
			return c
		}()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.cfg)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := DecodeFetcherConfig(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tc.cfg) {
				t.Errorf("round trip = %+v, want %+v", got, tc.cfg)
			}
		})
	}
}

func TestFetcherConfig_MarshalShape(t *testing.T) {
	cfg := FetcherConfig{FileCache: filecache.NoCache(""), Hostname: "vm01"}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"version":1`, `"cluster_nodes":[]`, `"time_settings":[]`, `"hostname":"vm01"`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded %s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"address"`) {
		t.Errorf("encoded %s carries an absent address", s)
	}
}

func TestDecodeFetcherConfig_EmptyListsAreNil(t *testing.T) {
	data, err := json.Marshal(FetcherConfig{
		FileCache:    filecache.NoCache(""),
		ClusterNodes: []string{},
		Hostname:     "vm01",
		TimeSettings: []types.TimeSetting{},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := DecodeFetcherConfig(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ClusterNodes != nil || got.TimeSettings != nil {
		t.Errorf("empty lists decoded as %#v / %#v, want nil", got.ClusterNodes, got.TimeSettings)
	}
	if f := NewFetcher(nil, FetcherConfig{ClusterNodes: []string{}}); f.Config().ClusterNodes != nil {
		t.Errorf("Config().ClusterNodes = %#v, want nil", f.Config().ClusterNodes)
	}
}

func TestFromJSON_OpensLikeOriginal(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{rec("hv1", "<<<a>>>\n", true, "", types.StateOK)}
	st.records["10.0.0.11"] = []types.Record{rec("hv2", "<<<b>>>\n", true, "", types.StateOK)}

	orig := NewFetcher(st, sampleConfig())
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	rebuilt, err := FromJSON(data, st)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	openRecorded := func(f *Fetcher) ([]string, []types.TimeSetting, string) {
		t.Helper()
		st.reset()
		out := openFetch(t, f)
		st.mu.Lock()
		settings := st.last
		st.mu.Unlock()
		return st.queried(), settings, out
	}
	wantOrigins, wantSettings, wantOut := openRecorded(orig)
	gotOrigins, gotSettings, gotOut := openRecorded(rebuilt)

	if !reflect.DeepEqual(gotOrigins, wantOrigins) {
		t.Errorf("queried origins = %q, want %q", gotOrigins, wantOrigins)
	}
	if !reflect.DeepEqual(gotSettings, wantSettings) {
		t.Errorf("settings = %+v, want %+v", gotSettings, wantSettings)
	}
	if gotOut != wantOut {
		t.Errorf("Fetch = %q, want %q", gotOut, wantOut)
	}
}

func TestFromJSON_NoStoreQuery(t *testing.T) {
	st := newFakeStore()
	orig := NewFetcher(st, sampleConfig())

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	f, err := FromJSON(data, st)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if n := len(st.queried()); n != 0 {
		t.Errorf("FromJSON made %d store queries, want 0", n)
	}
	if !reflect.DeepEqual(f.Config(), sampleConfig()) {
		t.Errorf("Config = %+v, want %+v", f.Config(), sampleConfig())
	}
	if _, err := f.Fetch(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("decoded fetcher should be idle, Fetch err = %v", err)
	}
}

func TestFetcherConfig_UnmarshalMethod(t *testing.T) {
	data, _ := json.Marshal(sampleConfig())
	var cfg FetcherConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cfg.Hostname != "vm01" || cfg.FileCache.MaxAge != 90*time.Second {
		t.Errorf("Unmarshal = %+v", cfg)
	}
}

func TestDecodeFetcherConfig_Errors(t *testing.T) {
	const fc = `{"path":"","max_age":"0s","disabled":true,"use_outdated":false,"simulation":false}`

	tests := []struct {
		name    string
		input   string
		wantErr string
		is      error
	}{
		{
			name:    "unknown field",
			input:   `{"version":1,"file_cache":` + fc + `,"cluster_nodes":[],"hostname":"h","time_settings":[],"extra":1}`,
			wantErr: "unknown field",
		},
		{
			name:  "future version",
			input: `{"version":2,"file_cache":` + fc + `,"cluster_nodes":[],"hostname":"h","time_settings":[]}`,
			is:    ErrUnsupportedVersion,
		},
		{
			name:    "missing version",
			input:   `{"file_cache":` + fc + `,"cluster_nodes":[],"hostname":"h","time_settings":[]}`,
			wantErr: "missing version",
		},
		{
			name:    "missing hostname",
			input:   `{"version":1,"file_cache":` + fc + `,"cluster_nodes":[],"time_settings":[]}`,
			wantErr: "missing hostname",
		},
		{
			name:    "missing file_cache",
			input:   `{"version":1,"cluster_nodes":[],"hostname":"h","time_settings":[]}`,
			wantErr: "missing file_cache",
		},
		{
			name:    "bad file_cache",
			input:   `{"version":1,"file_cache":{"bogus":true},"cluster_nodes":[],"hostname":"h","time_settings":[]}`,
			wantErr: "filecache: decode",
		},
		{
			name:    "trailing data",
			input:   `{"version":1,"file_cache":` + fc + `,"cluster_nodes":[],"hostname":"h","time_settings":[]} {}`,
			wantErr: "trailing data",
		},
		{
			name:    "not json",
			input:   `hostname=h`,
			wantErr: "decode fetcher config",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeFetcherConfig([]byte(tc.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Errorf("err = %v, want errors.Is %v", err, tc.is)
			}
			if tc.wantErr != "" && !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}
