package store

import (
	"time"

	"github.com/obsidianstack/piggyback/pkg/types"
)

// Defaults used when no time setting applies.
const (
	DefaultMaxCacheAge    = 3600 * time.Second
	DefaultValidityPeriod = time.Duration(0)
	DefaultValidityState  = types.StateOK
)

// fileSettings are the time settings in effect for one payload file.
type fileSettings struct {
	maxCacheAge    time.Duration
	validityPeriod time.Duration
	validityState  types.State
}

// resolve picks the value of every setting for the payload sent by source
// for piggybacked. A pattern matching the source host wins over one matching
// the piggybacked host, which wins over a global entry. Within one tier the
// last matching entry wins, so host settings appended after global ones
// override them.
func (m *matcher) resolve(settings []types.TimeSetting, source, piggybacked string) fileSettings {
	fs := fileSettings{
		maxCacheAge:    DefaultMaxCacheAge,
		validityPeriod: DefaultValidityPeriod,
		validityState:  DefaultValidityState,
	}
	apply := func(ts types.TimeSetting) {
		switch ts.Setting {
		case types.SettingMaxCacheAge:
			fs.maxCacheAge = time.Duration(ts.Threshold) * time.Second
		case types.SettingValidityPeriod:
			fs.validityPeriod = time.Duration(ts.Threshold) * time.Second
		case types.SettingValidityState:
			if st := types.State(ts.Threshold); st.Valid() {
				fs.validityState = st
			}
		}
	}

	// Lowest priority first: each later tier overwrites what it sets.
	for _, ts := range settings {
		if ts.OriginPattern == "" {
			apply(ts)
		}
	}
	for _, ts := range settings {
		if ts.OriginPattern != "" && m.match(ts.OriginPattern, piggybacked) {
			apply(ts)
		}
	}
	for _, ts := range settings {
		if ts.OriginPattern != "" && m.match(ts.OriginPattern, source) {
			apply(ts)
		}
	}
	return fs
}
