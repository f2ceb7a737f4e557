package types

import (
	"fmt"
	"strings"
)

// State is a monitoring state code. The numeric values are part of the wire
// contract with the check engine and must not change.
type State int

// State values, ordered by severity.
const (
	StateOK      State = 0
	StateWarn    State = 1
	StateCrit    State = 2
	StateUnknown State = 3
)

// String returns the short upper-case name used in check output.
func (s State) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateWarn:
		return "WARN"
	case StateCrit:
		return "CRIT"
	case StateUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Valid reports whether s is one of the four defined states.
func (s State) Valid() bool {
	return s >= StateOK && s <= StateUnknown
}

// WorstOf returns the most severe of the given states, or StateOK when called
// with no arguments.
func WorstOf(states ...State) State {
	worst := StateOK
	for _, s := range states {
		if s > worst {
			worst = s
		}
	}
	return worst
}

// Mode identifies the pipeline phase a fetch or summary runs in.
type Mode int

// Pipeline phases. ModeNone is the zero value.
const (
	ModeNone Mode = iota
	ModeChecking
	ModeDiscovery
	ModeInventory
)

var modeNames = map[Mode]string{
	ModeNone:      "none",
	ModeChecking:  "checking",
	ModeDiscovery: "discovery",
	ModeInventory: "inventory",
}

// String returns the lower-case config name of m.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a config name (case-insensitive) into a Mode.
// The empty string parses as ModeNone.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return ModeNone, nil
	}
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return ModeNone, fmt.Errorf("unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("unknown mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so modes can be written
// by name in YAML and JSON.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Setting names understood by the bundled store.
const (
	SettingMaxCacheAge    = "max_cache_age"
	SettingValidityPeriod = "validity_period"
	SettingValidityState  = "validity_state"
)

// TimeSetting is one entry of the ordered rule list that governs how a store
// judges the freshness of piggyback data.
//
// OriginPattern restricts the entry to matching hosts; empty means the entry
// applies globally. Threshold is a number of seconds for the age settings and
// a State code for validity_state.
type TimeSetting struct {
	OriginPattern string `json:"origin_pattern,omitempty" yaml:"origin_pattern"`
	Setting       string `json:"setting" yaml:"setting"`
	Threshold     int    `json:"threshold" yaml:"threshold"`
}

// Record is one source host's current piggyback payload for a queried origin,
// together with the store's verdict on it.
type Record struct {
	// SourceHostname is the host that delivered the payload.
	SourceHostname string

	// RawData is the payload exactly as the source delivered it.
	RawData []byte

	// SuccessfullyProcessed gates inclusion of RawData in the merged payload.
	SuccessfullyProcessed bool

	// Reason is a human-readable explanation of the verdict. May be empty.
	Reason string

	// ReasonStatus is the severity attached to Reason.
	ReasonStatus State
}
