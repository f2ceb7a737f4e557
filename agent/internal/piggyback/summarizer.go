package piggyback

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/obsidianstack/piggyback/pkg/types"
)

// MissingDataDetail is reported when data is expected but no source has any.
const MissingDataDetail = "Missing data"

// Summary is the state and detail text reported for the piggyback data
// source of a host during a check cycle.
type Summary struct {
	State  types.State
	Detail string
}

// SummarizerConfig holds the parameters of a Summarizer.
type SummarizerConfig struct {
	Hostname     string
	Address      string
	TimeSettings []types.TimeSetting

	// AlwaysExpectData turns an empty record list into WARN instead of OK.
	AlwaysExpectData bool
}

// Summarizer reports the state of a host's piggyback data. It holds no
// per-cycle state and reads the store directly on each Summarize call.
type Summarizer struct {
	cfg   SummarizerConfig
	store Store
}

// NewSummarizer returns a Summarizer reading from store.
func NewSummarizer(store Store, cfg SummarizerConfig) *Summarizer {
	cfg.TimeSettings = slices.Clone(cfg.TimeSettings)
	return &Summarizer{cfg: cfg, store: store}
}

// Summarize queries the hostname and address origins and summarizes the
// records found. Outside checking mode it returns an OK summary without
// touching the store.
func (s *Summarizer) Summarize(ctx context.Context, mode types.Mode) (Summary, error) {
	if mode != types.ModeChecking {
		return Summary{}, nil
	}
	records, err := queryOrigins(ctx, s.store, Origins(s.cfg.Hostname, s.cfg.Address), s.cfg.TimeSettings)
	if err != nil {
		return Summary{}, fmt.Errorf("piggyback: summarize %q: %w", s.cfg.Hostname, err)
	}
	return s.SummarizeRecords(mode, records), nil
}

// SummarizeRecords summarizes an already fetched record list, typically the
// Sources of a Fetcher opened in the same cycle.
//
// The state is the worst ReasonStatus reported and the detail joins every
// non-empty reason in record order. No records yield WARN "Missing data"
// when data is always expected, OK otherwise.
func (s *Summarizer) SummarizeRecords(mode types.Mode, records []types.Record) Summary {
	if mode != types.ModeChecking {
		return Summary{}
	}
	if len(records) == 0 {
		if s.cfg.AlwaysExpectData {
			return Summary{State: types.StateWarn, Detail: MissingDataDetail}
		}
		return Summary{}
	}

	worst := types.StateOK
	reasons := make([]string, 0, len(records))
	for _, rec := range records {
		worst = types.WorstOf(worst, rec.ReasonStatus)
		if rec.Reason != "" {
			reasons = append(reasons, rec.Reason)
		}
	}
	return Summary{State: worst, Detail: strings.Join(reasons, ", ")}
}

// String describes the summarizer for log output.
func (s *Summarizer) String() string {
	return fmt.Sprintf("Summarizer(hostname=%q, address=%q, time_settings=%d, always=%t)",
		s.cfg.Hostname, s.cfg.Address, len(s.cfg.TimeSettings), s.cfg.AlwaysExpectData)
}
