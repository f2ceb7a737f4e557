package piggyback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/obsidianstack/piggyback/agent/internal/filecache"
	"github.com/obsidianstack/piggyback/agent/internal/logging"
	"github.com/obsidianstack/piggyback/pkg/types"
)

// ErrNotOpen is returned by Fetch outside an Open/Close bracket.
var ErrNotOpen = errors.New("piggyback: fetcher not open")

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateOpen
	stateClosed
)

func (l lifecycle) String() string {
	switch l {
	case stateIdle:
		return "idle"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	}
	return "invalid"
}

// Fetcher produces the merged piggyback payload of one monitored host.
//
// Open, Fetch and Close run sequentially; a Fetcher is not safe for
// concurrent use. The Store it borrows may be shared with other fetchers
// and summarizers.
type Fetcher struct {
	cfg            FetcherConfig
	store          Store
	logger         *slog.Logger
	labelNamespace string

	state   lifecycle
	sources []types.Record
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logging.Default(l) }
}

// WithLabelNamespace sets the prefix of the generated source labels.
func WithLabelNamespace(ns string) Option {
	return func(f *Fetcher) { f.labelNamespace = ns }
}

// NewFetcher returns an idle Fetcher for the identity in cfg. No store query
// is made until Open.
func NewFetcher(store Store, cfg FetcherConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:            cfg.clone(),
		store:          store,
		logger:         logging.Discard(),
		labelNamespace: DefaultLabelNamespace,
	}
	for _, o := range opts {
		o(f)
	}
	f.logger = f.logger.With("component", "piggyback", "hostname", cfg.Hostname)
	return f
}

// Config returns a copy of the fetcher's identity.
func (f *Fetcher) Config() FetcherConfig {
	return f.cfg.clone()
}

// FileCache returns the fetcher's cache descriptor.
func (f *Fetcher) FileCache() filecache.FileCache {
	return f.cfg.FileCache
}

// Open queries the store for the hostname and address origins and keeps
// every returned record, in origin order. Any previously held records are
// discarded first.
//
// Open only fails when the store reports a fault; the error is not retried.
func (f *Fetcher) Open(ctx context.Context) error {
	f.sources = nil

	sources, err := queryOrigins(ctx, f.store, Origins(f.cfg.Hostname, f.cfg.Address), f.cfg.TimeSettings)
	if err != nil {
		f.state = stateClosed
		return fmt.Errorf("piggyback: open %q: %w", f.cfg.Hostname, err)
	}
	f.sources = sources
	f.state = stateOpen

	f.logger.Debug("piggyback: opened", "address", f.cfg.Address, "sources", len(sources))
	return nil
}

// Fetch returns the raw payload of every successfully processed record in
// order, followed by the labels section when any record is held. The output
// is rebuilt on every call.
func (f *Fetcher) Fetch() ([]byte, error) {
	if f.state != stateOpen {
		return nil, fmt.Errorf("%w (state %s)", ErrNotOpen, f.state)
	}

	var buf bytes.Buffer
	for _, src := range f.sources {
		if src.SuccessfullyProcessed {
			buf.Write(src.RawData)
		}
	}
	if err := writeLabelsSection(&buf, f.labelNamespace, f.sources); err != nil {
		return nil, fmt.Errorf("piggyback: encode labels: %w", err)
	}
	return buf.Bytes(), nil
}

// Sources returns the records held since the last Open. The slice is a copy;
// the records themselves are shared and must not be modified.
func (f *Fetcher) Sources() []types.Record {
	return slices.Clone(f.sources)
}

// Close discards the held records. Calling Close again is a no-op.
func (f *Fetcher) Close() error {
	if f.state == stateOpen {
		f.logger.Debug("piggyback: closed", "sources", len(f.sources))
	}
	f.sources = nil
	if f.state != stateIdle {
		f.state = stateClosed
	}
	return nil
}
