package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/common/model"

	"github.com/obsidianstack/piggyback/agent/internal/filecache"
	"github.com/obsidianstack/piggyback/agent/internal/logging"
	"github.com/obsidianstack/piggyback/pkg/types"
)

const (
	payloadDir = "piggyback"
	statusDir  = "piggyback_sources"
)

// Store reads and writes piggyback data under a root directory.
// It is safe for concurrent use.
type Store struct {
	root    string
	logger  *slog.Logger
	matcher *matcher
	now     func() time.Time // injectable for deterministic tests
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = logging.Default(l) }
}

// WithClock replaces time.Now as the reference for file ages.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store rooted at root. The directory need not exist yet.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:    root,
		logger:  logging.Discard(),
		matcher: newMatcher(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "store")
	return s
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Query returns one record per source host that delivered a payload for
// origin, in lexical order of the source names. The empty origin, an origin
// that is not a plain name, and an origin nobody sends data for all yield an
// empty list.
func (s *Store) Query(ctx context.Context, origin string, settings []types.TimeSetting) ([]types.Record, error) {
	if !validName(origin) {
		return nil, nil
	}

	dir := filepath.Join(s.root, payloadDir, origin)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list %q: %w", origin, err)
	}

	now := s.now()
	var out []types.Record
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Temporary files start with a dot; names that are not valid UTF-8
		// cannot appear in the JSON labels section unchanged.
		if e.IsDir() || !validName(e.Name()) {
			continue
		}
		rec, ok, err := s.readRecord(dir, e.Name(), origin, settings, now)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// readRecord evaluates one payload file. ok is false when the file vanished
// after the directory was listed.
func (s *Store) readRecord(dir, source, piggybacked string, settings []types.TimeSetting, now time.Time) (types.Record, bool, error) {
	path := filepath.Join(dir, source)
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.Record{}, false, nil
	}
	if err != nil {
		return types.Record{}, false, fmt.Errorf("store: stat %q: %w", path, err)
	}

	rec := types.Record{SourceHostname: source}
	cfg := s.matcher.resolve(settings, source, piggybacked)
	age := now.Sub(fi.ModTime())

	if age >= cfg.maxCacheAge {
		rec.Reason = "Piggyback file too old: " + formatDuration(age-cfg.maxCacheAge)
		return rec, true, nil
	}

	status, err := os.Stat(filepath.Join(s.root, statusDir, source))
	if errors.Is(err, fs.ErrNotExist) {
		rec.Reason = fmt.Sprintf("Source '%s' not sending piggyback data", source)
		return rec, true, nil
	}
	if err != nil {
		return types.Record{}, false, fmt.Errorf("store: stat status of %q: %w", source, err)
	}

	if fi.ModTime().Before(status.ModTime()) {
		left := cfg.validityPeriod - age
		if cfg.validityPeriod <= 0 || left <= 0 {
			rec.Reason = fmt.Sprintf("Piggyback data not updated by source '%s'", source)
			return rec, true, nil
		}
		rec.Reason = fmt.Sprintf("Piggyback data not updated by source '%s' (still valid, %s left)",
			source, formatDuration(left))
		rec.ReasonStatus = cfg.validityState
	} else {
		rec.Reason = fmt.Sprintf("Successfully processed from source '%s'", source)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.Record{}, false, nil
	}
	if err != nil {
		return types.Record{}, false, fmt.Errorf("store: read %q: %w", path, err)
	}
	rec.RawData = data
	rec.SuccessfullyProcessed = true
	return rec, true, nil
}

// Put records a delivery from source: one payload per piggybacked host.
// The status file is rewritten first and every payload is stamped with its
// modification time, so payloads of hosts missing from this delivery become
// older than the status file. A delivery without payloads removes the
// status file.
func (s *Store) Put(source string, payloads map[string][]byte) error {
	if !validName(source) {
		return fmt.Errorf("store: invalid source name %q", source)
	}
	statusPath := filepath.Join(s.root, statusDir, source)

	if len(payloads) == 0 {
		if err := os.Remove(statusPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("store: remove status of %q: %w", source, err)
		}
		s.logger.Debug("store: source sent no piggyback data", "source", source)
		return nil
	}

	if err := filecache.WriteAtomic(statusPath, nil); err != nil {
		return fmt.Errorf("store: write status of %q: %w", source, err)
	}
	fi, err := os.Stat(statusPath)
	if err != nil {
		return fmt.Errorf("store: stat status of %q: %w", source, err)
	}
	stamp := fi.ModTime()

	for host, data := range payloads {
		if !validName(host) {
			return fmt.Errorf("store: invalid piggybacked host name %q", host)
		}
		path := filepath.Join(s.root, payloadDir, host, source)
		if err := filecache.WriteAtomic(path, data); err != nil {
			return fmt.Errorf("store: write payload %s->%s: %w", source, host, err)
		}
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			return fmt.Errorf("store: stamp payload %s->%s: %w", source, host, err)
		}
	}
	s.logger.Debug("store: stored piggyback data", "source", source, "hosts", len(payloads))
	return nil
}

// validName reports whether n is a valid UTF-8 host name usable as a single
// path element.
func validName(n string) bool {
	return n != "" && utf8.ValidString(n) && !strings.ContainsAny(n, `/\`) && !strings.HasPrefix(n, ".")
}

func formatDuration(d time.Duration) string {
	return model.Duration(d.Truncate(time.Second)).String()
}
