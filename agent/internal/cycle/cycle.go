package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/obsidianstack/piggyback/agent/internal/config"
	"github.com/obsidianstack/piggyback/agent/internal/logging"
	"github.com/obsidianstack/piggyback/agent/internal/piggyback"
	"github.com/obsidianstack/piggyback/pkg/types"
)

// Result is the outcome of one host's cycle.
type Result struct {
	Hostname string
	Payload  []byte
	Summary  piggyback.Summary
	Sources  []types.Record

	// Err is set when the store failed; Summary is then UNKNOWN.
	Err error
}

// Runner executes check cycles against a shared store.
type Runner struct {
	store  piggyback.Store
	agent  config.AgentConfig
	logger *slog.Logger
}

// NewRunner returns a Runner for the hosts and settings in agent.
func NewRunner(store piggyback.Store, agent config.AgentConfig, logger *slog.Logger) *Runner {
	return &Runner{
		store:  store,
		agent:  agent,
		logger: logging.Default(logger).With("component", "cycle"),
	}
}

// Hosts returns the configured host table.
func (r *Runner) Hosts() []config.Host {
	return r.agent.Hosts
}

// Run processes one host. The fetcher is always closed before Run returns.
// The summary is computed from the records the fetcher opened with, so
// payload and summary describe the same store snapshot.
func (r *Runner) Run(ctx context.Context, h config.Host) (Result, error) {
	res := Result{Hostname: h.Hostname}

	f := piggyback.NewFetcher(r.store, r.agent.FetcherConfig(h),
		piggyback.WithLogger(r.logger),
		piggyback.WithLabelNamespace(r.agent.LabelNamespace),
	)
	if err := f.Open(ctx); err != nil {
		return res, fmt.Errorf("cycle: %w", err)
	}
	defer f.Close()

	payload, err := f.Fetch()
	if err != nil {
		return res, fmt.Errorf("cycle: fetch %q: %w", h.Hostname, err)
	}
	res.Payload = payload
	res.Sources = f.Sources()

	sum := piggyback.NewSummarizer(r.store, r.agent.SummarizerConfig(h))
	res.Summary = sum.SummarizeRecords(r.agent.RunMode(), res.Sources)

	if cache := f.FileCache(); !cache.Disabled {
		if err := cache.Write(payload); err != nil {
			r.logger.Warn("cycle: payload cache write failed", "hostname", h.Hostname, "err", err)
		}
	}
	return res, nil
}

// RunAll processes hosts in order. A store fault on one host is reported as
// an UNKNOWN summary carrying the error text and does not stop the cycle.
// Hosts not yet processed when ctx is cancelled are left out.
func (r *Runner) RunAll(ctx context.Context, hosts []config.Host) []Result {
	start := time.Now()
	out := make([]Result, 0, len(hosts))
	var failed int
	for _, h := range hosts {
		if ctx.Err() != nil {
			break
		}
		res, err := r.Run(ctx, h)
		if err != nil {
			failed++
			r.logger.Error("cycle: host failed", "hostname", h.Hostname, "err", err)
			res.Err = err
			res.Summary = piggyback.Summary{State: types.StateUnknown, Detail: err.Error()}
		}
		out = append(out, res)
	}
	r.logger.Info("cycle: done",
		"hosts", len(out),
		"failed", failed,
		"duration", time.Since(start),
	)
	return out
}
