// Command piggyback-dump prints the merged piggyback payload of one host.
//
// The payload goes to stdout and the summary to stderr; the exit code is the
// summary state (0 OK, 1 WARN, 2 CRIT, 3 UNKNOWN). With --serialize it prints
// the host's fetcher configuration instead, and with --cached the payload last
// written by the agent.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/piggyback/agent/internal/config"
	"github.com/obsidianstack/piggyback/agent/internal/cycle"
	"github.com/obsidianstack/piggyback/agent/internal/filecache"
	"github.com/obsidianstack/piggyback/agent/internal/logging"
	"github.com/obsidianstack/piggyback/agent/internal/piggyback"
	"github.com/obsidianstack/piggyback/agent/internal/store"
	"github.com/obsidianstack/piggyback/pkg/types"
)

const exitUnknown = int(types.StateUnknown)

func main() {
	code := exitUnknown
	rootCmd := newRootCmd(os.Stdout, os.Stderr, &code)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "piggyback-dump:", err)
		os.Exit(exitUnknown)
	}
	os.Exit(code)
}

func newRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "piggyback-dump --host HOSTNAME",
		Short:         "Print the merged piggyback payload of one monitored host",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			hostname, _ := cmd.Flags().GetString("host")
			serialize, _ := cmd.Flags().GetBool("serialize")
			cached, _ := cmd.Flags().GetBool("cached")
			logLevel, _ := cmd.Flags().GetString("log-level")

			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

			d := dumper{stdout: stdout, stderr: stderr, logger: logger}
			*code, err = d.run(cmd.Context(), configPath, hostname, serialize, cached)
			return err
		},
	}
	cmd.Flags().String("config", "config.yaml", "path to config file")
	cmd.Flags().String("host", "", "monitored host to dump")
	cmd.Flags().Bool("serialize", false, "print the fetcher configuration as JSON")
	cmd.Flags().Bool("cached", false, "print the payload from the agent's output cache")
	cmd.Flags().String("log-level", "warn", "log level: debug | info | warn | error")
	cmd.MarkFlagRequired("host") //nolint:errcheck
	cmd.MarkFlagsMutuallyExclusive("serialize", "cached")
	return cmd
}

type dumper struct {
	stdout, stderr io.Writer
	logger         *slog.Logger
}

// run returns the process exit code. A non-nil error always comes with
// exitUnknown.
func (d dumper) run(ctx context.Context, configPath, hostname string, serialize, cached bool) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return exitUnknown, err
	}
	h, ok := cfg.Agent.Host(hostname)
	if !ok {
		// Hosts outside the table can still be dumped with global settings.
		h = config.Host{Hostname: hostname}
	}

	st := store.New(cfg.Agent.PiggybackDir, store.WithLogger(d.logger))

	switch {
	case serialize:
		f := piggyback.NewFetcher(st, cfg.Agent.FetcherConfig(h))
		enc := json.NewEncoder(d.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(f); err != nil {
			return exitUnknown, err
		}
		return 0, nil

	case cached:
		data, ok, err := cfg.Agent.PayloadCache(hostname).Read(time.Now())
		if errors.Is(err, filecache.ErrDisabled) {
			return exitUnknown, errors.New("output cache disabled (agent.output_dir is empty)")
		}
		if err != nil {
			return exitUnknown, err
		}
		if !ok {
			return exitUnknown, fmt.Errorf("no valid cached payload for %q", hostname)
		}
		d.stdout.Write(data) //nolint:errcheck
		return 0, nil
	}

	// A dump must not replace what the agent cached.
	agent := cfg.Agent
	agent.OutputDir = ""
	res, err := cycle.NewRunner(st, agent, d.logger).Run(ctx, h)
	if err != nil {
		return exitUnknown, err
	}
	d.stdout.Write(res.Payload) //nolint:errcheck
	fmt.Fprintf(d.stderr, "%s - %s\n", res.Summary.State, res.Summary.Detail)
	return int(res.Summary.State), nil
}
