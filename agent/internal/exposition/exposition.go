// Package exposition renders check cycle results as a Prometheus text
// exposition file, for a node exporter textfile collector to pick up.
package exposition

import (
	"bytes"
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/piggyback/agent/internal/cycle"
	"github.com/obsidianstack/piggyback/agent/internal/filecache"
	"github.com/obsidianstack/piggyback/pkg/types"
)

// Metric names.
const (
	HostState         = "piggyback_host_state"
	HostSources       = "piggyback_host_sources"
	HostPayloadBytes  = "piggyback_host_payload_bytes"
	SourceProcessed   = "piggyback_source_processed"
	SourceReasonState = "piggyback_source_reason_state"
)

// Families converts results into metric families, in a fixed order.
func Families(results []cycle.Result) []*dto.MetricFamily {
	state := gaugeFamily(HostState, "Piggyback summary state of the host (0 OK, 1 WARN, 2 CRIT, 3 UNKNOWN).")
	sources := gaugeFamily(HostSources, "Number of piggyback source records found for the host.")
	size := gaugeFamily(HostPayloadBytes, "Size of the merged piggyback payload in bytes.")
	processed := gaugeFamily(SourceProcessed, "Whether the source's piggyback data was used (1) or discarded (0).")
	reason := gaugeFamily(SourceReasonState, "State attached to the source's piggyback record.")

	for _, res := range results {
		host := []*dto.LabelPair{label("host", res.Hostname)}
		state.Metric = append(state.Metric, gauge(host, float64(res.Summary.State)))
		sources.Metric = append(sources.Metric, gauge(host, float64(len(res.Sources))))
		size.Metric = append(size.Metric, gauge(host, float64(len(res.Payload))))

		for _, src := range mergeSources(res.Sources) {
			labels := []*dto.LabelPair{label("host", res.Hostname), label("source", src.name)}
			processed.Metric = append(processed.Metric, gauge(labels, boolValue(src.processed)))
			reason.Metric = append(reason.Metric, gauge(labels, float64(src.state)))
		}
	}
	return []*dto.MetricFamily{state, sources, size, processed, reason}
}

// Write renders results in the text exposition format.
func Write(w io.Writer, results []cycle.Result) error {
	for _, mf := range Families(results) {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("exposition: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile renders results and atomically replaces the file at path, so a
// collector never reads a partial file.
func WriteFile(path string, results []cycle.Result) error {
	var buf bytes.Buffer
	if err := Write(&buf, results); err != nil {
		return err
	}
	if err := filecache.WriteAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("exposition: %w", err)
	}
	return nil
}

type sourceSample struct {
	name      string
	processed bool
	state     types.State
}

// mergeSources folds records of the same source host, which occur when it
// sends data for both the hostname and the address, into one sample.
func mergeSources(records []types.Record) []sourceSample {
	var out []sourceSample
	index := make(map[string]int, len(records))
	for _, rec := range records {
		i, ok := index[rec.SourceHostname]
		if !ok {
			index[rec.SourceHostname] = len(out)
			out = append(out, sourceSample{
				name:      rec.SourceHostname,
				processed: rec.SuccessfullyProcessed,
				state:     rec.ReasonStatus,
			})
			continue
		}
		out[i].processed = out[i].processed || rec.SuccessfullyProcessed
		out[i].state = types.WorstOf(out[i].state, rec.ReasonStatus)
	}
	return out
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(labels []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
