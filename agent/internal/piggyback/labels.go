package piggyback

import (
	"bytes"
	"encoding/json"

	"github.com/obsidianstack/piggyback/pkg/types"
)

// DefaultLabelNamespace prefixes the source labels unless overridden with
// WithLabelNamespace.
const DefaultLabelNamespace = "cmk"

// labelsHeader opens the host labels agent section. sep(0) tells the parser
// the body is one unsplit line.
const labelsHeader = "<<<labels:sep(0)>>>\n"

// LabelKey returns the host label naming source as a piggyback source.
func LabelKey(namespace, source string) string {
	if namespace == "" {
		return "piggyback_source_" + source
	}
	return namespace + "/piggyback_source_" + source
}

// SourceLabels maps every source host present in records to "yes".
// Membership tracks presence: records that were not processed still count.
// Source names must be valid UTF-8; the JSON encoding of the labels section
// replaces invalid bytes with U+FFFD.
func SourceLabels(namespace string, records []types.Record) map[string]string {
	labels := make(map[string]string, len(records))
	for _, rec := range records {
		labels[LabelKey(namespace, rec.SourceHostname)] = "yes"
	}
	return labels
}

// writeLabelsSection appends the labels section for records to buf. Nothing
// is written for an empty record list.
func writeLabelsSection(buf *bytes.Buffer, namespace string, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}
	buf.WriteString(labelsHeader)

	// Encode terminates the JSON body with the section's trailing newline.
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return enc.Encode(SourceLabels(namespace, records))
}
