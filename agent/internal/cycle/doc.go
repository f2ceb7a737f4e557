// Package cycle runs one check cycle per monitored host: fetch the merged
// piggyback payload, summarize the same records, persist the payload to the
// host's output cache.
//
// A Runner is built from one loaded configuration and never changes; the
// agent builds a new Runner when the configuration is reloaded.
package cycle
