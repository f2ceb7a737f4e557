// Package piggyback turns the per-origin records of a piggyback store into
// the merged agent payload of a monitored host and into the status summary
// shown while actively checking it.
//
// store.go defines the Store contract and the origin resolution shared by
// both consumers: the hostname origin is always queried before the address
// origin, and results are merged in that order regardless of which query
// finishes first.
//
// fetcher.go provides the Fetcher with its Open → Fetch → Close lifecycle.
// Fetch concatenates the raw payload of every successfully processed record
// and appends a <<<labels:sep(0)>>> section naming every source, processed or
// not. config.go serializes a Fetcher's identity (never its fetched state)
// into a versioned JSON document.
//
// summarizer.go provides the Summarizer, which re-queries the store and
// reduces the records to the worst reported state plus the joined reasons.
package piggyback
