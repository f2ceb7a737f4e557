// Package types defines the value types shared by the piggyback core, the
// bundled store and the agent binaries.
//
//   - State: monitoring state code (OK, WARN, CRIT, UNKNOWN)
//   - Mode: closed enumeration of pipeline phases (checking, discovery, ...)
//   - TimeSetting: one entry of the ordered freshness rule list
//   - Record: one source host's piggyback payload plus the store's verdict
//
// Records are produced by a store on each query and are never mutated
// afterwards; consumers may keep them for the duration of one check cycle.
package types
