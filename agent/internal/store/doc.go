// Package store implements the piggyback store on a local directory tree.
//
// Source hosts deliver one payload file per piggybacked host:
//
//	<root>/piggyback/<piggybacked_host>/<source_host>
//	<root>/piggyback_sources/<source_host>
//
// The status file under piggyback_sources is rewritten on every delivery and
// lets Query tell a source that stopped sending data for a host apart from a
// source that stopped sending altogether.
package store
