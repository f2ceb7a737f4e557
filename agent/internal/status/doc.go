// Package status keeps the latest check cycle result of every host in
// memory, for the agent's status API. Entries not refreshed within the TTL
// are hidden from List and evicted by Run.
package status
