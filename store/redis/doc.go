// Package redis implements store.Store on Redis for deployments without
// a relational database. Records are stored as msgpack blobs; due
// pending operations are indexed in a Sorted Set scored by RunAt, and
// claims use ZREM as the mutual-exclusion primitive: only the caller
// that removes an ID from the due set executes that invocation.
package redis
