// Package bunstore implements store.Store on PostgreSQL via the Bun
// ORM. Claims use SELECT FOR UPDATE SKIP LOCKED so concurrent workers
// never execute the same operation invocation twice.
package bunstore
