// Package store and its subpackages provide persistence backends.
//
//   - store/memory — in-memory, for tests and development
//   - store/bun    — Postgres via the Bun ORM, for production
//   - store/redis  — Redis, for deployments without a relational database
package store
