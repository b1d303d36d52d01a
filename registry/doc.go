// Package registry loads prompt definition files eagerly at startup and
// serves them from an in-memory index. The index is read-only after Load,
// so lookups need no locking. Malformed records are isolated: they are
// recorded as issues and skipped without failing the load.
package registry
