// Package order sorts records by attribute keys and concatenates sequences.
//
// Sorting is stable and multi-key. Explicit value lists put unlisted values
// last, and records missing a key sort after those that have it.
//
// Concat joins sequences lazily: each source is asked for its length only
// when an index beyond the known prefix is requested.
package order
