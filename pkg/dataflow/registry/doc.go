// Package registry provides a generic thread-safe registry for values indexed
// by an ordered key.
//
// Registry is designed for read-heavy workloads using sync.RWMutex. Keys are
// ordered so listings and iteration are deterministic, which keeps anything
// derived from a registry (port population, document output, API listings)
// stable between runs.
//
// # Basic Usage
//
//	types := registry.New[string, NodeType]()
//	types.Register("string", stringType)
//
//	def, ok := types.Get("string")
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Range iterates over a
// snapshot, so fn may call Register or Delete without affecting the
// current iteration.
package registry
