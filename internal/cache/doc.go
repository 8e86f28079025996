// Package cache provides a byte-bounded LRU for immutable values, such as
// component files read from byte chains.
//
// Cached bytes are optionally accounted against a resource.Controller so that
// resident pages and cached components share one memory limit.
package cache
