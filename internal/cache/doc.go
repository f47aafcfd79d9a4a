// Package cache provides a generic LRU cache.
//
//	c := cache.New[string, int](100)
//	c.Set("key", 42)
//	value, ok := c.Get("key")
//
// The shader compiler uses it to remember front-end verdicts keyed by a
// hash of the source, so re-sending an unchanged shader skips parsing.
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
