// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"maps"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StaticResolver resolves every request to the same options. Each request
// receives its own copy so later per-request tweaks cannot leak across
// invocations.
type StaticResolver struct {
	Options Options
}

// Resolve returns a copy of the configured options.
func (s *StaticResolver) Resolve(*Request) (*Options, error) {
	opts := s.Options
	opts.Metadata = maps.Clone(s.Options.Metadata)
	return &opts, nil
}

// CachingResolver memoizes another resolver's results in a fixed-size LRU
// keyed by service and method. Put it in front of resolvers that consult
// remote configuration or do expensive matching. Failures are not cached,
// so a resolver that recovers starts serving again on the next request.
type CachingResolver struct {
	next  OptionResolver
	cache *lru.Cache[string, *Options]
}

// NewCachingResolver wraps next with an LRU of the given size.
func NewCachingResolver(next OptionResolver, size int) (*CachingResolver, error) {
	c, err := lru.New[string, *Options](size)
	if err != nil {
		return nil, err
	}
	return &CachingResolver{next: next, cache: c}, nil
}

// Resolve returns the cached options for req's service and method, filling
// the cache from the wrapped resolver on a miss.
func (c *CachingResolver) Resolve(req *Request) (*Options, error) {
	key := req.wire()
	if opts, ok := c.cache.Get(key); ok {
		return opts, nil
	}
	opts, err := c.next.Resolve(req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, opts)
	return opts, nil
}

// Invalidate drops the cached entry for service and method, if present.
func (c *CachingResolver) Invalidate(service, method string) {
	c.cache.Remove((&Request{Service: service, Method: method}).wire())
}

// Purge drops every cached entry.
func (c *CachingResolver) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached entries.
func (c *CachingResolver) Len() int {
	return c.cache.Len()
}
