//  _
// | |_ ___  ___ ___  ___ _ __ __ _
// | __/ _ \/ __/ __|/ _ \ '__/ _` |
// | ||  __/\__ \__ \  __/ | | (_| |
//  \__\___||___/___/\___|_|  \__,_|
//
//  Copyright © 2019 - 2026 Tessera Labs B.V. All rights reserved.
//
//  CONTACT: hello@tesseradb.io
//

package join

import (
	lru "github.com/hashicorp/golang-lru"
)

const defaultCacheSize = 1024

// Cache keeps join pre-results keyed by the sub-query fingerprint plus the
// right namespace's version, so a write to the right side naturally expires
// its cached pre-results.
type Cache struct {
	lru *lru.Cache
}

type cacheKey struct {
	fingerprint string
	nsVersion   int64
}

func NewCache() *Cache {
	c, _ := lru.New(defaultCacheSize)
	return &Cache{lru: c}
}

func (c *Cache) Get(fingerprint string, nsVersion int64) (*PreResult, bool) {
	v, ok := c.lru.Get(cacheKey{fingerprint, nsVersion})
	if !ok {
		return nil, false
	}
	return v.(*PreResult), true
}

func (c *Cache) Put(fingerprint string, nsVersion int64, pr *PreResult) {
	c.lru.Add(cacheKey{fingerprint, nsVersion}, pr)
}
