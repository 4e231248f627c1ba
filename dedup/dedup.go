/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package dedup provides a bounded set of seen keys used to apply
// at-least-once deliveries exactly once.
package dedup

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the capacity used when New is given a non-positive size.
const DefaultSize = 1024

// Set remembers the most recently seen keys. Once full, the least recently
// seen key is forgotten. Safe for concurrent use.
type Set struct {
	cache *lru.Cache[string, struct{}]
}

// New creates a Set holding at most size keys.
func New(size int) (*Set, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("error creating dedup set: %w", err)
	}
	return &Set{cache: cache}, nil
}

// Seen marks key as seen and reports whether it had been seen before.
// Empty keys are never considered duplicates.
func (s *Set) Seen(key string) bool {
	if key == "" {
		return false
	}
	ok, _ := s.cache.ContainsOrAdd(key, struct{}{})
	return ok
}

// Contains reports whether key has been seen without marking it.
func (s *Set) Contains(key string) bool {
	return s.cache.Contains(key)
}

// Forget removes key so a later delivery is applied again.
func (s *Set) Forget(key string) {
	s.cache.Remove(key)
}

// Len returns the number of remembered keys.
func (s *Set) Len() int {
	return s.cache.Len()
}

// Reset forgets every key.
func (s *Set) Reset() {
	s.cache.Purge()
}
