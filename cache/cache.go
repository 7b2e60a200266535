// Package cache implements in-memory key/value caches with a common
// get/put/remove/clear/stats contract and three eviction policies (Clock,
// LRU, and CART) layered on top.
//
// Get/Put/Remove/Clear/Stats are synchronous: cache bookkeeping is pure
// CPU work with no I/O to block on, so there is nothing for a Task to
// usefully await. This mirrors how Go's in-memory cache libraries
// (groupcache, golang-lru) expose themselves.
package cache

import (
	"fmt"

	"github.com/joeycumines/go-reactor/result"
)

// Stats reports a cache's current occupancy.
type Stats struct {
	NumItems int
	NumBytes int
}

// Type selects an eviction policy.
type Type uint8

const (
	TypeClock Type = iota
	TypeLRU
	TypeCART
	// TypeBestAvailable lets New pick the policy it considers the best
	// general-purpose default (currently CART).
	TypeBestAvailable Type = 255
)

func (t Type) String() string {
	switch t {
	case TypeClock:
		return "clock"
	case TypeLRU:
		return "lru"
	case TypeCART:
		return "cart"
	case TypeBestAvailable:
		return "best_available"
	default:
		return fmt.Sprintf("cache.Type(%d)", uint8(t))
	}
}

// ParseType parses the strings produced by Type.String back into a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "clock":
		return TypeClock, nil
	case "lru":
		return TypeLRU, nil
	case "cart":
		return TypeCART, nil
	case "best_available":
		return TypeBestAvailable, nil
	default:
		return 0, fmt.Errorf("cache: unknown Type %q", s)
	}
}

// Options configures a cache constructed via New.
type Options struct {
	Type     Type
	MaxItems int
	MaxBytes int
}

// Cache is the contract shared by Clock, LRU, and CART.
type Cache interface {
	// Get returns the value stored under key, and whether it was found.
	// A hit counts as a touch for the purposes of the eviction policy.
	// Ghost entries (CART's B1/B2) are never returned.
	Get(key string) (string, bool)
	// Put inserts or overwrites the value stored under key, evicting
	// other entries as needed to stay within the configured limits. An
	// item larger than the byte limit fails with OUT_OF_RANGE.
	Put(key, value string) result.Result
	// Remove deletes key if present, reporting whether it was found.
	Remove(key string) bool
	// Clear empties the cache.
	Clear()
	// Stats reports current occupancy.
	Stats() Stats
	// Visualize renders the cache's internal state as a human-readable
	// string. Intended for debugging and tests, not production logging.
	Visualize() string
}

// New constructs a Cache per o. MaxItems and MaxBytes of zero are treated as
// unbounded in that dimension; at least one of them must be positive.
// CART (TypeCART and TypeBestAvailable) additionally requires MaxItems > 0
// and panics otherwise.
func New(o Options) Cache {
	switch o.Type {
	case TypeClock:
		return newClock(o)
	case TypeLRU:
		return newLRU(o)
	case TypeCART, TypeBestAvailable:
		return newCART(o)
	default:
		panic(fmt.Sprintf("cache: unknown Type %v", o.Type))
	}
}
