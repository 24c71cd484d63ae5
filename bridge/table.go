package bridge

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Mapping is a read-only ordered view of a class's members.
type Mapping[K comparable, V any] interface {
	Get(key K) (V, bool)
	Has(key K) bool
	Keys() []K
	Len() int
	// Each calls fn for every entry in order until fn returns false.
	Each(fn func(K, V) bool)
}

type ordered[K comparable, V any] struct {
	keys  []K
	index map[K]V
}

// lazyTable is a Mapping that enumerates its entries on first need.
// Single-key lookups use direct before the table has been materialized.
type lazyTable[K comparable, V any] struct {
	label  string
	load   func() ([]K, []V)
	direct func(K) (V, bool)

	data  atomic.Pointer[ordered[K, V]]
	group singleflight.Group
}

func (t *lazyTable[K, V]) materialize() *ordered[K, V] {
	if d := t.data.Load(); d != nil {
		return d
	}
	v, _, _ := t.group.Do("load", func() (any, error) {
		if d := t.data.Load(); d != nil {
			return d, nil
		}
		keys, vals := t.load()
		d := &ordered[K, V]{keys: make([]K, 0, len(keys)), index: make(map[K]V, len(keys))}
		for i, k := range keys {
			if _, dup := d.index[k]; dup {
				continue
			}
			d.keys = append(d.keys, k)
			d.index[k] = vals[i]
		}
		if !t.data.CompareAndSwap(nil, d) {
			return t.data.Load(), nil
		}
		log.Debugf("materialized %s (%d entries)", t.label, len(d.keys))
		return d, nil
	})
	return v.(*ordered[K, V])
}

func (t *lazyTable[K, V]) Get(key K) (V, bool) {
	if d := t.data.Load(); d != nil || t.direct == nil {
		d = t.materialize()
		v, ok := d.index[key]
		return v, ok
	}
	return t.direct(key)
}

func (t *lazyTable[K, V]) Has(key K) bool {
	_, ok := t.Get(key)
	return ok
}

func (t *lazyTable[K, V]) Keys() []K {
	d := t.materialize()
	return append([]K(nil), d.keys...)
}

func (t *lazyTable[K, V]) Len() int {
	return len(t.materialize().keys)
}

func (t *lazyTable[K, V]) Each(fn func(K, V) bool) {
	d := t.materialize()
	for _, k := range d.keys {
		if !fn(k, d.index[k]) {
			return
		}
	}
}

// materialized reports whether the full table has been loaded.
func (t *lazyTable[K, V]) materialized() bool {
	return t.data.Load() != nil
}

// ---------------------------------------------------------------------------
// Chains
// ---------------------------------------------------------------------------

// chain layers mappings nearest first. A key present in several links
// resolves to the first one; keys are listed once.
type chain[K comparable, V any] struct {
	links []Mapping[K, V]
}

func (c *chain[K, V]) Get(key K) (V, bool) {
	for _, l := range c.links {
		if v, ok := l.Get(key); ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (c *chain[K, V]) Has(key K) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *chain[K, V]) Keys() []K {
	seen := make(map[K]struct{})
	var keys []K
	for _, l := range c.links {
		for _, k := range l.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *chain[K, V]) Len() int {
	return len(c.Keys())
}

func (c *chain[K, V]) Each(fn func(K, V) bool) {
	for _, k := range c.Keys() {
		v, _ := c.Get(k)
		if !fn(k, v) {
			return
		}
	}
}
