package bridge

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/chazu/objcbridge/objcrt"
)

// token identifies one proxy's registration in an intern table. It is
// separate from the proxy so that a cleanup can refer to it without keeping
// the proxy reachable.
type token struct {
	addr    objcrt.Address
	retired atomic.Bool
}

type internEntry[T any] struct {
	ptr weak.Pointer[T]
	tok *token
}

// internTable maps addresses to weakly held proxies. At most one entry
// exists per address; an entry whose proxy was collected is replaced on the
// next miss and removed by the old proxy's cleanup only if it still owns it.
type internTable[T any] struct {
	name    string
	mu      sync.RWMutex
	entries map[objcrt.Address]internEntry[T]
}

// intern returns the live proxy for addr, calling create on a miss. On a
// hit acquire is called with the lock held; if it reports false the proxy is
// being retired and the hit is treated as a miss. create runs under the
// write lock and must not call back into the table.
func (t *internTable[T]) intern(addr objcrt.Address, acquire func(*T) bool, create func() (*T, *token, error)) (p *T, created bool, err error) {
	t.mu.RLock()
	p = t.liveLocked(addr, acquire)
	t.mu.RUnlock()
	if p != nil {
		return p, false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p = t.liveLocked(addr, acquire); p != nil {
		return p, false, nil
	}
	p, tok, err := create()
	if err != nil {
		return nil, false, err
	}
	if t.entries == nil {
		t.entries = make(map[objcrt.Address]internEntry[T])
	}
	t.entries[addr] = internEntry[T]{ptr: weak.Make(p), tok: tok}
	return p, true, nil
}

func (t *internTable[T]) liveLocked(addr objcrt.Address, acquire func(*T) bool) *T {
	e, ok := t.entries[addr]
	if !ok {
		return nil
	}
	p := e.ptr.Value()
	if p == nil || (acquire != nil && !acquire(p)) {
		return nil
	}
	return p
}

// lookup returns the live proxy for addr without creating one.
func (t *internTable[T]) lookup(addr objcrt.Address) *T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.liveLocked(addr, nil)
}

// evict removes tok's entry if it is still the registered one.
func (t *internTable[T]) evict(tok *token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[tok.addr]
	if !ok || e.tok != tok {
		return false
	}
	delete(t.entries, tok.addr)
	return true
}

func (t *internTable[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// internValue interns a non-owning entity. Its entry is dropped when the
// proxy is collected.
func (t *internTable[T]) internValue(addr objcrt.Address, create func() *T) *T {
	tok := &token{addr: addr}
	p, created, _ := t.intern(addr, nil, func() (*T, *token, error) {
		return create(), tok, nil
	})
	if created {
		runtime.AddCleanup(p, t.drop, tok)
	}
	return p
}

func (t *internTable[T]) drop(tok *token) {
	t.evict(tok)
}
