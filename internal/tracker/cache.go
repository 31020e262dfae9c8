package tracker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

// boundedCache is an insertion-ordered bounded map: when full, the
// oldest-inserted entry is evicted first. Lookups do not refresh position.
// Not safe for concurrent use; owners lock around it.
type boundedCache[K comparable, V any] struct {
	capacity int
	entries  map[K]V
	order    []K
}

func newBoundedCache[K comparable, V any](capacity int) *boundedCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &boundedCache[K, V]{
		capacity: capacity,
		entries:  make(map[K]V, capacity),
	}
}

func (c *boundedCache[K, V]) get(key K) (V, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// put inserts or updates an entry and returns the value evicted to make room,
// if any.
func (c *boundedCache[K, V]) put(key K, value V) (evicted V, wasEvicted bool) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = value
		return evicted, false
	}
	if len(c.entries) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		evicted = c.entries[oldest]
		wasEvicted = true
		delete(c.entries, oldest)
	}
	c.entries[key] = value
	c.order = append(c.order, key)
	return evicted, wasEvicted
}

func (c *boundedCache[K, V]) delete(key K) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// deleteFunc removes every entry whose key matches the predicate.
func (c *boundedCache[K, V]) deleteFunc(match func(K) bool) {
	kept := c.order[:0]
	for _, k := range c.order {
		if match(k) {
			delete(c.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
}

func (c *boundedCache[K, V]) reset() {
	c.entries = make(map[K]V, c.capacity)
	c.order = nil
}

func (c *boundedCache[K, V]) len() int { return len(c.entries) }

type handleKey struct {
	nodeID    cdp.BackendNodeID
	contextID runtime.ExecutionContextID
}

// ObjectHandleCache maps (backend node id, execution context) to the remote
// object handle resolved for that pair, so repeated hit tests on the same
// node do not re-issue resolution calls. purgeGen increments on every purge
// so an in-flight resolution can tell its context may have died under it.
type ObjectHandleCache struct {
	mu       sync.Mutex
	cache    *boundedCache[handleKey, runtime.RemoteObjectID]
	purgeGen uint64
	release  func(runtime.RemoteObjectID)
}

func NewObjectHandleCache(capacity int) *ObjectHandleCache {
	return &ObjectHandleCache{cache: newBoundedCache[handleKey, runtime.RemoteObjectID](capacity)}
}

// SetReleaser installs the best-effort release hook invoked for handles
// evicted on capacity while their context is presumed alive. Handles purged
// because their context died are not released; they died with it.
func (c *ObjectHandleCache) SetReleaser(release func(runtime.RemoteObjectID)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release = release
}

// Resolve returns a cached handle or issues a DOM.resolveNode call, caching
// the result. When resolution fails because the context is gone, every entry
// for that context is purged and the context is dropped from the registry's
// pairs before the error is returned; the caller treats the node as
// currently unresolvable, never as fatal.
func (c *ObjectHandleCache) Resolve(ctx context.Context, sess Session, reg *FrameContextRegistry, nodeID cdp.BackendNodeID, contextID runtime.ExecutionContextID) (runtime.RemoteObjectID, error) {
	key := handleKey{nodeID: nodeID, contextID: contextID}

	c.mu.Lock()
	if objectID, ok := c.cache.get(key); ok {
		c.mu.Unlock()
		return objectID, nil
	}
	gen := c.purgeGen
	c.mu.Unlock()

	objectID, err := sess.ResolveNode(ctx, nodeID, contextID)
	if err != nil {
		if cdpcontrol.IsStaleContext(err) {
			c.DeleteContext(contextID)
			if reg != nil {
				reg.DropContext(contextID)
			}
			slog.Debug("tracker purged stale context", "context_id", contextID)
		}
		return "", err
	}

	c.mu.Lock()
	// A destroy event may have raced the resolution round-trip. Any purge
	// since the snapshot may have been this key's context, so the result is
	// handed back for one-shot use but never cached; an entry must not
	// outlive its context. No release here: the caller still holds the
	// handle, and its context is most likely already gone.
	if c.purgeGen != gen {
		c.mu.Unlock()
		return objectID, nil
	}
	evicted, wasEvicted := c.cache.put(key, objectID)
	release := c.release
	c.mu.Unlock()
	if wasEvicted && release != nil {
		release(evicted)
	}
	return objectID, nil
}

// DeleteContext purges every cached handle resolved in the given context.
func (c *ObjectHandleCache) DeleteContext(contextID runtime.ExecutionContextID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeGen++
	c.cache.deleteFunc(func(k handleKey) bool { return k.contextID == contextID })
}

// Len returns the number of cached handles.
func (c *ObjectHandleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.len()
}

// Reset drops all cached handles.
func (c *ObjectHandleCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeGen++
	c.cache.reset()
}

type infoKey struct {
	nodeID  cdp.BackendNodeID
	frameID cdp.FrameID
}

// elementInfoCache is the low-traffic read-through cache for fully parsed
// element descriptors, keyed independently of execution contexts so an entry
// survives context churn as long as the node's backend id is stable. Entries
// are invalidated one at a time when the hover moves off an element.
type elementInfoCache struct {
	mu    sync.Mutex
	cache *boundedCache[infoKey, *SelectedElement]
}

func newElementInfoCache(capacity int) *elementInfoCache {
	return &elementInfoCache{cache: newBoundedCache[infoKey, *SelectedElement](capacity)}
}

func (c *elementInfoCache) get(nodeID cdp.BackendNodeID, frameID cdp.FrameID) (*SelectedElement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.cache.get(infoKey{nodeID: nodeID, frameID: frameID})
	if !ok {
		return nil, false
	}
	copied := *el
	return &copied, true
}

func (c *elementInfoCache) put(el *SelectedElement) {
	if el == nil {
		return
	}
	copied := *el
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.put(infoKey{nodeID: el.BackendNodeID, frameID: el.FrameID}, &copied)
}

func (c *elementInfoCache) delete(nodeID cdp.BackendNodeID, frameID cdp.FrameID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.delete(infoKey{nodeID: nodeID, frameID: frameID})
}

func (c *elementInfoCache) deleteFrame(frameID cdp.FrameID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.deleteFunc(func(k infoKey) bool { return k.frameID == frameID })
}

func (c *elementInfoCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.reset()
}
