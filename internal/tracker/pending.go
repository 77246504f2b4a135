package tracker

type pendingWrite[V any] struct {
	rev   int64
	value V
	done  bool
}

// pendingWrites tracks the newest optimistic write per key.
//
// An entry lives from begin until either its write fails, or a fetched
// snapshot shows a stored revision at least as new as the entry. Responses
// for revisions older than the entry are stale and change nothing.
type pendingWrites[K comparable, V any] struct {
	m map[K]pendingWrite[V]
}

func newPendingWrites[K comparable, V any]() pendingWrites[K, V] {
	return pendingWrites[K, V]{m: make(map[K]pendingWrite[V])}
}

func (p pendingWrites[K, V]) begin(key K, rev int64, value V) {
	p.m[key] = pendingWrite[V]{rev: rev, value: value}
}

// succeed marks the write acknowledged. It reports false for stale responses.
func (p pendingWrites[K, V]) succeed(key K, rev int64) bool {
	e, ok := p.m[key]
	if !ok || e.rev != rev {
		return false
	}
	e.done = true
	p.m[key] = e
	return true
}

// fail drops the write. It reports false for stale responses, in which case
// a newer write for the key is still in flight and decides its value.
func (p pendingWrites[K, V]) fail(key K, rev int64) bool {
	e, ok := p.m[key]
	if !ok || e.rev != rev {
		return false
	}
	delete(p.m, key)
	return true
}

// overlay returns the value to show on top of a snapshot whose stored
// revision for key is storedRev. Acknowledged writes the snapshot already
// reflects are dropped.
func (p pendingWrites[K, V]) overlay(key K, storedRev int64) (V, bool) {
	e, ok := p.m[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.done && storedRev >= e.rev {
		delete(p.m, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (p pendingWrites[K, V]) keys() []K {
	keys := make([]K, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	return keys
}

func (p pendingWrites[K, V]) dropWhere(match func(K) bool) {
	for k := range p.m {
		if match(k) {
			delete(p.m, k)
		}
	}
}
