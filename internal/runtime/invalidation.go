package runtime

import "sort"

// The dependency index maps each evaluated node to the tags it read, and each
// tag back to its consumers. A change marks only the consumers of its tag
// dirty; everything else keeps its memoized evaluation.

// commitDeps replaces the recorded tags of nodeID.
func (e *Engine) commitDeps(nodeID string, t *Tracker) {
	tags := t.Tags()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, old := range e.deps[nodeID] {
		if set := e.consumers[old]; set != nil {
			delete(set, nodeID)
			if len(set) == 0 {
				delete(e.consumers, old)
			}
		}
	}
	e.deps[nodeID] = tags
	for _, tag := range tags {
		set := e.consumers[tag]
		if set == nil {
			set = make(map[string]struct{})
			e.consumers[tag] = set
		}
		set[nodeID] = struct{}{}
	}
}

// dropDeps forgets everything recorded for nodeID.
func (e *Engine) dropDeps(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, old := range e.deps[nodeID] {
		if set := e.consumers[old]; set != nil {
			delete(set, nodeID)
			if len(set) == 0 {
				delete(e.consumers, old)
			}
		}
	}
	delete(e.deps, nodeID)
	delete(e.dirty, nodeID)
}

// markLocked marks the consumers of tags dirty and returns them sorted.
// A dirty page scope cascades to every consumer of data. Caller holds mu.
func (e *Engine) markLocked(tags ...string) []string {
	set := make(map[string]struct{})
	for _, tag := range tags {
		for id := range e.consumers[tag] {
			set[id] = struct{}{}
		}
	}
	if _, ok := set[pageScopeID]; ok {
		for id := range e.consumers[tagData] {
			set[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		e.dirty[id] = struct{}{}
		if id != pageScopeID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// mark is markLocked for callers not holding mu.
func (e *Engine) mark(tags ...string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.markLocked(tags...)
}

func (e *Engine) isDirty(nodeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.dirty[nodeID]
	return ok
}

func (e *Engine) clearDirty(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.dirty, nodeID)
}

func (e *Engine) hasDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty) > 0
}
