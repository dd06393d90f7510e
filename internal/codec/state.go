package codec

import "strings"

// Guards is a set of once-only markers keyed by item id and lifecycle stage.
// Vendors repeat metadata across frames and occasionally re-announce items;
// guards make start/end/metadata emission idempotent.
//
// Guards belong to one decoder instance and are not safe for concurrent use.
type Guards struct {
	seen map[string]struct{}
}

// NewGuards returns an empty guard set.
func NewGuards() *Guards {
	return &Guards{seen: make(map[string]struct{})}
}

// MarkOnce records key and reports whether this call was the first. The
// second and later calls for the same key return false and must not emit.
func (g *Guards) MarkOnce(key string) bool {
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}

// Marked reports whether key has been recorded without recording it.
func (g *Guards) Marked(key string) bool {
	_, ok := g.seen[key]
	return ok
}

// ToolCallState accumulates the argument fragments of one open tool call.
type ToolCallState struct {
	Name string
	Args strings.Builder
}

// ToolCalls tracks open tool invocations for one request, keyed by call id,
// preserving open order for deterministic flushes.
type ToolCalls struct {
	byID  map[string]*ToolCallState
	order []string
}

// NewToolCalls returns an empty tracker.
func NewToolCalls() *ToolCalls {
	return &ToolCalls{byID: make(map[string]*ToolCallState)}
}

// Open registers a call id and returns its state plus whether it was newly
// opened. Re-opening an existing id returns the existing buffer.
func (t *ToolCalls) Open(id, name string) (*ToolCallState, bool) {
	if st, ok := t.byID[id]; ok {
		if name != "" && st.Name == "" {
			st.Name = name
		}
		return st, false
	}
	st := &ToolCallState{Name: name}
	t.byID[id] = st
	t.order = append(t.order, id)
	return st, true
}

// Get returns the state for id, or nil when the call is not open.
func (t *ToolCalls) Get(id string) *ToolCallState {
	return t.byID[id]
}

// Close removes the call and returns its accumulated state.
func (t *ToolCalls) Close(id string) *ToolCallState {
	st, ok := t.byID[id]
	if !ok {
		return nil
	}
	delete(t.byID, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return st
}

// OpenIDs returns the ids of still-open calls in open order.
func (t *ToolCalls) OpenIDs() []string {
	return append([]string(nil), t.order...)
}

// ItemIndex maps output positions to item ids. Item-based protocols reference
// an item by position in one frame and by id in the next; the decoder records
// the binding when the item is announced and resolves positions afterwards.
type ItemIndex struct {
	byPos map[int]string
}

// NewItemIndex returns an empty index.
func NewItemIndex() *ItemIndex {
	return &ItemIndex{byPos: make(map[int]string)}
}

// Bind records that position pos holds the item with the given id.
func (x *ItemIndex) Bind(pos int, id string) {
	x.byPos[pos] = id
}

// Lookup resolves a position to the item id observed there.
func (x *ItemIndex) Lookup(pos int) (string, bool) {
	id, ok := x.byPos[pos]
	return id, ok
}
