package canvas

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Store is the reconciliation layer for one element collection. Local
// mutations (the user acting here) and remote mutations (a peer's
// broadcast) flow through the same internal primitives, but only local
// ones append to the undo history — a local undo must never revert
// another participant's edit.
//
// The server runs one Store per room as the authoritative live state;
// the remote entry points are what the socket layer calls.
type Store struct {
	mu        sync.RWMutex
	elements  []Element // insertion order; breaks zIndex ties when painting
	settings  Settings
	selection map[string]struct{}
	resolver  ConflictResolver
	hist      *history
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithHistoryCapacity overrides the undo buffer bound.
func WithHistoryCapacity(n int) StoreOption {
	return func(s *Store) { s.hist = newHistory(n, nil) }
}

// WithResolver overrides the conflict policy.
func WithResolver(r ConflictResolver) StoreOption {
	return func(s *Store) { s.resolver = r }
}

// NewStore creates an empty store with default settings.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		settings:  DefaultSettings(),
		selection: make(map[string]struct{}),
		resolver:  LastWriterWins{},
		hist:      newHistory(DefaultHistoryCapacity, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadDocument replaces the whole live state, resetting history around
// the loaded baseline. Used on session start.
func (s *Store) LoadDocument(els []Element, settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = CloneElements(els)
	s.settings = settings
	s.selection = make(map[string]struct{})
	s.hist.reset(s.elements)
}

// ---------------------------------------------------------------------
// internal mutation primitives (callers hold s.mu)
// ---------------------------------------------------------------------

func (s *Store) applyAdd(el Element) Element {
	el = el.Clone()
	if el.ZIndex == nil {
		el.ZIndex = lo.ToPtr(len(s.elements))
	}
	// duplicate id: the new version wins, position preserved
	if i := s.indexOf(el.ID); i >= 0 {
		s.elements[i] = s.resolver.Resolve(s.elements[i], el)
		return s.elements[i].Clone()
	}
	s.elements = append(s.elements, el)
	return el.Clone()
}

func (s *Store) applyUpdate(el Element) (Element, bool) {
	i := s.indexOf(el.ID)
	if i < 0 {
		// unknown id: a racing delete already won, degrade gracefully
		return Element{}, false
	}
	resolved := s.resolver.Resolve(s.elements[i], el.Clone())
	if resolved.ZIndex == nil {
		resolved.ZIndex = s.elements[i].ZIndex
	}
	s.elements[i] = resolved
	return resolved.Clone(), true
}

func (s *Store) applyDelete(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.elements = append(s.elements[:i], s.elements[i+1:]...)
	delete(s.selection, id)
	return true
}

func (s *Store) applyBulkReplace(els []Element) []Element {
	s.elements = CloneElements(els)
	for i := range s.elements {
		if s.elements[i].ZIndex == nil {
			s.elements[i].ZIndex = lo.ToPtr(i)
		}
	}
	live := lo.SliceToMap(s.elements, func(el Element) (string, struct{}) {
		return el.ID, struct{}{}
	})
	for id := range s.selection {
		if _, ok := live[id]; !ok {
			delete(s.selection, id)
		}
	}
	return CloneElements(s.elements)
}

func (s *Store) applySettings(p SettingsPatch) Settings {
	s.settings = s.settings.Apply(p)
	return s.settings
}

func (s *Store) indexOf(id string) int {
	for i := range s.elements {
		if s.elements[i].ID == id {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------
// local mutations: apply + history append
// ---------------------------------------------------------------------

// ApplyLocalAdd appends an element created here. A nil zIndex defaults
// to the current collection length. Returns the normalized element for
// broadcasting.
func (s *Store) ApplyLocalAdd(el Element) Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.applyAdd(el)
	s.hist.push(s.elements)
	return out
}

// ApplyLocalUpdate replaces the element with the given id by its full
// post-mutation state. Unknown ids are a no-op and do not dirty history.
func (s *Store) ApplyLocalUpdate(el Element) (Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.applyUpdate(el)
	if ok {
		s.hist.push(s.elements)
	}
	return out, ok
}

// ApplyLocalDelete removes an element and prunes it from the selection.
func (s *Store) ApplyLocalDelete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.applyDelete(id)
	if ok {
		s.hist.push(s.elements)
	}
	return ok
}

// ApplyLocalBulkReplace swaps the entire collection in one history step.
func (s *Store) ApplyLocalBulkReplace(els []Element) []Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.applyBulkReplace(els)
	s.hist.push(s.elements)
	return out
}

// ApplyLocalSettings merges a settings patch. Settings are not part of
// the element history.
func (s *Store) ApplyLocalSettings(p SettingsPatch) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applySettings(p)
}

// DeleteSelected removes every selected element as one history step and
// returns the deleted ids.
func (s *Store) DeleteSelected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selection) == 0 {
		return nil
	}
	ids := lo.Keys(s.selection)
	sort.Strings(ids)
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		if s.applyDelete(id) {
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		s.hist.push(s.elements)
	}
	return removed
}

// BringToFront assigns max(existing)+1 to the element's zIndex.
func (s *Store) BringToFront(id string) (Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Element{}, false
	}
	s.elements[i].ZIndex = lo.ToPtr(s.maxZ() + 1)
	s.hist.push(s.elements)
	return s.elements[i].Clone(), true
}

// SendToBack assigns min(existing)-1 to the element's zIndex.
func (s *Store) SendToBack(id string) (Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Element{}, false
	}
	s.elements[i].ZIndex = lo.ToPtr(s.minZ() - 1)
	s.hist.push(s.elements)
	return s.elements[i].Clone(), true
}

func (s *Store) maxZ() int {
	if len(s.elements) == 0 {
		return -1 // degrades to zIndex 0 baseline
	}
	max := s.elements[0].Z()
	for i := range s.elements[1:] {
		if z := s.elements[i+1].Z(); z > max {
			max = z
		}
	}
	return max
}

func (s *Store) minZ() int {
	if len(s.elements) == 0 {
		return 1
	}
	min := s.elements[0].Z()
	for i := range s.elements[1:] {
		if z := s.elements[i+1].Z(); z < min {
			min = z
		}
	}
	return min
}

// ---------------------------------------------------------------------
// remote mutations: same primitives, no history append
// ---------------------------------------------------------------------

// ApplyRemoteAdd applies a peer's element-add without touching history
// and without re-emitting an outbound event.
func (s *Store) ApplyRemoteAdd(el Element) Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyAdd(el)
}

// ApplyRemoteUpdate applies a peer's full post-mutation element state.
// Unknown ids are absorbed as a no-op.
func (s *Store) ApplyRemoteUpdate(el Element) (Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyUpdate(el)
}

// ApplyRemoteDelete applies a peer's delete.
func (s *Store) ApplyRemoteDelete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyDelete(id)
}

// ApplyRemoteBulkReplace applies a peer's full-collection replacement.
func (s *Store) ApplyRemoteBulkReplace(els []Element) []Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyBulkReplace(els)
}

// ApplyRemoteSettings applies a peer's settings patch.
func (s *Store) ApplyRemoteSettings(p SettingsPatch) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applySettings(p)
}

// ---------------------------------------------------------------------
// history
// ---------------------------------------------------------------------

// Undo steps the history cursor back and replaces the live collection
// with that snapshot. No-op at the lower bound.
func (s *Store) Undo() ([]Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.hist.undo()
	if !ok {
		return nil, false
	}
	s.elements = snap
	return CloneElements(s.elements), true
}

// Redo steps the cursor forward. No-op at the upper bound.
func (s *Store) Redo() ([]Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.hist.redo()
	if !ok {
		return nil, false
	}
	s.elements = snap
	return CloneElements(s.elements), true
}

// HistoryLen reports the number of snapshots currently buffered.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hist.len()
}

// ---------------------------------------------------------------------
// reads & selection
// ---------------------------------------------------------------------

// Elements returns a deep copy of the collection in insertion order.
func (s *Store) Elements() []Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneElements(s.elements)
}

// ElementsByZ returns the collection in paint order: ascending zIndex,
// ties broken by insertion order.
func (s *Store) ElementsByZ() []Element {
	s.mu.RLock()
	out := CloneElements(s.elements)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Z() < out[j].Z()
	})
	return out
}

// Get returns a copy of the element with the given id.
func (s *Store) Get(id string) (Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.elements[i].Clone(), true
	}
	return Element{}, false
}

// Len reports the element count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// Settings returns the current canvas settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Select replaces the active selection set.
func (s *Store) Select(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.selection[id] = struct{}{}
	}
}

// Selection returns the selected ids in sorted order.
func (s *Store) Selection() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := lo.Keys(s.selection)
	sort.Strings(ids)
	return ids
}
