package canvas

// DefaultHistoryCapacity bounds the undo buffer.
const DefaultHistoryCapacity = 50

// history is a bounded linear undo buffer of full element-list
// snapshots. A new push after an undo truncates the forward entries.
type history struct {
	snapshots [][]Element
	cursor    int
	capacity  int
}

func newHistory(capacity int, initial []Element) *history {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &history{
		snapshots: [][]Element{CloneElements(initial)},
		cursor:    0,
		capacity:  capacity,
	}
}

func (h *history) push(snap []Element) {
	// drop redo entries
	h.snapshots = h.snapshots[:h.cursor+1]
	h.snapshots = append(h.snapshots, CloneElements(snap))
	if len(h.snapshots) > h.capacity {
		evict := len(h.snapshots) - h.capacity
		h.snapshots = h.snapshots[evict:]
	}
	h.cursor = len(h.snapshots) - 1
}

func (h *history) undo() ([]Element, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	h.cursor--
	return CloneElements(h.snapshots[h.cursor]), true
}

func (h *history) redo() ([]Element, bool) {
	if h.cursor >= len(h.snapshots)-1 {
		return nil, false
	}
	h.cursor++
	return CloneElements(h.snapshots[h.cursor]), true
}

func (h *history) len() int {
	return len(h.snapshots)
}

// reset reseeds the buffer around a new baseline, discarding all entries.
func (h *history) reset(baseline []Element) {
	h.snapshots = [][]Element{CloneElements(baseline)}
	h.cursor = 0
}
