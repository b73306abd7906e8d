package canvas

// ConflictResolver decides how an incoming element version combines with
// the currently held one. The store routes every element overwrite
// through this seam so the policy can later be replaced by a
// sequence-number or CRDT based merge without touching the broadcaster
// or the store itself.
type ConflictResolver interface {
	Resolve(current, incoming Element) Element
}

// LastWriterWins keeps whichever version arrived last at this receiver.
// No cross-peer ordering is coordinated; transient divergence between
// peers is accepted and converges on the next winning update.
type LastWriterWins struct{}

func (LastWriterWins) Resolve(_, incoming Element) Element {
	return incoming
}
