package library

import "sync"

// ChangeKind classifies a change event.
type ChangeKind string

const (
	ChangeLibrary  ChangeKind = "library"
	ChangeAsset    ChangeKind = "asset"
	ChangeFolder   ChangeKind = "folder"
	ChangePlaylist ChangeKind = "playlist"
	// ChangeExternal marks a modification made outside this process, e.g. by
	// the store's cloud replication. Observers should re-read anything they
	// cache.
	ChangeExternal ChangeKind = "external"
)

// Change describes one mutation of the metadata store. AssetID and LibraryID
// are zero when not applicable.
type Change struct {
	Kind      ChangeKind
	LibraryID int64
	AssetID   int64
}

// changeHub fans change events out to subscribers. Delivery is best-effort:
// a subscriber that falls behind drops events rather than blocking store
// mutations.
type changeHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Change
	closed bool
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[int]chan Change)}
}

func (h *changeHub) subscribe() (<-chan Change, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan Change)
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	ch := make(chan Change, 16)
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (h *changeHub) publish(change Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (h *changeHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
