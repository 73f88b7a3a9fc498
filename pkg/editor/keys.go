package editor

import (
	"strings"
	"sync"
)

// Key is a keyboard event as delivered by the host
type Key struct {
	// Name is the key value, e.g. "Delete", "Escape", "z"
	Name  string
	Ctrl  bool
	Meta  bool
	Shift bool
}

// Key names handled by the editor
const (
	KeyDelete    = "Delete"
	KeyBackspace = "Backspace"
	KeyEscape    = "Escape"
)

func (k Key) command() bool {
	return k.Ctrl || k.Meta
}

func (k Key) is(name string) bool {
	return strings.EqualFold(k.Name, name)
}

// HandleKey applies one keyboard event and reports whether it was consumed
func (e *Editor) HandleKey(k Key) bool {
	switch {
	case k.is(KeyDelete), k.is(KeyBackspace):
		return e.DeleteSelected()

	case k.is(KeyEscape):
		if e.cancelDraft() {
			return true
		}
		if e.onClose != nil {
			e.onClose()
		}
		return true

	case k.command() && k.is("z") && k.Shift:
		return e.Redo()
	case k.command() && k.is("z"):
		return e.Undo()
	case k.command() && k.is("y"):
		return e.Redo()

	case k.command():
		return false

	case k.is("n"):
		if e.onNext != nil {
			e.onNext()
		}
		return true
	case k.is("p"):
		if e.onPrevious != nil {
			e.onPrevious()
		}
		return true
	}
	return false
}

// Mount subscribes the editor to a key bus. Close the subscription when the
// editor is torn down.
func (e *Editor) Mount(bus *KeyBus) *Subscription {
	return bus.Subscribe(e.HandleKey)
}

// KeyBus fans keyboard events out to subscribed handlers
type KeyBus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []keyHandler
}

type keyHandler struct {
	id uint64
	fn func(Key) bool
}

// NewKeyBus creates an empty bus
func NewKeyBus() *KeyBus {
	return &KeyBus{}
}

// Subscribe registers fn for every dispatched key
func (b *KeyBus) Subscribe(fn func(Key) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers = append(b.handlers, keyHandler{id: b.nextID, fn: fn})
	return &Subscription{bus: b, id: b.nextID}
}

// Dispatch delivers k to every handler in subscription order and reports
// whether any of them consumed it. Handlers may unsubscribe while running.
func (b *KeyBus) Dispatch(k Key) bool {
	b.mu.Lock()
	handlers := make([]keyHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	handled := false
	for _, h := range handlers {
		if h.fn(k) {
			handled = true
		}
	}
	return handled
}

// Len returns the number of active subscriptions
func (b *KeyBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func (b *KeyBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.id == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Subscription is a handle returned by KeyBus.Subscribe
type Subscription struct {
	bus  *KeyBus
	id   uint64
	once sync.Once
}

// Close removes the handler from the bus. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.bus.remove(s.id)
	})
	return nil
}
