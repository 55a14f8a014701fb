package proctor

// EventType identifies a runtime signal from the embedding shell
// (webview, kiosk browser, or test harness).
type EventType string

const (
	EventVisibilityHidden  EventType = "visibility_hidden"
	EventVisibilityVisible EventType = "visibility_visible"
	EventFocusLost         EventType = "focus_lost"
	EventFocusGained       EventType = "focus_gained"
	EventViewportResize    EventType = "viewport_resize"
	EventClipboardCopy     EventType = "clipboard_copy"
	EventClipboardPaste    EventType = "clipboard_paste"
	EventContextMenu       EventType = "context_menu"
	EventKeyDown           EventType = "key_down"
)

// Event is one signal from the embedding runtime. Width/Height are set for
// resize events; Key and modifiers for key events.
type Event struct {
	Type   EventType
	Width  int
	Height int
	Key    string
	Ctrl   bool
	Shift  bool
	Alt    bool
}

// EventSource delivers runtime events. Each subscriber gets its own channel
// so multiple detectors can watch the same source independently.
type EventSource interface {
	Subscribe() <-chan Event
}

// FanoutSource is an EventSource fed by Publish. Delivery is non-blocking:
// a subscriber that stops draining loses events rather than stalling the
// publisher.
type FanoutSource struct {
	subs []chan Event
}

// NewFanoutSource creates an empty FanoutSource.
func NewFanoutSource() *FanoutSource {
	return &FanoutSource{}
}

// Subscribe registers a new subscriber channel. Not safe to call
// concurrently with Publish; wire all detectors before starting the pump.
func (s *FanoutSource) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	s.subs = append(s.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber.
func (s *FanoutSource) Publish(e Event) {
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes all subscriber channels, ending detector loops.
func (s *FanoutSource) Close() {
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}
