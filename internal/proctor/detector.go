package proctor

import (
	"errors"
	"fmt"
	"time"

	"github.com/proktora/proktora-backend/internal/model"
)

// ErrAlreadyStarted is returned by Start on a running detector.
var ErrAlreadyStarted = errors.New("proctor: detector already started")

// Detector watches an event stream and emits violations.
type Detector interface {
	// Start begins watching. emit must be safe to call from the
	// detector's own goroutine.
	Start(emit func(Violation)) error
	Stop()
}

// episodeDetector fires once when trip matches, then stays silent until
// clear matches. One sustained condition produces one violation, however
// many events it spans.
type episodeDetector struct {
	src   EventSource
	kind  model.ViolationKind
	trip  func(Event) (string, bool)
	clear func(Event) bool
	quit  chan struct{}
}

func (d *episodeDetector) Start(emit func(Violation)) error {
	if d.quit != nil {
		return ErrAlreadyStarted
	}
	d.quit = make(chan struct{})
	events := d.src.Subscribe()

	go func(quit chan struct{}) {
		armed := true
		for {
			select {
			case <-quit:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if armed {
					if msg, hit := d.trip(e); hit {
						emit(Violation{Kind: d.kind, Message: msg, OccurredAt: time.Now()})
						armed = false
					}
				} else if d.clear(e) {
					armed = true
				}
			}
		}
	}(d.quit)
	return nil
}

func (d *episodeDetector) Stop() {
	if d.quit != nil {
		close(d.quit)
		d.quit = nil
	}
}

// discreteDetector fires on every matching event. Used for point-in-time
// actions (clipboard, context menu, key chords) where each occurrence is
// its own episode.
type discreteDetector struct {
	src  EventSource
	kind model.ViolationKind
	trip func(Event) (string, bool)
	quit chan struct{}
}

func (d *discreteDetector) Start(emit func(Violation)) error {
	if d.quit != nil {
		return ErrAlreadyStarted
	}
	d.quit = make(chan struct{})
	events := d.src.Subscribe()

	go func(quit chan struct{}) {
		for {
			select {
			case <-quit:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if msg, hit := d.trip(e); hit {
					emit(Violation{Kind: d.kind, Message: msg, OccurredAt: time.Now()})
				}
			}
		}
	}(d.quit)
	return nil
}

func (d *discreteDetector) Stop() {
	if d.quit != nil {
		close(d.quit)
		d.quit = nil
	}
}

// NewTabDetector reports when the exam document becomes hidden (tab switch,
// window minimize). Re-arms when visibility returns.
func NewTabDetector(src EventSource) Detector {
	return &episodeDetector{
		src:  src,
		kind: model.ViolationTabHidden,
		trip: func(e Event) (string, bool) {
			return "document hidden", e.Type == EventVisibilityHidden
		},
		clear: func(e Event) bool { return e.Type == EventVisibilityVisible },
	}
}

// NewFocusDetector reports when the exam window loses focus. Re-arms on
// focus gain.
func NewFocusDetector(src EventSource) Detector {
	return &episodeDetector{
		src:  src,
		kind: model.ViolationFocusLost,
		trip: func(e Event) (string, bool) {
			return "window focus lost", e.Type == EventFocusLost
		},
		clear: func(e Event) bool { return e.Type == EventFocusGained },
	}
}

// NewClipboardDetector reports copy and paste actions.
func NewClipboardDetector(src EventSource) Detector {
	return &discreteDetector{
		src:  src,
		kind: model.ViolationClipboard,
		trip: func(e Event) (string, bool) {
			switch e.Type {
			case EventClipboardCopy:
				return "clipboard copy", true
			case EventClipboardPaste:
				return "clipboard paste", true
			}
			return "", false
		},
	}
}

// NewContextMenuDetector reports context menu invocations.
func NewContextMenuDetector(src EventSource) Detector {
	return &discreteDetector{
		src:  src,
		kind: model.ViolationContextMenu,
		trip: func(e Event) (string, bool) {
			return "context menu opened", e.Type == EventContextMenu
		},
	}
}

// NewDevtoolsKeysDetector reports developer-tool key chords: F12,
// Ctrl+Shift+I/J/C, Ctrl+U.
func NewDevtoolsKeysDetector(src EventSource) Detector {
	return &discreteDetector{
		src:  src,
		kind: model.ViolationDevtoolsKeys,
		trip: func(e Event) (string, bool) {
			if e.Type != EventKeyDown {
				return "", false
			}
			if e.Key == "F12" {
				return "F12 pressed", true
			}
			if e.Ctrl && e.Shift && (e.Key == "I" || e.Key == "J" || e.Key == "C") {
				return "Ctrl+Shift+" + e.Key + " pressed", true
			}
			if e.Ctrl && !e.Shift && e.Key == "U" {
				return "Ctrl+U pressed", true
			}
			return "", false
		},
	}
}

// shrinkRatio is how far below the baseline a dimension may drop before the
// viewport counts as shrunk.
const shrinkRatio = 0.75

// ViewportDetector watches resize events against the attempt's initial
// viewport. It reports VIEWPORT_SHRUNK when a dimension drops below the
// baseline tolerance, and SPLIT_SCREEN when the shape matches a side-by-side
// snap: roughly half the screen width at near-full height. Each condition
// re-arms independently once the viewport recovers.
type ViewportDetector struct {
	src                       EventSource
	baseWidth, baseHeight     int
	screenWidth, screenHeight int
	quit                      chan struct{}
}

// NewViewportDetector creates a detector with the attempt's initial viewport
// as baseline. Pass zero screen dimensions when unknown; the split-screen
// heuristic is then disabled.
func NewViewportDetector(src EventSource, baseWidth, baseHeight, screenWidth, screenHeight int) *ViewportDetector {
	return &ViewportDetector{
		src:          src,
		baseWidth:    baseWidth,
		baseHeight:   baseHeight,
		screenWidth:  screenWidth,
		screenHeight: screenHeight,
	}
}

func (d *ViewportDetector) shrunk(w, h int) bool {
	return float64(w) < float64(d.baseWidth)*shrinkRatio ||
		float64(h) < float64(d.baseHeight)*shrinkRatio
}

func (d *ViewportDetector) splitScreen(w, h int) bool {
	if d.screenWidth == 0 || d.screenHeight == 0 {
		return false
	}
	return w <= d.screenWidth/2+8 && float64(h) >= float64(d.screenHeight)*0.85
}

// Start begins watching resize events.
func (d *ViewportDetector) Start(emit func(Violation)) error {
	if d.quit != nil {
		return ErrAlreadyStarted
	}
	d.quit = make(chan struct{})
	events := d.src.Subscribe()

	go func(quit chan struct{}) {
		shrunkArmed, splitArmed := true, true
		for {
			select {
			case <-quit:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Type != EventViewportResize {
					continue
				}

				if d.shrunk(e.Width, e.Height) {
					if shrunkArmed {
						emit(Violation{
							Kind:       model.ViolationViewportShrunk,
							Message:    fmt.Sprintf("viewport %dx%d below baseline %dx%d", e.Width, e.Height, d.baseWidth, d.baseHeight),
							OccurredAt: time.Now(),
						})
						shrunkArmed = false
					}
				} else {
					shrunkArmed = true
				}

				if d.splitScreen(e.Width, e.Height) {
					if splitArmed {
						emit(Violation{
							Kind:       model.ViolationSplitScreen,
							Message:    fmt.Sprintf("viewport %dx%d matches half-screen snap", e.Width, e.Height),
							OccurredAt: time.Now(),
						})
						splitArmed = false
					}
				} else {
					splitArmed = true
				}
			}
		}
	}(d.quit)
	return nil
}

// Stop halts the watch loop.
func (d *ViewportDetector) Stop() {
	if d.quit != nil {
		close(d.quit)
		d.quit = nil
	}
}
