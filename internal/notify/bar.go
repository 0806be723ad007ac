package notify

// Package notify implements the single messaging bar shared by the wizard,
// the camera pipeline, the status poller and the admin console.

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Kind selects how a message is presented.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// DefaultDismiss is how long a message stays up when no delay is configured.
const DefaultDismiss = 6 * time.Second

// Message is one transient notice.
type Message struct {
	Kind Kind
	Text string
}

// Renderer draws the bar. Render is called for every new message and Clear
// whenever the bar empties, either explicitly or by auto-dismiss.
type Renderer interface {
	Render(Message)
	Clear()
}

// Bar holds at most one message at a time. Showing a message replaces the
// current one and restarts the auto-dismiss timer.
type Bar struct {
	mu       sync.Mutex
	renderer Renderer
	dismiss  time.Duration
	current  *Message
	timer    *time.Timer
	gen      uint64
}

// New creates a bar drawing through r. A non-positive dismiss disables
// auto-dismiss.
func New(r Renderer, dismiss time.Duration) *Bar {
	return &Bar{renderer: r, dismiss: dismiss}
}

// Show replaces the current message. An empty text clears the bar.
func (b *Bar) Show(kind Kind, text string) {
	if text == "" {
		b.Clear()
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimerLocked()
	msg := Message{Kind: kind, Text: text}
	b.current = &msg
	if b.renderer != nil {
		b.renderer.Render(msg)
	}

	if b.dismiss > 0 {
		gen := b.gen
		b.timer = time.AfterFunc(b.dismiss, func() { b.expire(gen) })
	}
}

func (b *Bar) Info(text string)    { b.Show(KindInfo, text) }
func (b *Bar) Success(text string) { b.Show(KindSuccess, text) }
func (b *Bar) Error(text string)   { b.Show(KindError, text) }

// Clear empties the bar and cancels any pending auto-dismiss.
func (b *Bar) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

// Current returns the message on display, if any.
func (b *Bar) Current() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Message{}, false
	}
	return *b.current, true
}

// Close stops the auto-dismiss timer without touching the renderer.
func (b *Bar) Close() {
	b.mu.Lock()
	b.stopTimerLocked()
	b.mu.Unlock()
}

func (b *Bar) expire(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// A newer message or an explicit clear already superseded this timer.
	if gen != b.gen {
		return
	}
	b.clearLocked()
}

func (b *Bar) clearLocked() {
	b.stopTimerLocked()
	if b.current == nil {
		return
	}
	b.current = nil
	if b.renderer != nil {
		b.renderer.Clear()
	}
}

func (b *Bar) stopTimerLocked() {
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// WriterRenderer prints each message as one line on W.
type WriterRenderer struct {
	W io.Writer
}

var prefixes = map[Kind]string{
	KindInfo:    "[..]",
	KindSuccess: "[ok]",
	KindError:   "[!!]",
}

func (r WriterRenderer) Render(m Message) {
	fmt.Fprintf(r.W, "%s %s\n", prefixes[m.Kind], m.Text)
}

// Clear is a no-op; printed lines scroll away on their own.
func (r WriterRenderer) Clear() {}
