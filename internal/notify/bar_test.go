package notify

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recorder struct {
	mu      sync.Mutex
	shown   []Message
	cleared int
}

func (r *recorder) Render(m Message) {
	r.mu.Lock()
	r.shown = append(r.shown, m)
	r.mu.Unlock()
}

func (r *recorder) Clear() {
	r.mu.Lock()
	r.cleared++
	r.mu.Unlock()
}

func (r *recorder) clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared
}

func TestShowReplacesCurrent(t *testing.T) {
	rec := &recorder{}
	bar := New(rec, 0)

	bar.Info("Creating your KYC session…")
	bar.Success("KYC session created successfully.")

	msg, ok := bar.Current()
	require.True(t, ok)
	assert.Equal(t, Message{Kind: KindSuccess, Text: "KYC session created successfully."}, msg)
	assert.Len(t, rec.shown, 2)
}

func TestEmptyTextClears(t *testing.T) {
	rec := &recorder{}
	bar := New(rec, 0)

	bar.Error("Capture failed. Try again.")
	bar.Show(KindError, "")

	_, ok := bar.Current()
	assert.False(t, ok)
	assert.Equal(t, 1, rec.clears())

	// Clearing an empty bar does not redraw.
	bar.Clear()
	assert.Equal(t, 1, rec.clears())
}

func TestAutoDismiss(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	bar := New(rec, 20*time.Millisecond)
	bar.Error("Please create a KYC session first.")

	assert.Eventually(t, func() bool {
		_, ok := bar.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.clears())
}

func TestNewMessageRestartsDismissTimer(t *testing.T) {
	rec := &recorder{}
	bar := New(rec, 50*time.Millisecond)
	defer bar.Close()

	bar.Info("first")
	time.Sleep(30 * time.Millisecond)
	bar.Info("second")
	time.Sleep(30 * time.Millisecond)

	msg, ok := bar.Current()
	require.True(t, ok, "second message dismissed by the first message's timer")
	assert.Equal(t, "second", msg.Text)
}

func TestWriterRenderer(t *testing.T) {
	var buf bytes.Buffer
	bar := New(WriterRenderer{W: &buf}, 0)
	bar.Error("Camera API not supported in this browser.")
	assert.Equal(t, "[!!] Camera API not supported in this browser.\n", buf.String())
}
