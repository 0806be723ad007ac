package wizard

import (
	"errors"
	"fmt"
	"sync"

	"swiftkyc-client/internal/notify"
)

// Step is a wizard page, numbered from 1.
type Step int

const (
	StepBasicDetails Step = iota + 1
	StepCreateSession
	StepSelectDocument
	StepDocNumber
	StepUploadDocument
	StepSelfie
	StepStatus
)

// StepCount is the number of wizard pages.
const StepCount = 7

var labels = map[Step]string{
	StepBasicDetails:   "Basic Details",
	StepCreateSession:  "Create Session",
	StepSelectDocument: "Select Document",
	StepDocNumber:      "Enter Doc Number",
	StepUploadDocument: "Upload Document",
	StepSelfie:         "Selfie Capture",
	StepStatus:         "Status & Assisted KYC",
}

// Label is the phase name shown next to the progress bar.
func (s Step) Label() string {
	return labels[s]
}

func (s Step) Valid() bool {
	return s >= StepBasicDetails && s <= StepStatus
}

var ErrStepRange = errors.New("step out of range")

// Progress is what the progress header shows for the active step.
type Progress struct {
	Step    Step
	Percent float64
	Counter string // "Step n of 7"
	Phase   string
}

// ProgressOf computes the header for s.
func ProgressOf(s Step) Progress {
	return Progress{
		Step:    s,
		Percent: float64(s) / StepCount * 100,
		Counter: fmt.Sprintf("Step %d of %d", s, StepCount),
		Phase:   s.Label(),
	}
}

// Navigator tracks the active step. It does not check whether a step is
// reachable; controllers decide when to move.
type Navigator struct {
	bar    *notify.Bar
	render func(Progress)

	mu      sync.Mutex
	current Step
	onLeave map[Step][]func()
}

// NewNavigator starts at step 1. render, when set, is called after every move.
func NewNavigator(bar *notify.Bar, render func(Progress)) *Navigator {
	return &Navigator{
		bar:     bar,
		render:  render,
		current: StepBasicDetails,
		onLeave: make(map[Step][]func()),
	}
}

// Current returns the active step.
func (n *Navigator) Current() Step {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Progress returns the header for the active step.
func (n *Navigator) Progress() Progress {
	return ProgressOf(n.Current())
}

// OnLeave registers fn to run whenever the navigator moves away from step.
func (n *Navigator) OnLeave(step Step, fn func()) {
	n.mu.Lock()
	n.onLeave[step] = append(n.onLeave[step], fn)
	n.mu.Unlock()
}

// GoTo activates s, runs the leave listeners of the previous step and clears
// the messaging bar.
func (n *Navigator) GoTo(s Step) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %d", ErrStepRange, s)
	}

	n.mu.Lock()
	prev := n.current
	n.current = s
	var leave []func()
	if prev != s {
		leave = append(leave, n.onLeave[prev]...)
	}
	n.mu.Unlock()

	for _, fn := range leave {
		fn()
	}
	if n.bar != nil {
		n.bar.Clear()
	}
	if n.render != nil {
		n.render(ProgressOf(s))
	}
	return nil
}

// Jump moves straight to s from the step indicator, skipping every guard.
func (n *Navigator) Jump(s Step) error {
	return n.GoTo(s)
}
