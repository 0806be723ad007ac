package wizard

import (
	"errors"
	"fmt"
)

// Event is a user action on a step.
type Event string

const (
	EventContinue Event = "continue"
	EventBack     Event = "back"
)

var ErrIllegalTransition = errors.New("illegal transition")

type transition struct {
	from  Step
	event Event
}

// transitions lists every legal move. Anything absent is illegal.
var transitions = map[transition]Step{
	{StepBasicDetails, EventContinue}:   StepCreateSession,
	{StepCreateSession, EventContinue}:  StepSelectDocument,
	{StepSelectDocument, EventContinue}: StepDocNumber,
	{StepDocNumber, EventContinue}:      StepUploadDocument,
	{StepUploadDocument, EventContinue}: StepSelfie,
	{StepSelfie, EventContinue}:         StepStatus,

	{StepCreateSession, EventBack}:  StepBasicDetails,
	{StepSelectDocument, EventBack}: StepCreateSession,
	{StepDocNumber, EventBack}:      StepSelectDocument,
	{StepUploadDocument, EventBack}: StepDocNumber,
	{StepSelfie, EventBack}:         StepUploadDocument,
	{StepStatus, EventBack}:         StepSelfie,
}

// Next returns the step reached from s on e.
func Next(s Step, e Event) (Step, error) {
	to, ok := transitions[transition{s, e}]
	if !ok {
		return 0, fmt.Errorf("%w: %s from step %d", ErrIllegalTransition, e, s)
	}
	return to, nil
}
