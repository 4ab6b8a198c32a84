package tryrun

import "time"

// EventType identifies a live execution notification.
type EventType string

const (
	// EventStart fires when an authorized command begins executing.
	EventStart EventType = "start"

	// EventProgress fires periodically while a command is still running,
	// carrying the elapsed wall-clock time.
	EventProgress EventType = "progress"

	// EventEnd fires when a command finishes, with its outcome.
	EventEnd EventType = "end"

	// EventFallback fires when the executor skips forward to an alternate
	// start probe after a timed-out help-probe start command.
	EventFallback EventType = "fallback"
)

// Event is one live notification from the executor. The executor only emits
// these; rendering belongs to the caller.
type Event struct {
	Type    EventType
	Index   int    // position in the plan's executable command list
	Command string // display string of the command
	Step    Step
	Elapsed time.Duration

	// End-only fields.
	ExitCode *int
	TimedOut bool
	Status   VerificationStatus
}

// EventSink receives executor events. A nil sink is valid and drops events.
// Sinks are invoked synchronously from the execution loop and must be fast.
type EventSink func(Event)

// emit delivers an event to the sink if one is attached.
func (e *Executor) emit(ev Event) {
	if e.sink != nil {
		e.sink(ev)
	}
}
