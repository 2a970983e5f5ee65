package orchestrator

import "fmt"

// State is a phase of the voice pipeline.
type State int32

const (
	// Idle is the resting state while wake detection is disabled.
	Idle State = iota
	// Listening waits for a wake phrase.
	Listening
	Recording
	Transcribing
	AwaitingReply
	Synthesizing
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case AwaitingReply:
		return "awaiting_reply"
	case Synthesizing:
		return "synthesizing"
	case Speaking:
		return "speaking"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler so states read well in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// edges lists the allowed transitions. Every active state can fall back to
// Listening or, when wake detection is off, to Idle.
var edges = map[State][]State{
	Idle:          {Listening, Recording, AwaitingReply},
	Listening:     {Recording, Idle, AwaitingReply},
	Recording:     {Transcribing, Listening, Idle},
	Transcribing:  {AwaitingReply, Listening, Idle},
	AwaitingReply: {Synthesizing, Listening, Idle},
	Synthesizing:  {Speaking, Listening, Idle},
	Speaking:      {Listening, Idle},
}

// CanTransition reports whether the pipeline may move from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Busy reports whether s is part of a running conversation cycle.
func (s State) Busy() bool {
	return s != Idle && s != Listening
}
