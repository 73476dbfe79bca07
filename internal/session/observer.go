package session

import "github.com/ehrlich-b/wingterm/internal/protocol"

// Observer receives manager notifications. Calls are made one at a time
// from the goroutine running Manager.Run, in the order things happened.
// Observers may call back into the Manager but must not block for long.
type Observer interface {
	OnState(State)
	OnEvent(protocol.Event)
	OnSessionID(string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State     func(State)
	Event     func(protocol.Event)
	SessionID func(string)
}

func (f ObserverFuncs) OnState(s State) {
	if f.State != nil {
		f.State(s)
	}
}

func (f ObserverFuncs) OnEvent(ev protocol.Event) {
	if f.Event != nil {
		f.Event(ev)
	}
}

func (f ObserverFuncs) OnSessionID(id string) {
	if f.SessionID != nil {
		f.SessionID(id)
	}
}

type noteKind int

const (
	noteState noteKind = iota
	noteEvent
	noteSessionID
)

// notification is one queued observer call.
type notification struct {
	kind      noteKind
	state     State
	event     protocol.Event
	sessionID string
}

func (n notification) deliver(o Observer) {
	switch n.kind {
	case noteState:
		o.OnState(n.state)
	case noteEvent:
		o.OnEvent(n.event)
	case noteSessionID:
		o.OnSessionID(n.sessionID)
	}
}
