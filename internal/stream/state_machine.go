package stream

import "sync"

type State string

const (
	StateConnecting           State = "connecting"
	StateAwaitingInitialFetch State = "awaiting_initial_fetch"
	StateStreaming            State = "streaming"
	StateClosed               State = "closed"
)

type Event string

const (
	EventAcked          Event = "acked"
	EventInitialSettled Event = "initial_settled"
	EventClosed         Event = "closed"
)

type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateConnecting}
}

func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nextState(s.state, event)
	return s.state
}

func (s *StateMachine) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func nextState(current State, event Event) State {
	if current == StateClosed {
		return current
	}
	if event == EventClosed {
		return StateClosed
	}
	switch current {
	case StateConnecting:
		if event == EventAcked {
			return StateAwaitingInitialFetch
		}
	case StateAwaitingInitialFetch:
		if event == EventInitialSettled {
			return StateStreaming
		}
	}
	return current
}
